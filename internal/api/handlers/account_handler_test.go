package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tradexec/internal/models"

	"github.com/gorilla/mux"
)

// ============ AccountHandler Tests ============

func TestAccountHandler_GetAccounts(t *testing.T) {
	t.Run("returns accounts", func(t *testing.T) {
		mockSvc := NewMockAccountService()
		mockSvc.accounts = []*models.GatewayAccount{
			{Name: "live", Connected: true, Balance: 10000},
		}
		handler := NewAccountHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
		w := httptest.NewRecorder()

		handler.GetAccounts(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var accounts []*models.GatewayAccount
		if err := json.NewDecoder(w.Body).Decode(&accounts); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(accounts) != 1 {
			t.Fatalf("expected 1 account, got %d", len(accounts))
		}
		if accounts[0].Balance != 10000 {
			t.Errorf("expected balance 10000, got %v", accounts[0].Balance)
		}
	})

	t.Run("returns empty array when no accounts", func(t *testing.T) {
		mockSvc := NewMockAccountService()
		handler := NewAccountHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
		w := httptest.NewRecorder()

		handler.GetAccounts(w, req)

		if strings.TrimSpace(w.Body.String()) != "[]" {
			t.Errorf("expected [], got %s", w.Body.String())
		}
	})
}

func TestAccountHandler_SaveKeys(t *testing.T) {
	t.Run("saves credentials", func(t *testing.T) {
		mockSvc := NewMockAccountService()
		handler := NewAccountHandler(mockSvc)

		body := strings.NewReader(`{"api_key": "key-1", "secret_key": "secret-1"}`)
		req := httptest.NewRequest(http.MethodPut, "/api/v1/accounts/live/keys", body)
		req = mux.SetURLVars(req, map[string]string{"name": "live"})
		w := httptest.NewRecorder()

		handler.SaveKeys(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if saved := mockSvc.saved["live"]; saved[0] != "key-1" || saved[1] != "secret-1" {
			t.Errorf("unexpected saved credentials: %v", saved)
		}
	})

	t.Run("returns 400 for empty keys", func(t *testing.T) {
		mockSvc := NewMockAccountService()
		handler := NewAccountHandler(mockSvc)

		body := strings.NewReader(`{"api_key": "", "secret_key": "secret"}`)
		req := httptest.NewRequest(http.MethodPut, "/api/v1/accounts/live/keys", body)
		req = mux.SetURLVars(req, map[string]string{"name": "live"})
		w := httptest.NewRecorder()

		handler.SaveKeys(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 400 on invalid json", func(t *testing.T) {
		mockSvc := NewMockAccountService()
		handler := NewAccountHandler(mockSvc)

		req := httptest.NewRequest(http.MethodPut, "/api/v1/accounts/live/keys", strings.NewReader("{"))
		req = mux.SetURLVars(req, map[string]string{"name": "live"})
		w := httptest.NewRecorder()

		handler.SaveKeys(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}
