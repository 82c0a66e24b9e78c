package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tradexec/internal/models"
)

// ============ SettingsHandler Tests ============

func TestSettingsHandler_GetSettings(t *testing.T) {
	t.Run("returns settings", func(t *testing.T) {
		mockSvc := NewMockSettingsService()
		handler := NewSettingsHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
		w := httptest.NewRecorder()

		handler.GetSettings(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var settings models.Settings
		if err := json.NewDecoder(w.Body).Decode(&settings); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !settings.DryRun {
			t.Error("expected dry_run=true by default")
		}
	})

	t.Run("returns 500 on service error", func(t *testing.T) {
		mockSvc := NewMockSettingsService()
		mockSvc.getErr = ErrMockDatabase
		handler := NewSettingsHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
		w := httptest.NewRecorder()

		handler.GetSettings(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestSettingsHandler_UpdateSettings(t *testing.T) {
	t.Run("updates passed fields", func(t *testing.T) {
		mockSvc := NewMockSettingsService()
		handler := NewSettingsHandler(mockSvc)

		body := strings.NewReader(`{"max_concurrent_positions": 3, "dry_run": false}`)
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/settings", body)
		w := httptest.NewRecorder()

		handler.UpdateSettings(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if mockSvc.lastReq == nil {
			t.Fatal("expected service to receive update request")
		}
		if mockSvc.lastReq.MaxConcurrentPositions == nil || *mockSvc.lastReq.MaxConcurrentPositions != 3 {
			t.Errorf("expected max_concurrent_positions 3, got %v", mockSvc.lastReq.MaxConcurrentPositions)
		}
		if mockSvc.lastReq.DryRun == nil || *mockSvc.lastReq.DryRun {
			t.Error("expected dry_run=false in request")
		}
	})

	t.Run("returns 400 on invalid json", func(t *testing.T) {
		mockSvc := NewMockSettingsService()
		handler := NewSettingsHandler(mockSvc)

		req := httptest.NewRequest(http.MethodPatch, "/api/v1/settings", strings.NewReader("{not json"))
		w := httptest.NewRecorder()

		handler.UpdateSettings(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 400 for invalid max_concurrent_positions", func(t *testing.T) {
		mockSvc := NewMockSettingsService()
		handler := NewSettingsHandler(mockSvc)

		body := strings.NewReader(`{"max_concurrent_positions": 0}`)
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/settings", body)
		w := httptest.NewRecorder()

		handler.UpdateSettings(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}
