package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"tradexec/internal/models"
	"tradexec/internal/service"

	"github.com/gorilla/mux"
)

// ============ PositionHandler Tests ============

func activePosition(id string) models.Position {
	return models.Position{
		ID:           id,
		Asset:        "BTCUSDT",
		Status:       models.StatusMonitoring,
		EntryPrice:   50000,
		Size:         0.1,
		CurrentPrice: 50500,
	}
}

func TestPositionHandler_GetPositions(t *testing.T) {
	t.Run("returns empty list when no positions", func(t *testing.T) {
		mockSvc := NewMockPositionService()
		handler := NewPositionHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
		w := httptest.NewRecorder()

		handler.GetPositions(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response GetPositionsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 0 {
			t.Errorf("expected total 0, got %d", response.Total)
		}
		if response.Positions == nil {
			t.Error("expected empty array, got null")
		}
	})

	t.Run("returns active positions with runtime state", func(t *testing.T) {
		mockSvc := NewMockPositionService()
		mockSvc.AddActive(activePosition("pos-1"))
		mockSvc.AddActive(activePosition("pos-2"))
		handler := NewPositionHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
		w := httptest.NewRecorder()

		handler.GetPositions(w, req)

		var response GetPositionsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 2 {
			t.Errorf("expected total 2, got %d", response.Total)
		}
		if response.Positions[0].CurrentPrice != 50500 {
			t.Errorf("expected current_price 50500, got %v", response.Positions[0].CurrentPrice)
		}
	})
}

func TestPositionHandler_GetPosition(t *testing.T) {
	t.Run("returns position by id", func(t *testing.T) {
		mockSvc := NewMockPositionService()
		mockSvc.AddActive(activePosition("pos-1"))
		handler := NewPositionHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions/pos-1", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "pos-1"})
		w := httptest.NewRecorder()

		handler.GetPosition(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var pos models.Position
		if err := json.NewDecoder(w.Body).Decode(&pos); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if pos.ID != "pos-1" {
			t.Errorf("expected id pos-1, got %s", pos.ID)
		}
	})
}

func TestPositionHandler_GetHistory(t *testing.T) {
	t.Run("passes limit to service", func(t *testing.T) {
		mockSvc := NewMockPositionService()
		handler := NewPositionHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions/history?limit=25", nil)
		w := httptest.NewRecorder()

		handler.GetHistory(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if mockSvc.gotLimit != 25 {
			t.Errorf("expected limit 25, got %d", mockSvc.gotLimit)
		}
	})

	t.Run("returns 500 on service error", func(t *testing.T) {
		mockSvc := NewMockPositionService()
		mockSvc.getErr = ErrMockDatabase
		handler := NewPositionHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions/history", nil)
		w := httptest.NewRecorder()

		handler.GetHistory(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestPositionHandler_ClosePosition(t *testing.T) {
	t.Run("accepts close request for active position", func(t *testing.T) {
		mockSvc := NewMockPositionService()
		mockSvc.AddActive(activePosition("pos-1"))
		handler := NewPositionHandler(mockSvc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/positions/pos-1/close", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "pos-1"})
		w := httptest.NewRecorder()

		handler.ClosePosition(w, req)

		if w.Code != http.StatusAccepted {
			t.Errorf("expected status %d, got %d", http.StatusAccepted, w.Code)
		}
		if len(mockSvc.closed) != 1 || mockSvc.closed[0] != "pos-1" {
			t.Errorf("expected close for pos-1, got %v", mockSvc.closed)
		}
	})

	t.Run("returns 404 for unknown position", func(t *testing.T) {
		mockSvc := NewMockPositionService()
		handler := NewPositionHandler(mockSvc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/positions/ghost/close", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "ghost"})
		w := httptest.NewRecorder()

		handler.ClosePosition(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})

	t.Run("returns 409 when position is not closable", func(t *testing.T) {
		mockSvc := NewMockPositionService()
		mockSvc.closeErr = service.ErrPositionNotClosable
		handler := NewPositionHandler(mockSvc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/positions/pos-1/close", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "pos-1"})
		w := httptest.NewRecorder()

		handler.ClosePosition(w, req)

		if w.Code != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
		}
	})
}
