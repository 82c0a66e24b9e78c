package handlers

import (
	"errors"
	"net/http"

	"tradexec/internal/service"
)

// RiskHandler обрабатывает HTTP запросы к состоянию риск-менеджера
//
// Endpoints:
// - GET /api/v1/risk - текущий риск-бюджет, просадка, статус остановки
// - POST /api/v1/risk/reset-halt - ручное снятие остановки входов
// - POST /api/v1/risk/reset-daily - ручной сброс дневных метрик
//
// Остановка по просадке или критическому отказу не снимается
// суточным сбросом, для нее предусмотрен ручной reset-halt.
type RiskHandler struct {
	riskService service.RiskServiceInterface
}

// NewRiskHandler создает новый RiskHandler с внедрением зависимости
func NewRiskHandler(riskService service.RiskServiceInterface) *RiskHandler {
	return &RiskHandler{
		riskService: riskService,
	}
}

// GetStatus возвращает срез состояния риск-менеджера
//
// GET /api/v1/risk
//
// HTTP коды:
// - 200 OK: успешно
func (h *RiskHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.riskService.GetStatus())
}

// ResetHalt снимает остановку входов
//
// POST /api/v1/risk/reset-halt
//
// HTTP коды:
// - 200 OK: остановка снята
// - 409 Conflict: риск-менеджер не был остановлен
func (h *RiskHandler) ResetHalt(w http.ResponseWriter, r *http.Request) {
	if err := h.riskService.ResetHalt(); err != nil {
		if errors.Is(err, service.ErrNotHalted) {
			respondWithError(w, http.StatusConflict, "risk manager is not halted")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to reset halt: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "halt reset, new entries allowed",
	})
}

// ResetDailyMetrics сбрасывает дневные счетчики риск-бюджета
//
// POST /api/v1/risk/reset-daily
//
// Обычно сброс происходит автоматически в 00:00 UTC,
// ручной вызов нужен для отладки и операторских сценариев.
//
// HTTP коды:
// - 200 OK: метрики сброшены
func (h *RiskHandler) ResetDailyMetrics(w http.ResponseWriter, r *http.Request) {
	h.riskService.ResetDailyMetrics()

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "daily risk metrics reset",
	})
}
