package handlers

import (
	"errors"
	"net/http"

	"tradexec/internal/service"
)

// SettingsHandler отвечает за управление глобальными настройками движка
//
// Endpoints:
// - GET /api/v1/settings - получение глобальных настроек
// - PATCH /api/v1/settings - частичное обновление настроек
//
// Настройки:
// - max_concurrent_positions: ограничение на одновременные позиции (null = без лимита)
// - dry_run: режим симуляции шлюза (вступает в силу после рестарта)
// - notification_prefs: какие типы уведомлений создаются
type SettingsHandler struct {
	settingsService service.SettingsServiceInterface
}

// NewSettingsHandler создает новый SettingsHandler с внедрением зависимости
func NewSettingsHandler(settingsService service.SettingsServiceInterface) *SettingsHandler {
	return &SettingsHandler{
		settingsService: settingsService,
	}
}

// GetSettings возвращает текущие глобальные настройки
//
// GET /api/v1/settings
//
// Если записи в БД нет, возвращаются настройки по умолчанию
// (dry_run включен, все уведомления включены).
//
// HTTP коды:
// - 200 OK: успешно
// - 500 Internal Server Error: ошибка БД
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsService.GetSettings()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to get settings: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, settings)
}

// UpdateSettings частично обновляет глобальные настройки
//
// PATCH /api/v1/settings
//
// Request body (все поля опциональны):
//
//	{
//	  "max_concurrent_positions": 3,
//	  "dry_run": false,
//	  "notification_prefs": {"trade_opened": true, ...},
//	  "clear_max_concurrent_positions": false
//	}
//
// HTTP коды:
// - 200 OK: обновлено, возвращает новый объект настроек
// - 400 Bad Request: невалидный JSON или max_concurrent_positions < 1
// - 500 Internal Server Error: ошибка БД
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	settings, err := h.settingsService.UpdateSettings(&req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidMaxConcurrentPositions) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to update settings: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, settings)
}
