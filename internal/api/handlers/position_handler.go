package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"tradexec/internal/bot"
	"tradexec/internal/models"
	"tradexec/internal/repository"
	"tradexec/internal/service"

	"github.com/gorilla/mux"
)

// PositionHandler обрабатывает HTTP запросы для позиций
//
// Endpoints:
// - GET /api/v1/positions - активные позиции с runtime состоянием
// - GET /api/v1/positions/history?limit=50 - история закрытых позиций
// - GET /api/v1/positions/{id} - одна позиция (активная или из истории)
// - POST /api/v1/positions/{id}/close - ручное закрытие позиции
//
// Активные позиции читаются из реестра в памяти, поэтому в ответе
// есть current_price и unrealized_pnl. История отдается из БД.
type PositionHandler struct {
	positionService service.PositionServiceInterface
}

// NewPositionHandler создает новый PositionHandler с внедрением зависимости
func NewPositionHandler(positionService service.PositionServiceInterface) *PositionHandler {
	return &PositionHandler{
		positionService: positionService,
	}
}

// GetPositionsResponse представляет ответ списка активных позиций
type GetPositionsResponse struct {
	Positions []models.Position `json:"positions"`
	Total     int               `json:"total"`
}

// GetPositions возвращает все активные позиции
//
// GET /api/v1/positions
//
// HTTP коды:
// - 200 OK: успешно, массив позиций (может быть пустым)
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.positionService.GetActivePositions()
	if positions == nil {
		positions = []models.Position{}
	}

	respondWithJSON(w, http.StatusOK, GetPositionsResponse{
		Positions: positions,
		Total:     len(positions),
	})
}

// GetHistory возвращает последние позиции из БД, включая закрытые
//
// GET /api/v1/positions/history
//
// Query параметры:
// - limit (int): количество записей (по умолчанию 100, максимум 500)
//
// HTTP коды:
// - 200 OK: успешно
// - 500 Internal Server Error: ошибка БД
func (h *PositionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	positions, err := h.positionService.GetHistory(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to get position history: "+err.Error())
		return
	}

	if positions == nil {
		positions = []*models.Position{}
	}
	respondWithJSON(w, http.StatusOK, positions)
}

// GetPosition возвращает одну позицию по id
//
// GET /api/v1/positions/{id}
//
// Сначала ищет в реестре активных (runtime срез), затем в БД.
//
// HTTP коды:
// - 200 OK: позиция найдена
// - 404 Not Found: позиции нет ни в реестре, ни в БД
// - 500 Internal Server Error: ошибка БД
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	position, err := h.positionService.GetPosition(id)
	if err != nil {
		if errors.Is(err, repository.ErrPositionNotFound) {
			respondWithError(w, http.StatusNotFound, "position not found: "+id)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to get position: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, position)
}

// ClosePosition инициирует ручное закрытие позиции
//
// POST /api/v1/positions/{id}/close
//
// Запрос конкурирует с автоматическими выходами (SL/TP/emergency):
// закрытие выполнит ровно один инициатор, остальные получат отказ
// перехода статуса.
//
// HTTP коды:
// - 202 Accepted: запрос на закрытие принят
// - 404 Not Found: позиция не найдена в реестре
// - 409 Conflict: позиция не в закрываемом статусе
// - 500 Internal Server Error: ошибка исполнения
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	err := h.positionService.ClosePosition(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPositionNotClosable):
			respondWithError(w, http.StatusConflict, "position is not in a closable state: "+id)
		case errors.Is(err, bot.ErrPositionNotFound), errors.Is(err, repository.ErrPositionNotFound):
			respondWithError(w, http.StatusNotFound, "position not found: "+id)
		default:
			respondWithError(w, http.StatusInternalServerError, "failed to close position: "+err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusAccepted, SuccessResponse{
		Message: "close requested for position " + id,
	})
}
