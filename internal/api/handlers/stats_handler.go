package handlers

import (
	"net/http"
	"strconv"

	"tradexec/internal/models"
	"tradexec/internal/service"
)

// StatsHandler обрабатывает HTTP запросы для статистики торговли
//
// Endpoints:
// - GET /api/v1/stats - агрегированная статистика
// - GET /api/v1/stats/trades?limit=50 - последние закрытые сделки
//
// Статистика включает:
// - Количество сделок и PNL (день/неделя/месяц/всего), win rate
// - Срабатывания stop loss с деталями (trailing или стартовый уровень)
// - Аварийные закрытия с причинами и методом исполнения
// - Топ-5 активов по прибыли и по убытку
type StatsHandler struct {
	statsService service.StatsServiceInterface
}

// NewStatsHandler создает новый StatsHandler с внедрением зависимости
func NewStatsHandler(statsService service.StatsServiceInterface) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
	}
}

// GetStats возвращает агрегированную статистику торговли
//
// GET /api/v1/stats
//
// Response 200 OK:
//
//	{
//	  "total_trades": 150,
//	  "total_pnl": 1250.50,
//	  "win_rate": 0.62,
//	  "today_trades": 5,
//	  "today_pnl": 45.20,
//	  "week_trades": 25,
//	  "week_pnl": 180.75,
//	  "month_trades": 80,
//	  "month_pnl": 620.30,
//	  "stop_loss_stats": {
//	    "today": 0, "week": 2, "month": 5,
//	    "events": [
//	      {"asset": "BTCUSDT", "trailing": true, "timestamp": "2026-08-20T14:32:00Z"}
//	    ]
//	  },
//	  "emergency_stats": {
//	    "today": 0, "week": 0, "month": 1,
//	    "events": [
//	      {"asset": "ETHUSDT", "method": "SPLIT_ORDERS", "reasons": ["price_drop"],
//	       "timestamp": "2026-08-15T03:10:00Z"}
//	    ]
//	  },
//	  "top_assets_by_pnl": [{"asset": "ETHUSDT", "value": 450.25}],
//	  "top_assets_by_loss": [{"asset": "XRPUSDT", "value": -85.50}]
//	}
//
// Response 500 Internal Server Error:
//
//	{"error": "failed to get stats: ..."}
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsService.GetStats()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to get stats: "+err.Error())
		return
	}

	// Пустые массивы отдаем как [], а не null
	if stats.TopAssetsByPnl == nil {
		stats.TopAssetsByPnl = []models.AssetStat{}
	}
	if stats.TopAssetsByLoss == nil {
		stats.TopAssetsByLoss = []models.AssetStat{}
	}
	if stats.StopLossStats.Events == nil {
		stats.StopLossStats.Events = []models.StopLossEvent{}
	}
	if stats.EmergencyStats.Events == nil {
		stats.EmergencyStats.Events = []models.EmergencyEvent{}
	}

	respondWithJSON(w, http.StatusOK, stats)
}

// GetRecentTrades возвращает последние закрытые сделки
//
// GET /api/v1/stats/trades?limit=50
//
// Query параметры:
// - limit (int): количество сделок (по умолчанию 50, максимум 500)
//
// HTTP коды:
// - 200 OK: успешно
// - 500 Internal Server Error: ошибка БД
func (h *StatsHandler) GetRecentTrades(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	trades, err := h.statsService.GetRecentTrades(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to get recent trades: "+err.Error())
		return
	}

	if trades == nil {
		trades = []*models.TradeOutcome{}
	}
	respondWithJSON(w, http.StatusOK, trades)
}
