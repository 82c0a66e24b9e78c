package repository

import (
	"database/sql"
	"time"

	"tradexec/internal/models"
	"tradexec/pkg/utils"
)

// StatsRepository - агрегация статистики из таблицы trades
type StatsRepository struct {
	db     *sql.DB
	trades *TradeRepository
}

// NewStatsRepository создает новый экземпляр репозитория
func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db, trades: NewTradeRepository(db)}
}

// maxEventsReturned ограничивает списки событий в сводке
const maxEventsReturned = 20

// GetStats собирает полную статистику торговли
func (r *StatsRepository) GetStats() (*models.Stats, error) {
	stats := &models.Stats{}

	var err error
	stats.TotalTrades, stats.TotalPnl, stats.WinRate, err = r.trades.TotalSummary()
	if err != nil {
		return nil, err
	}

	dayStart := utils.GetDayStart()
	weekStart := utils.GetWeekStart()
	monthStart := utils.GetMonthStart()

	if stats.TodayTrades, stats.TodayPnl, err = r.trades.PeriodSummary(dayStart); err != nil {
		return nil, err
	}
	if stats.WeekTrades, stats.WeekPnl, err = r.trades.PeriodSummary(weekStart); err != nil {
		return nil, err
	}
	if stats.MonthTrades, stats.MonthPnl, err = r.trades.PeriodSummary(monthStart); err != nil {
		return nil, err
	}

	if stats.StopLossStats, err = r.stopLossStats(dayStart, weekStart, monthStart); err != nil {
		return nil, err
	}
	if stats.EmergencyStats, err = r.emergencyStats(dayStart, weekStart, monthStart); err != nil {
		return nil, err
	}

	if stats.TopAssetsByPnl, err = r.trades.TopAssetsByPnl(5); err != nil {
		return nil, err
	}
	if stats.TopAssetsByLoss, err = r.trades.TopAssetsByLoss(5); err != nil {
		return nil, err
	}

	return stats, nil
}

// stopLossStats собирает статистику срабатываний защитных выходов
func (r *StatsRepository) stopLossStats(dayStart, weekStart, monthStart time.Time) (models.StopLossStats, error) {
	var stats models.StopLossStats

	counts := []struct {
		since time.Time
		dst   *int
	}{
		{dayStart, &stats.Today},
		{weekStart, &stats.Week},
		{monthStart, &stats.Month},
	}
	for _, c := range counts {
		query := `SELECT COUNT(*) FROM trades WHERE reason IN ($1, $2) AND closed_at >= $3`
		err := r.db.QueryRow(query, models.ExitReasonStopLoss, models.ExitReasonTrailingStop, c.since).Scan(c.dst)
		if err != nil {
			return stats, err
		}
	}

	query := `
		SELECT asset, reason, closed_at
		FROM trades
		WHERE reason IN ($1, $2) AND closed_at >= $3
		ORDER BY closed_at DESC
		LIMIT $4`

	rows, err := r.db.Query(query, models.ExitReasonStopLoss, models.ExitReasonTrailingStop, monthStart, maxEventsReturned)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var event models.StopLossEvent
		var reason string
		if err := rows.Scan(&event.Asset, &reason, &event.Timestamp); err != nil {
			return stats, err
		}
		event.Trailing = reason == models.ExitReasonTrailingStop
		stats.Events = append(stats.Events, event)
	}

	return stats, rows.Err()
}

// emergencyStats собирает статистику аварийных выходов
func (r *StatsRepository) emergencyStats(dayStart, weekStart, monthStart time.Time) (models.EmergencyStats, error) {
	var stats models.EmergencyStats

	var err error
	if stats.Today, err = r.trades.CountEmergency(dayStart); err != nil {
		return stats, err
	}
	if stats.Week, err = r.trades.CountEmergency(weekStart); err != nil {
		return stats, err
	}
	if stats.Month, err = r.trades.CountEmergency(monthStart); err != nil {
		return stats, err
	}

	query := `
		SELECT asset, reason, closed_at
		FROM trades
		WHERE emergency = true AND closed_at >= $1
		ORDER BY closed_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, monthStart, maxEventsReturned)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var event models.EmergencyEvent
		var reason string
		if err := rows.Scan(&event.Asset, &reason, &event.Timestamp); err != nil {
			return stats, err
		}
		event.Reasons = []string{reason}
		stats.Events = append(stats.Events, event)
	}

	return stats, rows.Err()
}
