package repository

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"tradexec/internal/models"
)

// ============================================================
// StatsRepository Tests
// ============================================================

func TestStatsRepositoryGetStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()

	// Общая сводка
	mock.ExpectQuery(`SELECT COUNT\(\*\),`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum", "winrate"}).AddRow(100, 500.0, 0.55))

	// Сводки за день/неделю/месяц
	for _, row := range [][2]interface{}{{10, 50.0}, {30, 150.0}, {80, 400.0}} {
		mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE\(SUM\(pnl\), 0\) FROM trades`).
			WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(row[0], row[1]))
	}

	// Stop loss: счетчики за три периода + события
	for _, count := range []int{2, 5, 9} {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM trades WHERE reason IN`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
	}
	mock.ExpectQuery(`SELECT asset, reason, closed_at`).
		WillReturnRows(sqlmock.NewRows([]string{"asset", "reason", "closed_at"}).
			AddRow("BTCUSDT", models.ExitReasonTrailingStop, now).
			AddRow("ETHUSDT", models.ExitReasonStopLoss, now.Add(-time.Hour)))

	// Аварийные: счетчики + события
	for _, count := range []int{1, 2, 3} {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM trades WHERE emergency`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
	}
	mock.ExpectQuery(`SELECT asset, reason, closed_at`).
		WillReturnRows(sqlmock.NewRows([]string{"asset", "reason", "closed_at"}).
			AddRow("BTCUSDT", models.ExitReasonEmergency, now))

	// Топы по активам
	mock.ExpectQuery(`SELECT asset, SUM\(pnl\) AS total`).
		WillReturnRows(sqlmock.NewRows([]string{"asset", "total"}).AddRow("BTCUSDT", 300.0))
	mock.ExpectQuery(`SELECT asset, SUM\(pnl\) AS total`).
		WillReturnRows(sqlmock.NewRows([]string{"asset", "total"}).AddRow("DOGEUSDT", -50.0))

	repo := NewStatsRepository(db)
	stats, err := repo.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.TotalTrades != 100 || stats.TotalPnl != 500.0 || stats.WinRate != 0.55 {
		t.Errorf("общая сводка: получили %+v", stats)
	}
	if stats.TodayTrades != 10 || stats.WeekTrades != 30 || stats.MonthTrades != 80 {
		t.Errorf("периоды: получили today=%d week=%d month=%d", stats.TodayTrades, stats.WeekTrades, stats.MonthTrades)
	}
	if stats.StopLossStats.Today != 2 || stats.StopLossStats.Month != 9 {
		t.Errorf("stop loss счетчики: %+v", stats.StopLossStats)
	}
	if len(stats.StopLossStats.Events) != 2 || !stats.StopLossStats.Events[0].Trailing {
		t.Errorf("stop loss события: %+v", stats.StopLossStats.Events)
	}
	if stats.EmergencyStats.Week != 2 || len(stats.EmergencyStats.Events) != 1 {
		t.Errorf("аварийная статистика: %+v", stats.EmergencyStats)
	}
	if len(stats.TopAssetsByPnl) != 1 || stats.TopAssetsByPnl[0].Asset != "BTCUSDT" {
		t.Errorf("топ по прибыли: %+v", stats.TopAssetsByPnl)
	}
	if len(stats.TopAssetsByLoss) != 1 || stats.TopAssetsByLoss[0].Value != -50.0 {
		t.Errorf("топ по убыткам: %+v", stats.TopAssetsByLoss)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
