package models

import "time"

// Stats представляет агрегированную статистику торговли
type Stats struct {
	TotalTrades     int             `json:"total_trades"`
	TotalPnl        float64         `json:"total_pnl"`
	WinRate         float64         `json:"win_rate"` // [0, 1]
	TodayTrades     int             `json:"today_trades"`
	TodayPnl        float64         `json:"today_pnl"`
	WeekTrades      int             `json:"week_trades"`
	WeekPnl         float64         `json:"week_pnl"`
	MonthTrades     int             `json:"month_trades"`
	MonthPnl        float64         `json:"month_pnl"`
	StopLossStats   StopLossStats   `json:"stop_loss_stats"`
	EmergencyStats  EmergencyStats  `json:"emergency_stats"`
	TopAssetsByPnl  []AssetStat     `json:"top_assets_by_pnl"`  // топ-5
	TopAssetsByLoss []AssetStat     `json:"top_assets_by_loss"` // топ-5
}

// StopLossStats представляет статистику срабатываний Stop Loss
type StopLossStats struct {
	Today  int             `json:"today"`
	Week   int             `json:"week"`
	Month  int             `json:"month"`
	Events []StopLossEvent `json:"events"`
}

// StopLossEvent представляет событие срабатывания SL
type StopLossEvent struct {
	Asset     string    `json:"asset"`
	Trailing  bool      `json:"trailing"` // сработал подтянутый уровень
	Timestamp time.Time `json:"timestamp"`
}

// EmergencyStats представляет статистику аварийных выходов
type EmergencyStats struct {
	Today  int              `json:"today"`
	Week   int              `json:"week"`
	Month  int              `json:"month"`
	Events []EmergencyEvent `json:"events"`
}

// EmergencyEvent представляет событие аварийного выхода
type EmergencyEvent struct {
	Asset     string    `json:"asset"`
	Method    string    `json:"method"` // MARKET_ORDER, SPLIT_ORDERS, BACKUP
	Reasons   []string  `json:"reasons"`
	Timestamp time.Time `json:"timestamp"`
}

// AssetStat представляет статистику по активу
type AssetStat struct {
	Asset string  `json:"asset"`
	Value float64 `json:"value"` // количество сделок или PNL
}
