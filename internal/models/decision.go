package models

import "time"

// Decision представляет торговый сигнал от источника сигналов.
// Потребляется координатором ровно один раз, после этого не изменяется.
type Decision struct {
	Asset      string    `json:"asset"`
	Action     string    `json:"action"`     // BUY, NONE
	Confidence float64   `json:"confidence"` // [0, 1]
	RiskScore  float64   `json:"risk_score"` // [0, 1], выше = рискованнее
	EntryPrice float64   `json:"entry_price"`
	Timestamp  time.Time `json:"timestamp"`
}

// Действия сигнала
const (
	ActionBuy  = "BUY"
	ActionNone = "NONE"
)

// StopLevels представляет рассчитанные уровни выхода для решения
type StopLevels struct {
	StopLossPrice   float64 `json:"stop_loss_price"`
	StopLossPct     float64 `json:"stop_loss_pct"` // доля от цены входа
	TakeProfitPrice float64 `json:"take_profit_price"`
	TakeProfitPct   float64 `json:"take_profit_pct"`
	Trailing        bool    `json:"trailing"`
}

// MarketSnapshot представляет срез рыночных данных для принятия решений
type MarketSnapshot struct {
	Asset      string    `json:"asset"`
	Price      float64   `json:"price"`
	Volatility float64   `json:"volatility"` // относительная, например 0.02 = 2%
	Liquidity  float64   `json:"liquidity"`  // доступная ликвидность в quote
	Timestamp  time.Time `json:"timestamp"`
}
