package models

import "time"

// ExitRequest представляет запрос на закрытие позиции.
// Несколько конкурентных запросов на одну позицию разрешаются через CAS
// перехода MONITORING -> CLOSING: выигрывает ровно один.
type ExitRequest struct {
	PositionID string    `json:"position_id"`
	Reason     string    `json:"reason"` // stop_loss, take_profit, trailing_stop, emergency, manual
	Price      float64   `json:"price"`  // цена на момент срабатывания
	Timestamp  time.Time `json:"timestamp"`
}

// Причины выхода
const (
	ExitReasonStopLoss     = "stop_loss"
	ExitReasonTakeProfit   = "take_profit"
	ExitReasonTrailingStop = "trailing_stop"
	ExitReasonEmergency    = "emergency"
	ExitReasonManual       = "manual"
	ExitReasonRecovery     = "recovery" // закрытие осиротевшей позиции при восстановлении
)

// TradeOutcome представляет результат закрытой сделки
type TradeOutcome struct {
	PositionID string    `json:"position_id" db:"position_id"`
	Asset      string    `json:"asset" db:"asset"`
	EntryPrice float64   `json:"entry_price" db:"entry_price"`
	ExitPrice  float64   `json:"exit_price" db:"exit_price"`
	Size       float64   `json:"size" db:"size"`
	Pnl        float64   `json:"pnl" db:"pnl"`         // в quote
	ReturnPct  float64   `json:"return_pct" db:"return_pct"` // доля от вложенного
	Reason     string    `json:"reason" db:"reason"`
	Emergency  bool      `json:"emergency" db:"emergency"`
	OpenedAt   time.Time `json:"opened_at" db:"opened_at"`
	ClosedAt   time.Time `json:"closed_at" db:"closed_at"`
}

// Success сообщает, была ли сделка прибыльной
func (o TradeOutcome) Success() bool {
	return o.Pnl > 0
}
