package models

import "time"

// Position представляет торговую позицию и её runtime состояние
type Position struct {
	ID            string     `json:"id" db:"id"`                         // uuid
	Asset         string     `json:"asset" db:"asset"`                   // BTCUSDT
	Status        string     `json:"status" db:"status"`                 // PENDING ... FAILED
	EntryPrice    float64    `json:"entry_price" db:"entry_price"`       // средняя цена входа
	Size          float64    `json:"size" db:"size"`                     // фактически исполненный размер
	RequestedSize float64    `json:"requested_size" db:"requested_size"` // запрошенный размер
	StopLoss      StopLoss   `json:"stop_loss" db:"-"`
	TakeProfit    TakeProfit `json:"take_profit" db:"-"`
	CurrentPrice  float64    `json:"current_price" db:"-"`  // обновляется монитором
	UnrealizedPnl float64    `json:"unrealized_pnl" db:"-"` // нереализованный PNL
	OpenedAt      time.Time  `json:"opened_at" db:"opened_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	ExitPrice     float64    `json:"exit_price,omitempty" db:"exit_price"`
	ExitReason    string     `json:"exit_reason,omitempty" db:"exit_reason"`
	LastUpdate    time.Time  `json:"last_update" db:"-"`
}

// StopLoss представляет уровни защитного выхода позиции
type StopLoss struct {
	Initial    float64 `json:"initial" db:"stop_loss_initial"`     // стартовый уровень
	Trailing   float64 `json:"trailing" db:"stop_loss_trailing"`   // подтянутый уровень (только вверх для long)
	IsTrailing bool    `json:"is_trailing" db:"stop_loss_is_trailing"`
}

// TakeProfit представляет целевой уровень фиксации прибыли
type TakeProfit struct {
	Target float64 `json:"target" db:"take_profit_target"`
}

// Статусы позиции (state machine)
const (
	StatusPending         = "PENDING"          // решение принято, вход не подтвержден
	StatusOpen            = "OPEN"             // вход исполнен, мониторинг не запущен
	StatusMonitoring      = "MONITORING"       // активный мониторинг SL/TP/trailing
	StatusClosing         = "CLOSING"          // процесс выхода
	StatusClosed          = "CLOSED"           // штатное закрытие
	StatusEmergencyClosed = "EMERGENCY_CLOSED" // аварийное закрытие
	StatusRejected        = "REJECTED"         // отклонено до входа
	StatusFailed          = "FAILED"           // невосстановимая ошибка, требуется вмешательство
)

// Effective возвращает действующий уровень stop loss с учетом трейлинга
func (s StopLoss) Effective() float64 {
	if s.IsTrailing && s.Trailing > s.Initial {
		return s.Trailing
	}
	return s.Initial
}

// IsTerminal сообщает, является ли статус конечным
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusClosed, StatusEmergencyClosed, StatusRejected, StatusFailed:
		return true
	}
	return false
}
