package models

import "time"

// Notification представляет уведомление о событии жизненного цикла
type Notification struct {
	ID         int                    `json:"id" db:"id"`
	Timestamp  time.Time              `json:"timestamp" db:"timestamp"`
	Type       string                 `json:"type" db:"type"`         // TRADE_OPENED, TRADE_CLOSED, RISK_LIMIT, EMERGENCY, CRITICAL_FAILURE, RECOVERY, ERROR
	Severity   string                 `json:"severity" db:"severity"` // info, warn, error
	PositionID string                 `json:"position_id,omitempty" db:"position_id"`
	Message    string                 `json:"message" db:"message"`
	Meta       map[string]interface{} `json:"meta,omitempty" db:"meta"` // дополнительные данные (JSON в БД)
}

// Типы уведомлений
const (
	NotificationTypeTradeOpened     = "TRADE_OPENED"     // позиция открыта
	NotificationTypeTradeClosed     = "TRADE_CLOSED"     // позиция закрыта с результатом
	NotificationTypeRiskLimit       = "RISK_LIMIT"       // достигнут лимит риска, вход остановлен
	NotificationTypeEmergency       = "EMERGENCY"        // аварийное действие
	NotificationTypeCriticalFailure = "CRITICAL_FAILURE" // невосстановимый отказ, нужно вмешательство
	NotificationTypeRecovery        = "RECOVERY"         // восстановление состояния после рестарта
	NotificationTypeError           = "ERROR"            // ошибка API/ордера
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
