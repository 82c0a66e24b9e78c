package models

import "time"

// Settings представляет глобальные настройки движка
type Settings struct {
	ID                     int                     `json:"id" db:"id"`
	MaxConcurrentPositions *int                    `json:"max_concurrent_positions" db:"max_concurrent_positions"` // null = без ограничений
	DryRun                 bool                    `json:"dry_run" db:"dry_run"`                                   // симуляция шлюза
	NotificationPrefs      NotificationPreferences `json:"notification_prefs" db:"notification_prefs"`             // JSON в БД
	UpdatedAt              time.Time               `json:"updated_at" db:"updated_at"`
}

// NotificationPreferences представляет настройки уведомлений
type NotificationPreferences struct {
	TradeOpened     bool `json:"trade_opened"`
	TradeClosed     bool `json:"trade_closed"`
	RiskLimit       bool `json:"risk_limit"`
	Emergency       bool `json:"emergency"`
	CriticalFailure bool `json:"critical_failure"`
	Recovery        bool `json:"recovery"`
	APIError        bool `json:"api_error"`
}
