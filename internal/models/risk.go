package models

import "time"

// RiskBudget представляет текущее состояние риск-бюджета.
// Изменяется только через RiskManager под единым мьютексом.
type RiskBudget struct {
	CurrentDrawdown float64   `json:"current_drawdown"` // накопленные потери с последнего сброса, доля капитала
	DailyLoss       float64   `json:"daily_loss"`       // потери за текущий день
	OpenExposure    float64   `json:"open_exposure"`    // суммарный размер открытых позиций
	LastDailyReset  time.Time `json:"last_daily_reset"`
}

// PerformanceStats представляет историю результатов для корректировки размера
type PerformanceStats struct {
	TotalTrades      int     `json:"total_trades"`
	SuccessfulTrades int     `json:"successful_trades"`
	SuccessRate      float64 `json:"success_rate"`   // [0, 1]
	AverageReturn    float64 `json:"average_return"` // средняя доходность на сделку
}

// RiskStatus представляет снимок состояния риск-менеджера для API
type RiskStatus struct {
	Budget      RiskBudget       `json:"budget"`
	Performance PerformanceStats `json:"performance"`
	Halted      bool             `json:"halted"`
	HaltReason  string           `json:"halt_reason,omitempty"`
}
