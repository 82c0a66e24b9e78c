package service

import (
	"errors"
	"testing"

	"tradexec/internal/models"
)

// ============================================================
// RiskService Tests
// ============================================================

func TestRiskServiceGetStatus(t *testing.T) {
	provider := &mockRiskProvider{
		status: models.RiskStatus{
			Halted:     true,
			HaltReason: "daily loss limit",
		},
	}
	svc := NewRiskService(provider)

	status := svc.GetStatus()
	if !status.Halted {
		t.Error("ожидали halted=true")
	}
	if status.HaltReason != "daily loss limit" {
		t.Errorf("ожидали 'daily loss limit', получили %q", status.HaltReason)
	}
}

func TestRiskServiceResetHalt(t *testing.T) {
	provider := &mockRiskProvider{halted: true, haltReason: "drawdown"}
	svc := NewRiskService(provider)

	if err := svc.ResetHalt(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.resets != 1 {
		t.Errorf("ожидали 1 сброс, получили %d", provider.resets)
	}
	if provider.halted {
		t.Error("остановка должна быть снята")
	}
}

func TestRiskServiceResetHaltNotHalted(t *testing.T) {
	provider := &mockRiskProvider{}
	svc := NewRiskService(provider)

	if err := svc.ResetHalt(); !errors.Is(err, ErrNotHalted) {
		t.Errorf("ожидали ErrNotHalted, получили %v", err)
	}
	if provider.resets != 0 {
		t.Errorf("сброс не должен был вызываться, получили %d", provider.resets)
	}
}

func TestRiskServiceResetDailyMetrics(t *testing.T) {
	provider := &mockRiskProvider{}
	svc := NewRiskService(provider)

	svc.ResetDailyMetrics()
	if provider.dailyReset != 1 {
		t.Errorf("ожидали 1 суточный сброс, получили %d", provider.dailyReset)
	}
}
