package service

import (
	"errors"
	"testing"
)

// ============================================================
// SettingsService Tests
// ============================================================

func TestSettingsServiceUpdatePartial(t *testing.T) {
	three := 3
	repo := &mockSettingsRepo{settings: allPrefsEnabled()}
	repo.settings.DryRun = true
	svc := NewSettingsService(repo)

	updated, err := svc.UpdateSettings(&UpdateSettingsRequest{MaxConcurrentPositions: &three})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.MaxConcurrentPositions == nil || *updated.MaxConcurrentPositions != 3 {
		t.Errorf("max_concurrent_positions: ожидали 3, получили %v", updated.MaxConcurrentPositions)
	}
	// Непереданные поля не трогаются
	if !updated.DryRun {
		t.Error("dry_run не должен был измениться")
	}
}

func TestSettingsServiceUpdateInvalidMax(t *testing.T) {
	zero := 0
	svc := NewSettingsService(&mockSettingsRepo{settings: allPrefsEnabled()})

	_, err := svc.UpdateSettings(&UpdateSettingsRequest{MaxConcurrentPositions: &zero})
	if !errors.Is(err, ErrInvalidMaxConcurrentPositions) {
		t.Errorf("ожидали ErrInvalidMaxConcurrentPositions, получили %v", err)
	}
}

func TestSettingsServiceClearMax(t *testing.T) {
	five := 5
	repo := &mockSettingsRepo{settings: allPrefsEnabled()}
	repo.settings.MaxConcurrentPositions = &five
	svc := NewSettingsService(repo)

	updated, err := svc.UpdateSettings(&UpdateSettingsRequest{ClearMaxConcurrentPositions: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.MaxConcurrentPositions != nil {
		t.Errorf("ожидали nil после сброса, получили %v", *updated.MaxConcurrentPositions)
	}
}

func TestSettingsServiceUpdatePrefs(t *testing.T) {
	repo := &mockSettingsRepo{settings: allPrefsEnabled()}
	svc := NewSettingsService(repo)

	prefs := repo.settings.NotificationPrefs
	prefs.TradeOpened = false

	updated, err := svc.UpdateSettings(&UpdateSettingsRequest{NotificationPrefs: &prefs})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.NotificationPrefs.TradeOpened {
		t.Error("trade_opened должен быть выключен")
	}
	if !updated.NotificationPrefs.Emergency {
		t.Error("emergency должен остаться включенным")
	}
}

func TestSettingsServiceUpdateDryRun(t *testing.T) {
	repo := &mockSettingsRepo{settings: allPrefsEnabled()}
	repo.settings.DryRun = true
	svc := NewSettingsService(repo)

	if err := svc.UpdateDryRun(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.settings.DryRun {
		t.Error("dry_run должен быть выключен")
	}
}

func TestSettingsServiceGetPassthrough(t *testing.T) {
	wantErr := errors.New("db down")
	svc := NewSettingsService(&mockSettingsRepo{getErr: wantErr})

	if _, err := svc.GetSettings(); !errors.Is(err, wantErr) {
		t.Errorf("ожидали %v, получили %v", wantErr, err)
	}
}
