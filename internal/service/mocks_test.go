package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"tradexec/internal/models"
	"tradexec/internal/repository"
)

// Сентинелы для mock-реализаций
var (
	errRegistryMiss = errors.New("position not found in registry")
	errAccountMiss  = repository.ErrAccountNotFound
)

// ============================================================
// Ручные mock-реализации интерфейсов для тестов
// ============================================================

// mockPositionRepo - mock репозитория позиций
type mockPositionRepo struct {
	CreateFn          func(pos *models.Position) error
	UpdateFn          func(pos *models.Position) error
	UpdateStatusFn    func(id, status string) error
	GetByIDFn         func(id string) (*models.Position, error)
	GetActiveFn       func() ([]*models.Position, error)
	GetRecentFn       func(limit int) ([]*models.Position, error)
	GetByStatusFn     func(status string) ([]*models.Position, error)
	CountActiveFn     func() (int, error)
	DeleteOlderThanFn func(cutoff time.Time) (int64, error)
}

func (m *mockPositionRepo) Create(pos *models.Position) error {
	return m.CreateFn(pos)
}

func (m *mockPositionRepo) Update(pos *models.Position) error {
	return m.UpdateFn(pos)
}

func (m *mockPositionRepo) UpdateStatus(id, status string) error {
	return m.UpdateStatusFn(id, status)
}

func (m *mockPositionRepo) GetByID(id string) (*models.Position, error) {
	return m.GetByIDFn(id)
}

func (m *mockPositionRepo) GetActive() ([]*models.Position, error) {
	return m.GetActiveFn()
}

func (m *mockPositionRepo) GetRecent(limit int) ([]*models.Position, error) {
	return m.GetRecentFn(limit)
}

func (m *mockPositionRepo) GetByStatus(status string) ([]*models.Position, error) {
	return m.GetByStatusFn(status)
}

func (m *mockPositionRepo) CountActive() (int, error) {
	return m.CountActiveFn()
}

func (m *mockPositionRepo) DeleteOlderThan(cutoff time.Time) (int64, error) {
	return m.DeleteOlderThanFn(cutoff)
}

// mockRegistry - mock реестра живых позиций
type mockRegistry struct {
	positions map[string]models.Position
}

func newMockRegistry(positions ...models.Position) *mockRegistry {
	m := &mockRegistry{positions: make(map[string]models.Position)}
	for _, p := range positions {
		m.positions[p.ID] = p
	}
	return m
}

func (m *mockRegistry) Get(id string) (models.Position, error) {
	if pos, ok := m.positions[id]; ok {
		return pos, nil
	}
	return models.Position{}, errRegistryMiss
}

func (m *mockRegistry) List() []models.Position {
	out := make([]models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out
}

func (m *mockRegistry) Count() int {
	return len(m.positions)
}

// mockCloser - mock координатора закрытия
type mockCloser struct {
	mu       sync.Mutex
	requests []*models.ExitRequest
	err      error
}

func (m *mockCloser) HandleExitRequest(ctx context.Context, req *models.ExitRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.err
}

// mockRiskProvider - mock риск-менеджера
type mockRiskProvider struct {
	status     models.RiskStatus
	halted     bool
	haltReason string
	resets     int
	dailyReset int
}

func (m *mockRiskProvider) Status() models.RiskStatus {
	return m.status
}

func (m *mockRiskProvider) Halted() (bool, string) {
	return m.halted, m.haltReason
}

func (m *mockRiskProvider) ResetHalt() {
	m.resets++
	m.halted = false
}

func (m *mockRiskProvider) ResetDailyMetrics() {
	m.dailyReset++
}

// mockNotificationRepo - mock репозитория уведомлений
type mockNotificationRepo struct {
	created     []*models.Notification
	recent      []*models.Notification
	byTypes     []*models.Notification
	byPosition  []*models.Notification
	deleteAlls  int
	createErr   error
	gotTypes    []string
	gotLimit    int
}

func (m *mockNotificationRepo) Create(notif *models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, notif)
	return nil
}

func (m *mockNotificationRepo) GetRecent(limit int) ([]*models.Notification, error) {
	m.gotLimit = limit
	return m.recent, nil
}

func (m *mockNotificationRepo) GetByTypes(types []string, limit int) ([]*models.Notification, error) {
	m.gotTypes = types
	m.gotLimit = limit
	return m.byTypes, nil
}

func (m *mockNotificationRepo) GetByPosition(positionID string) ([]*models.Notification, error) {
	return m.byPosition, nil
}

func (m *mockNotificationRepo) DeleteAll() error {
	m.deleteAlls++
	return nil
}

func (m *mockNotificationRepo) DeleteOlderThan(cutoff time.Time) (int64, error) {
	return 0, nil
}

// mockSettingsRepo - mock репозитория настроек
type mockSettingsRepo struct {
	settings  *models.Settings
	getErr    error
	updateErr error
	updated   *models.Settings
}

func (m *mockSettingsRepo) Get() (*models.Settings, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.settings, nil
}

func (m *mockSettingsRepo) Update(settings *models.Settings) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated = settings
	return nil
}

func (m *mockSettingsRepo) UpdateNotificationPrefs(prefs models.NotificationPreferences) error {
	m.settings.NotificationPrefs = prefs
	return nil
}

func (m *mockSettingsRepo) UpdateDryRun(dryRun bool) error {
	m.settings.DryRun = dryRun
	return nil
}

// mockAccountRepo - mock репозитория аккаунтов
type mockAccountRepo struct {
	accounts   map[string]*models.GatewayAccount
	updateKeys map[string][2]string
}

func newMockAccountRepo(accounts ...*models.GatewayAccount) *mockAccountRepo {
	m := &mockAccountRepo{
		accounts:   make(map[string]*models.GatewayAccount),
		updateKeys: make(map[string][2]string),
	}
	for _, a := range accounts {
		m.accounts[a.Name] = a
	}
	return m
}

func (m *mockAccountRepo) Create(account *models.GatewayAccount) error {
	m.accounts[account.Name] = account
	return nil
}

func (m *mockAccountRepo) GetByName(name string) (*models.GatewayAccount, error) {
	if a, ok := m.accounts[name]; ok {
		return a, nil
	}
	return nil, errAccountMiss
}

func (m *mockAccountRepo) GetAll() ([]*models.GatewayAccount, error) {
	out := make([]*models.GatewayAccount, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (m *mockAccountRepo) UpdateKeys(name, apiKey, secretKey string) error {
	a, ok := m.accounts[name]
	if !ok {
		return errAccountMiss
	}
	a.APIKey = apiKey
	a.SecretKey = secretKey
	m.updateKeys[name] = [2]string{apiKey, secretKey}
	return nil
}

func (m *mockAccountRepo) UpdateBalance(name string, balance float64) error {
	a, ok := m.accounts[name]
	if !ok {
		return errAccountMiss
	}
	a.Balance = balance
	return nil
}

func (m *mockAccountRepo) UpdateConnection(name string, connected bool, lastError string) error {
	a, ok := m.accounts[name]
	if !ok {
		return errAccountMiss
	}
	a.Connected = connected
	a.LastError = lastError
	return nil
}

func (m *mockAccountRepo) Delete(name string) error {
	delete(m.accounts, name)
	return nil
}

// mockStatsRepo - mock репозитория статистики
type mockStatsRepo struct {
	stats *models.Stats
	err   error
}

func (m *mockStatsRepo) GetStats() (*models.Stats, error) {
	return m.stats, m.err
}

// mockTradeRepo - mock репозитория сделок
type mockTradeRepo struct {
	recent   []*models.TradeOutcome
	gotLimit int
}

func (m *mockTradeRepo) Create(outcome *models.TradeOutcome) error { return nil }

func (m *mockTradeRepo) GetByPositionID(positionID string) (*models.TradeOutcome, error) {
	return nil, nil
}

func (m *mockTradeRepo) GetRecent(limit int) ([]*models.TradeOutcome, error) {
	m.gotLimit = limit
	return m.recent, nil
}

func (m *mockTradeRepo) GetSince(since time.Time) ([]*models.TradeOutcome, error) {
	return nil, nil
}

func (m *mockTradeRepo) PeriodSummary(since time.Time) (int, float64, error) {
	return 0, 0, nil
}

func (m *mockTradeRepo) TotalSummary() (int, float64, float64, error) {
	return 0, 0, 0, nil
}

// mockBroadcaster - mock WebSocket hub
type mockBroadcaster struct {
	notifs []*models.Notification
}

func (m *mockBroadcaster) BroadcastNotification(notif *models.Notification) {
	m.notifs = append(m.notifs, notif)
}
