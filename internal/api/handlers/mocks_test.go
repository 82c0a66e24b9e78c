package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"tradexec/internal/bot"
	"tradexec/internal/models"
	"tradexec/internal/service"
)

// ErrMockDatabase имитирует ошибку БД в моках
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock Position Service ============

// MockPositionService мок для PositionServiceInterface
type MockPositionService struct {
	active    []models.Position
	history   []*models.Position
	closeErr  error
	getErr    error
	closed    []string
	gotLimit  int
	mu        sync.Mutex
}

// NewMockPositionService создает новый мок сервиса позиций
func NewMockPositionService() *MockPositionService {
	return &MockPositionService{}
}

func (m *MockPositionService) AddActive(pos models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = append(m.active, pos)
}

func (m *MockPositionService) GetActivePositions() []models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *MockPositionService) GetPosition(id string) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	for i := range m.active {
		if m.active[i].ID == id {
			return &m.active[i], nil
		}
	}
	return nil, errors.New("mock: position not found")
}

func (m *MockPositionService) GetHistory(limit int) ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gotLimit = limit
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.history, nil
}

func (m *MockPositionService) ClosePosition(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closeErr != nil {
		return m.closeErr
	}
	for i := range m.active {
		if m.active[i].ID == id {
			m.closed = append(m.closed, id)
			return nil
		}
	}
	return bot.ErrPositionNotFound
}

// ============ Mock Risk Service ============

// MockRiskService мок для RiskServiceInterface
type MockRiskService struct {
	status      models.RiskStatus
	resetErr    error
	haltResets  int
	dailyResets int
}

func NewMockRiskService() *MockRiskService {
	return &MockRiskService{}
}

func (m *MockRiskService) GetStatus() models.RiskStatus {
	return m.status
}

func (m *MockRiskService) ResetHalt() error {
	if m.resetErr != nil {
		return m.resetErr
	}
	m.haltResets++
	return nil
}

func (m *MockRiskService) ResetDailyMetrics() {
	m.dailyResets++
}

// ============ Mock Notification Service ============

// MockNotificationService мок для NotificationServiceInterface
type MockNotificationService struct {
	notifications []*models.Notification
	getErr        error
	clearErr      error
	nextID        int
	mu            sync.Mutex
}

// NewMockNotificationService создает новый мок сервиса уведомлений
func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{nextID: 1}
}

// AddNotification добавляет уведомление в мок
func (m *MockNotificationService) AddNotification(notifType, severity, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notifications = append(m.notifications, &models.Notification{
		ID:        m.nextID,
		Timestamp: time.Now(),
		Type:      notifType,
		Severity:  severity,
		Message:   message,
	})
	m.nextID++
}

func (m *MockNotificationService) GetNotifications(types []string, limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	if limit <= 0 {
		limit = 100
	}

	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[strings.ToUpper(t)] = true
	}

	var result []*models.Notification
	for _, n := range m.notifications {
		if len(wanted) > 0 && !wanted[n.Type] {
			continue
		}
		result = append(result, n)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *MockNotificationService) ClearNotifications() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clearErr != nil {
		return m.clearErr
	}
	m.notifications = nil
	return nil
}

func (m *MockNotificationService) CreateNotification(notif *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, notif)
	return nil
}

// GetNotificationCount возвращает количество уведомлений в моке
func (m *MockNotificationService) GetNotificationCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifications), nil
}

// ============ Mock Stats Service ============

// MockStatsService мок для StatsServiceInterface
type MockStatsService struct {
	stats    *models.Stats
	trades   []*models.TradeOutcome
	getErr   error
	gotLimit int
}

func NewMockStatsService() *MockStatsService {
	return &MockStatsService{stats: &models.Stats{}}
}

func (m *MockStatsService) GetStats() (*models.Stats, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.stats, nil
}

func (m *MockStatsService) GetRecentTrades(limit int) ([]*models.TradeOutcome, error) {
	m.gotLimit = limit
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.trades, nil
}

// ============ Mock Settings Service ============

// MockSettingsService мок для SettingsServiceInterface
type MockSettingsService struct {
	settings  *models.Settings
	getErr    error
	updateErr error
	lastReq   *service.UpdateSettingsRequest
}

func NewMockSettingsService() *MockSettingsService {
	return &MockSettingsService{
		settings: &models.Settings{ID: 1, DryRun: true},
	}
}

func (m *MockSettingsService) GetSettings() (*models.Settings, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.settings, nil
}

func (m *MockSettingsService) UpdateSettings(req *service.UpdateSettingsRequest) (*models.Settings, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	m.lastReq = req
	if req.DryRun != nil {
		m.settings.DryRun = *req.DryRun
	}
	if req.MaxConcurrentPositions != nil {
		if *req.MaxConcurrentPositions < 1 {
			return nil, service.ErrInvalidMaxConcurrentPositions
		}
		m.settings.MaxConcurrentPositions = req.MaxConcurrentPositions
	}
	return m.settings, nil
}

// ============ Mock Account Service ============

// MockAccountService мок для AccountServiceInterface
type MockAccountService struct {
	accounts []*models.GatewayAccount
	getErr   error
	saveErr  error
	saved    map[string][2]string
}

func NewMockAccountService() *MockAccountService {
	return &MockAccountService{saved: make(map[string][2]string)}
}

func (m *MockAccountService) GetAccounts() ([]*models.GatewayAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.accounts, nil
}

func (m *MockAccountService) SaveCredentials(name, apiKey, secretKey string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if apiKey == "" || secretKey == "" {
		return service.ErrEmptyCredentials
	}
	m.saved[name] = [2]string{apiKey, secretKey}
	return nil
}

func (m *MockAccountService) Credentials(name string) (string, string, error) {
	if keys, ok := m.saved[name]; ok {
		return keys[0], keys[1], nil
	}
	return "", "", errors.New("mock: account not found")
}
