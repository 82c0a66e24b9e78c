package service

import (
	"context"
	"time"

	"tradexec/internal/models"
	"tradexec/internal/repository"
)

// PositionRepositoryInterface определяет интерфейс репозитория позиций
type PositionRepositoryInterface interface {
	Create(pos *models.Position) error
	Update(pos *models.Position) error
	UpdateStatus(id string, status string) error
	GetByID(id string) (*models.Position, error)
	GetActive() ([]*models.Position, error)
	GetRecent(limit int) ([]*models.Position, error)
	GetByStatus(status string) ([]*models.Position, error)
	CountActive() (int, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// TradeRepositoryInterface определяет интерфейс репозитория сделок
type TradeRepositoryInterface interface {
	Create(outcome *models.TradeOutcome) error
	GetByPositionID(positionID string) (*models.TradeOutcome, error)
	GetRecent(limit int) ([]*models.TradeOutcome, error)
	GetSince(since time.Time) ([]*models.TradeOutcome, error)
	PeriodSummary(since time.Time) (int, float64, error)
	TotalSummary() (int, float64, float64, error)
}

// NotificationRepositoryInterface определяет интерфейс репозитория уведомлений
type NotificationRepositoryInterface interface {
	Create(notif *models.Notification) error
	GetRecent(limit int) ([]*models.Notification, error)
	GetByTypes(types []string, limit int) ([]*models.Notification, error)
	GetByPosition(positionID string) ([]*models.Notification, error)
	DeleteAll() error
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// SettingsRepositoryInterface определяет интерфейс репозитория настроек
type SettingsRepositoryInterface interface {
	Get() (*models.Settings, error)
	Update(settings *models.Settings) error
	UpdateNotificationPrefs(prefs models.NotificationPreferences) error
	UpdateDryRun(dryRun bool) error
}

// AccountRepositoryInterface определяет интерфейс репозитория аккаунтов шлюза
type AccountRepositoryInterface interface {
	Create(account *models.GatewayAccount) error
	GetByName(name string) (*models.GatewayAccount, error)
	GetAll() ([]*models.GatewayAccount, error)
	UpdateKeys(name, apiKey, secretKey string) error
	UpdateBalance(name string, balance float64) error
	UpdateConnection(name string, connected bool, lastError string) error
	Delete(name string) error
}

// StatsRepositoryInterface определяет интерфейс репозитория статистики
type StatsRepositoryInterface interface {
	GetStats() (*models.Stats, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ PositionRepositoryInterface = (*repository.PositionRepository)(nil)
var _ TradeRepositoryInterface = (*repository.TradeRepository)(nil)
var _ NotificationRepositoryInterface = (*repository.NotificationRepository)(nil)
var _ SettingsRepositoryInterface = (*repository.SettingsRepository)(nil)
var _ AccountRepositoryInterface = (*repository.AccountRepository)(nil)
var _ StatsRepositoryInterface = (*repository.StatsRepository)(nil)

// ============ Интерфейсы торгового ядра ============

// PositionRegistryReader - доступ на чтение к реестру позиций в памяти
type PositionRegistryReader interface {
	Get(id string) (models.Position, error)
	List() []models.Position
	Count() int
}

// PositionCloser инициирует закрытие позиции
// Реализуется координатором исполнения, конкурентные запросы
// разрешаются через CAS перехода статуса
type PositionCloser interface {
	HandleExitRequest(ctx context.Context, req *models.ExitRequest) error
}

// RiskStatusProvider - доступ к состоянию риск-менеджера
type RiskStatusProvider interface {
	Status() models.RiskStatus
	Halted() (bool, string)
	ResetHalt()
	ResetDailyMetrics()
}

// ============ Интерфейсы сервисов для Dependency Injection ============

// PositionServiceInterface определяет интерфейс сервиса позиций
type PositionServiceInterface interface {
	GetActivePositions() []models.Position
	GetPosition(id string) (*models.Position, error)
	GetHistory(limit int) ([]*models.Position, error)
	ClosePosition(ctx context.Context, id string) error
}

// RiskServiceInterface определяет интерфейс сервиса рисков
type RiskServiceInterface interface {
	GetStatus() models.RiskStatus
	ResetHalt() error
	ResetDailyMetrics()
}

// NotificationServiceInterface определяет интерфейс сервиса уведомлений
type NotificationServiceInterface interface {
	GetNotifications(types []string, limit int) ([]*models.Notification, error)
	ClearNotifications() error
	CreateNotification(notif *models.Notification) error
}

// SettingsServiceInterface определяет интерфейс сервиса настроек
type SettingsServiceInterface interface {
	GetSettings() (*models.Settings, error)
	UpdateSettings(req *UpdateSettingsRequest) (*models.Settings, error)
}

// StatsServiceInterface определяет интерфейс сервиса статистики
type StatsServiceInterface interface {
	GetStats() (*models.Stats, error)
	GetRecentTrades(limit int) ([]*models.TradeOutcome, error)
}

// AccountServiceInterface определяет интерфейс сервиса аккаунтов шлюза
type AccountServiceInterface interface {
	GetAccounts() ([]*models.GatewayAccount, error)
	SaveCredentials(name, apiKey, secretKey string) error
	Credentials(name string) (string, string, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ PositionServiceInterface = (*PositionService)(nil)
var _ RiskServiceInterface = (*RiskService)(nil)
var _ NotificationServiceInterface = (*NotificationService)(nil)
var _ SettingsServiceInterface = (*SettingsService)(nil)
var _ StatsServiceInterface = (*StatsService)(nil)
var _ AccountServiceInterface = (*AccountService)(nil)
