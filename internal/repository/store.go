package repository

import (
	"context"
	"database/sql"
	"errors"

	"tradexec/internal/models"
)

// Store - фасад персистентности для торгового ядра
//
// Ядро работает через узкие интерфейсы (PositionStore, PositionLoader,
// NotificationSink), Store реализует их поверх репозиториев.
type Store struct {
	Positions     *PositionRepository
	Trades        *TradeRepository
	Orders        *OrderRepository
	Notifications *NotificationRepository
	Settings      *SettingsRepository
	Accounts      *AccountRepository
	Stats         *StatsRepository
}

// NewStore создает фасад над всеми репозиториями
func NewStore(db *sql.DB) *Store {
	return &Store{
		Positions:     NewPositionRepository(db),
		Trades:        NewTradeRepository(db),
		Orders:        NewOrderRepository(db),
		Notifications: NewNotificationRepository(db),
		Settings:      NewSettingsRepository(db),
		Accounts:      NewAccountRepository(db),
		Stats:         NewStatsRepository(db),
	}
}

// SavePosition сохраняет новую позицию
func (s *Store) SavePosition(ctx context.Context, pos *models.Position) error {
	return s.Positions.Create(pos)
}

// UpdatePosition обновляет состояние позиции
// Повторное сохранение до Create (гонка при восстановлении) деградирует в Create
func (s *Store) UpdatePosition(ctx context.Context, pos *models.Position) error {
	err := s.Positions.Update(pos)
	if errors.Is(err, ErrPositionNotFound) {
		return s.Positions.Create(pos)
	}
	return err
}

// SaveOutcome сохраняет результат закрытой сделки
func (s *Store) SaveOutcome(ctx context.Context, outcome *models.TradeOutcome) error {
	return s.Trades.Create(outcome)
}

// GetActivePositions возвращает позиции в нетерминальных статусах
func (s *Store) GetActivePositions(ctx context.Context) ([]*models.Position, error) {
	return s.Positions.GetActive()
}

// SaveNotification сохраняет уведомление
func (s *Store) SaveNotification(ctx context.Context, notif *models.Notification) error {
	return s.Notifications.Create(notif)
}
