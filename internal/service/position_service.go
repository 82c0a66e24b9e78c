package service

import (
	"context"
	"errors"
	"time"

	"tradexec/internal/models"
)

// Ошибки сервиса позиций
var (
	ErrPositionNotClosable = errors.New("position is not in a closable state")
)

// PositionService предоставляет бизнес-логику для работы с позициями.
//
// Живые позиции живут в реестре торгового ядра, история в БД.
// Сервис объединяет оба источника: runtime данные (current_price,
// unrealized_pnl) берутся из реестра, закрытые позиции из репозитория.
type PositionService struct {
	registry     PositionRegistryReader
	closer       PositionCloser
	positionRepo PositionRepositoryInterface
}

// NewPositionService создает новый экземпляр PositionService.
func NewPositionService(
	registry PositionRegistryReader,
	closer PositionCloser,
	positionRepo PositionRepositoryInterface,
) *PositionService {
	return &PositionService{
		registry:     registry,
		closer:       closer,
		positionRepo: positionRepo,
	}
}

// GetActivePositions возвращает открытые позиции с runtime состоянием.
func (s *PositionService) GetActivePositions() []models.Position {
	return s.registry.List()
}

// GetPosition возвращает позицию по ID.
//
// Сначала ищет в реестре (живые позиции с актуальной ценой),
// затем в БД (закрытые и исторические).
func (s *PositionService) GetPosition(id string) (*models.Position, error) {
	if pos, err := s.registry.Get(id); err == nil {
		return &pos, nil
	}
	return s.positionRepo.GetByID(id)
}

// GetHistory возвращает последние позиции из БД, включая закрытые.
func (s *PositionService) GetHistory(limit int) ([]*models.Position, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	return s.positionRepo.GetRecent(limit)
}

// ClosePosition инициирует ручное закрытие позиции.
//
// Запрос проходит тот же путь, что и выходы монитора: координатор
// захватывает переход в CLOSING, поэтому ручное закрытие безопасно
// конкурирует со срабатыванием stop loss.
func (s *PositionService) ClosePosition(ctx context.Context, id string) error {
	pos, err := s.registry.Get(id)
	if err != nil {
		return err
	}

	if pos.Status != models.StatusOpen && pos.Status != models.StatusMonitoring {
		return ErrPositionNotClosable
	}

	req := &models.ExitRequest{
		PositionID: id,
		Reason:     models.ExitReasonManual,
		Price:      pos.CurrentPrice,
		Timestamp:  time.Now(),
	}
	return s.closer.HandleExitRequest(ctx, req)
}
