package service

import (
	"tradexec/internal/models"
)

// StatsService предоставляет бизнес-логику для статистики торговли.
//
// Агрегаты (день/неделя/месяц, win rate, срабатывания защитных выходов,
// аварийные закрытия, топы по активам) считаются репозиторием из таблицы
// trades, сервис добавляет историю сделок для дашборда.
type StatsService struct {
	statsRepo StatsRepositoryInterface
	tradeRepo TradeRepositoryInterface
}

// NewStatsService создает новый экземпляр StatsService.
func NewStatsService(statsRepo StatsRepositoryInterface, tradeRepo TradeRepositoryInterface) *StatsService {
	return &StatsService{
		statsRepo: statsRepo,
		tradeRepo: tradeRepo,
	}
}

// GetStats возвращает полную статистику торговли.
func (s *StatsService) GetStats() (*models.Stats, error) {
	return s.statsRepo.GetStats()
}

// GetRecentTrades возвращает последние закрытые сделки.
func (s *StatsService) GetRecentTrades(limit int) ([]*models.TradeOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return s.tradeRepo.GetRecent(limit)
}
