package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradexec/internal/models"
)

// Ошибки репозитория сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

// TradeRepository - работа с таблицей trades (результаты закрытых сделок)
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

const tradeColumns = `position_id, asset, entry_price, exit_price, size, pnl,
	return_pct, reason, emergency, opened_at, closed_at`

// Create сохраняет результат закрытой сделки
func (r *TradeRepository) Create(outcome *models.TradeOutcome) error {
	query := `
		INSERT INTO trades (position_id, asset, entry_price, exit_price, size, pnl, return_pct, reason, emergency, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if outcome.ClosedAt.IsZero() {
		outcome.ClosedAt = time.Now()
	}

	_, err := r.db.Exec(
		query,
		outcome.PositionID,
		outcome.Asset,
		outcome.EntryPrice,
		outcome.ExitPrice,
		outcome.Size,
		outcome.Pnl,
		outcome.ReturnPct,
		outcome.Reason,
		outcome.Emergency,
		outcome.OpenedAt,
		outcome.ClosedAt,
	)
	return err
}

// GetByPositionID возвращает результат сделки по ID позиции
func (r *TradeRepository) GetByPositionID(positionID string) (*models.TradeOutcome, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE position_id = $1`

	outcome := &models.TradeOutcome{}
	err := r.db.QueryRow(query, positionID).Scan(
		&outcome.PositionID,
		&outcome.Asset,
		&outcome.EntryPrice,
		&outcome.ExitPrice,
		&outcome.Size,
		&outcome.Pnl,
		&outcome.ReturnPct,
		&outcome.Reason,
		&outcome.Emergency,
		&outcome.OpenedAt,
		&outcome.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}

	return outcome, nil
}

// GetRecent возвращает последние сделки
func (r *TradeRepository) GetRecent(limit int) ([]*models.TradeOutcome, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		ORDER BY closed_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetSince возвращает сделки, закрытые после указанного времени
func (r *TradeRepository) GetSince(since time.Time) ([]*models.TradeOutcome, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE closed_at >= $1
		ORDER BY closed_at DESC`

	rows, err := r.db.Query(query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// PeriodSummary возвращает количество сделок и суммарный PNL за период
func (r *TradeRepository) PeriodSummary(since time.Time) (int, float64, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(pnl), 0) FROM trades WHERE closed_at >= $1`

	var count int
	var pnl float64
	err := r.db.QueryRow(query, since).Scan(&count, &pnl)
	if err != nil {
		return 0, 0, err
	}

	return count, pnl, nil
}

// TotalSummary возвращает общее количество сделок, суммарный PNL и win rate
func (r *TradeRepository) TotalSummary() (int, float64, float64, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(pnl), 0),
		       COALESCE(AVG(CASE WHEN pnl > 0 THEN 1.0 ELSE 0.0 END), 0)
		FROM trades`

	var count int
	var pnl, winRate float64
	err := r.db.QueryRow(query).Scan(&count, &pnl, &winRate)
	if err != nil {
		return 0, 0, 0, err
	}

	return count, pnl, winRate, nil
}

// CountByReason возвращает количество сделок с указанной причиной выхода за период
func (r *TradeRepository) CountByReason(reason string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM trades WHERE reason = $1 AND closed_at >= $2`

	var count int
	err := r.db.QueryRow(query, reason, since).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// CountEmergency возвращает количество аварийных закрытий за период
func (r *TradeRepository) CountEmergency(since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM trades WHERE emergency = true AND closed_at >= $1`

	var count int
	err := r.db.QueryRow(query, since).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// TopAssetsByPnl возвращает активы с наибольшим суммарным PNL
func (r *TradeRepository) TopAssetsByPnl(limit int) ([]models.AssetStat, error) {
	query := `
		SELECT asset, SUM(pnl) AS total
		FROM trades
		GROUP BY asset
		HAVING SUM(pnl) > 0
		ORDER BY total DESC
		LIMIT $1`

	return r.queryAssetStats(query, limit)
}

// TopAssetsByLoss возвращает активы с наибольшим суммарным убытком
func (r *TradeRepository) TopAssetsByLoss(limit int) ([]models.AssetStat, error) {
	query := `
		SELECT asset, SUM(pnl) AS total
		FROM trades
		GROUP BY asset
		HAVING SUM(pnl) < 0
		ORDER BY total ASC
		LIMIT $1`

	return r.queryAssetStats(query, limit)
}

func (r *TradeRepository) queryAssetStats(query string, limit int) ([]models.AssetStat, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []models.AssetStat
	for rows.Next() {
		var s models.AssetStat
		if err := rows.Scan(&s.Asset, &s.Value); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

func scanTrades(rows *sql.Rows) ([]*models.TradeOutcome, error) {
	var trades []*models.TradeOutcome
	for rows.Next() {
		outcome := &models.TradeOutcome{}
		err := rows.Scan(
			&outcome.PositionID,
			&outcome.Asset,
			&outcome.EntryPrice,
			&outcome.ExitPrice,
			&outcome.Size,
			&outcome.Pnl,
			&outcome.ReturnPct,
			&outcome.Reason,
			&outcome.Emergency,
			&outcome.OpenedAt,
			&outcome.ClosedAt,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, outcome)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}
