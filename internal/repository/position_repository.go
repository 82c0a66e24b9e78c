package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradexec/internal/models"
)

// Ошибки репозитория позиций
var (
	ErrPositionNotFound = errors.New("position not found")
)

// PositionRepository - работа с таблицей positions
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый экземпляр репозитория
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

const positionColumns = `id, asset, status, entry_price, size, requested_size,
	stop_loss_initial, stop_loss_trailing, stop_loss_is_trailing, take_profit_target,
	opened_at, closed_at, exit_price, exit_reason`

// Create сохраняет новую позицию
func (r *PositionRepository) Create(pos *models.Position) error {
	query := `
		INSERT INTO positions (id, asset, status, entry_price, size, requested_size, stop_loss_initial, stop_loss_trailing, stop_loss_is_trailing, take_profit_target, opened_at, closed_at, exit_price, exit_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = time.Now()
	}

	_, err := r.db.Exec(
		query,
		pos.ID,
		pos.Asset,
		pos.Status,
		pos.EntryPrice,
		pos.Size,
		pos.RequestedSize,
		pos.StopLoss.Initial,
		pos.StopLoss.Trailing,
		pos.StopLoss.IsTrailing,
		pos.TakeProfit.Target,
		pos.OpenedAt,
		pos.ClosedAt,
		pos.ExitPrice,
		pos.ExitReason,
	)
	return err
}

// Update обновляет состояние позиции
func (r *PositionRepository) Update(pos *models.Position) error {
	query := `
		UPDATE positions
		SET status = $1, entry_price = $2, size = $3, stop_loss_initial = $4, stop_loss_trailing = $5, stop_loss_is_trailing = $6, take_profit_target = $7, closed_at = $8, exit_price = $9, exit_reason = $10
		WHERE id = $11`

	result, err := r.db.Exec(
		query,
		pos.Status,
		pos.EntryPrice,
		pos.Size,
		pos.StopLoss.Initial,
		pos.StopLoss.Trailing,
		pos.StopLoss.IsTrailing,
		pos.TakeProfit.Target,
		pos.ClosedAt,
		pos.ExitPrice,
		pos.ExitReason,
		pos.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrPositionNotFound
	}

	return nil
}

// UpdateStatus обновляет только статус позиции
func (r *PositionRepository) UpdateStatus(id string, status string) error {
	query := `UPDATE positions SET status = $1 WHERE id = $2`

	result, err := r.db.Exec(query, status, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrPositionNotFound
	}

	return nil
}

// GetByID возвращает позицию по ID
func (r *PositionRepository) GetByID(id string) (*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	pos, err := scanPosition(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	return pos, nil
}

// GetActive возвращает позиции в нетерминальных статусах
// Используется восстановлением после рестарта
func (r *PositionRepository) GetActive() ([]*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE status IN ($1, $2, $3, $4)
		ORDER BY opened_at`

	rows, err := r.db.Query(query,
		models.StatusPending,
		models.StatusOpen,
		models.StatusMonitoring,
		models.StatusClosing,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetRecent возвращает последние позиции (включая закрытые)
func (r *PositionRepository) GetRecent(limit int) ([]*models.Position, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + positionColumns + `
		FROM positions
		ORDER BY opened_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetByStatus возвращает позиции в указанном статусе
func (r *PositionRepository) GetByStatus(status string) ([]*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE status = $1
		ORDER BY opened_at DESC`

	rows, err := r.db.Query(query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

// CountActive возвращает количество открытых позиций
func (r *PositionRepository) CountActive() (int, error) {
	query := `SELECT COUNT(*) FROM positions WHERE status IN ($1, $2, $3, $4)`

	var count int
	err := r.db.QueryRow(query,
		models.StatusPending,
		models.StatusOpen,
		models.StatusMonitoring,
		models.StatusClosing,
	).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// DeleteOlderThan удаляет терминальные позиции старше указанного времени
func (r *PositionRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM positions
		WHERE status IN ($1, $2, $3, $4) AND opened_at < $5`

	result, err := r.db.Exec(query,
		models.StatusClosed,
		models.StatusEmergencyClosed,
		models.StatusRejected,
		models.StatusFailed,
		cutoff,
	)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// rowScanner покрывает *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*models.Position, error) {
	pos := &models.Position{}
	var exitReason sql.NullString
	var exitPrice sql.NullFloat64

	err := row.Scan(
		&pos.ID,
		&pos.Asset,
		&pos.Status,
		&pos.EntryPrice,
		&pos.Size,
		&pos.RequestedSize,
		&pos.StopLoss.Initial,
		&pos.StopLoss.Trailing,
		&pos.StopLoss.IsTrailing,
		&pos.TakeProfit.Target,
		&pos.OpenedAt,
		&pos.ClosedAt,
		&exitPrice,
		&exitReason,
	)
	if err != nil {
		return nil, err
	}

	pos.ExitPrice = exitPrice.Float64
	pos.ExitReason = exitReason.String
	return pos, nil
}

func scanPositions(rows *sql.Rows) ([]*models.Position, error) {
	var positions []*models.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return positions, nil
}
