package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradexec/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository - работа с таблицей orders (журнал ордеров к шлюзу)
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, position_id, order_id, side, purpose, chunk_index,
	quantity, filled_qty, price_avg, status, error_message, created_at, filled_at`

// Create создает запись об ордере
func (r *OrderRepository) Create(order *models.OrderRecord) error {
	query := `
		INSERT INTO orders (position_id, order_id, side, purpose, chunk_index, quantity, filled_qty, price_avg, status, error_message, created_at, filled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	return r.db.QueryRow(
		query,
		order.PositionID,
		order.OrderID,
		order.Side,
		order.Purpose,
		order.ChunkIndex,
		order.Quantity,
		order.FilledQty,
		order.PriceAvg,
		order.Status,
		order.ErrorMessage,
		order.CreatedAt,
		order.FilledAt,
	).Scan(&order.ID)
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id int) (*models.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// GetByPositionID возвращает все ордера позиции
func (r *OrderRepository) GetByPositionID(positionID string) ([]*models.OrderRecord, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE position_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(query, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

// GetRecent возвращает последние N ордеров
func (r *OrderRepository) GetRecent(limit int) ([]*models.OrderRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

// GetByPurpose возвращает ордера с определенным назначением за период
func (r *OrderRepository) GetByPurpose(purpose string, since time.Time) ([]*models.OrderRecord, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE purpose = $1 AND created_at >= $2
		ORDER BY created_at DESC`

	rows, err := r.db.Query(query, purpose, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

// MarkFilled отмечает ордер исполненным
func (r *OrderRepository) MarkFilled(id int, filledQty, priceAvg float64) error {
	query := `
		UPDATE orders
		SET status = $1, filled_qty = $2, price_avg = $3, filled_at = $4
		WHERE id = $5`

	result, err := r.db.Exec(query, models.OrderStatusFilled, filledQty, priceAvg, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func scanOrder(row rowScanner) (*models.OrderRecord, error) {
	order := &models.OrderRecord{}
	var errorMessage sql.NullString

	err := row.Scan(
		&order.ID,
		&order.PositionID,
		&order.OrderID,
		&order.Side,
		&order.Purpose,
		&order.ChunkIndex,
		&order.Quantity,
		&order.FilledQty,
		&order.PriceAvg,
		&order.Status,
		&errorMessage,
		&order.CreatedAt,
		&order.FilledAt,
	)
	if err != nil {
		return nil, err
	}

	order.ErrorMessage = errorMessage.String
	return order, nil
}

func scanOrders(rows *sql.Rows) ([]*models.OrderRecord, error) {
	var orders []*models.OrderRecord
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}
