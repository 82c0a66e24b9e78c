package models

import "time"

// OrderRecord представляет запись об ордере
type OrderRecord struct {
	ID           int        `json:"id" db:"id"`
	PositionID   string     `json:"position_id" db:"position_id"`
	OrderID      string     `json:"order_id" db:"order_id"` // идентификатор у шлюза
	Side         string     `json:"side" db:"side"`         // buy, sell
	Purpose      string     `json:"purpose" db:"purpose"`   // entry, exit, emergency
	ChunkIndex   int        `json:"chunk_index" db:"chunk_index"` // индекс части (при разбиении)
	Quantity     float64    `json:"quantity" db:"quantity"`
	FilledQty    float64    `json:"filled_qty" db:"filled_qty"`
	PriceAvg     float64    `json:"price_avg" db:"price_avg"` // средняя цена исполнения
	Status       string     `json:"status" db:"status"`       // filled, partial, cancelled, rejected
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	FilledAt     *time.Time `json:"filled_at,omitempty" db:"filled_at"`
}

// Назначение ордера
const (
	OrderPurposeEntry     = "entry"
	OrderPurposeExit      = "exit"
	OrderPurposeEmergency = "emergency"
)

// Статусы ордера
const (
	OrderStatusFilled    = "filled"
	OrderStatusPartial   = "partial"
	OrderStatusCancelled = "cancelled"
	OrderStatusRejected  = "rejected"
)
