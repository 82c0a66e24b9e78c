package exchange

import (
	"context"
	"time"
)

// OrderGateway определяет операции исполнения ордеров
//
// Submit и Cancel идемпотентны на уровне ClientOrderID: повторная отправка
// с тем же ClientOrderID не создаёт второй ордер
type OrderGateway interface {
	// Submit размещает рыночный ордер и возвращает результат размещения
	Submit(ctx context.Context, req *OrderRequest) (*OrderResult, error)

	// Cancel отменяет ордер (для рыночных ордеров применимо только до исполнения)
	Cancel(ctx context.Context, asset, orderID string) error

	// Confirm запрашивает фактическое состояние ордера
	// Используется для верификации исполнения после аварийного закрытия
	Confirm(ctx context.Context, asset, orderID string) (*OrderResult, error)
}

// MarketDataSource определяет доступ к рыночным данным
type MarketDataSource interface {
	// GetPrice возвращает текущую цену актива
	GetPrice(ctx context.Context, asset string) (float64, error)

	// GetLiquidity возвращает доступную ликвидность на стороне bid
	// (сумма объёмов верхних уровней стакана в котируемой валюте)
	GetLiquidity(ctx context.Context, asset string) (float64, error)

	// GetOrderBook возвращает стакан с заданной глубиной
	GetOrderBook(ctx context.Context, asset string, depth int) (*OrderBook, error)

	// GetNetworkHealth возвращает состояние соединения со шлюзом
	GetNetworkHealth(ctx context.Context) (*NetworkHealth, error)
}

// Gateway объединяет исполнение ордеров и рыночные данные одного шлюза
type Gateway interface {
	OrderGateway
	MarketDataSource

	// Connect устанавливает соединение со шлюзом
	Connect(apiKey, secret string) error

	// Name возвращает имя шлюза
	Name() string

	// GetBalance возвращает доступный баланс аккаунта в котируемой валюте
	GetBalance(ctx context.Context) (float64, error)

	// SubscribePrices подписывается на обновления цены актива
	SubscribePrices(asset string, callback func(*PriceUpdate)) error

	// Close закрывает соединения со шлюзом
	Close() error
}

// OrderRequest описывает запрос на размещение рыночного ордера
type OrderRequest struct {
	Asset         string  `json:"asset"`
	Side          string  `json:"side"`     // "buy" или "sell"
	Quantity      float64 `json:"quantity"` // в базовой валюте
	Purpose       string  `json:"purpose"`  // entry / exit / emergency
	ClientOrderID string  `json:"client_order_id"`
}

// OrderResult содержит результат размещения или подтверждения ордера
type OrderResult struct {
	OrderID      string    `json:"order_id"`
	Asset        string    `json:"asset"`
	Side         string    `json:"side"`
	Quantity     float64   `json:"quantity"`
	FilledQty    float64   `json:"filled_qty"`
	AvgFillPrice float64   `json:"avg_fill_price"`
	Status       string    `json:"status"` // "filled", "partial", "cancelled", "rejected"
	CreatedAt    time.Time `json:"created_at"`
}

// Filled сообщает, полностью ли исполнен ордер
func (r *OrderResult) Filled() bool {
	return r.Status == OrderStatusFilled
}

// PriceUpdate содержит обновление цены из потока рыночных данных
type PriceUpdate struct {
	Asset     string    `json:"asset"`
	BidPrice  float64   `json:"bid_price"`  // лучшая цена покупки
	AskPrice  float64   `json:"ask_price"`  // лучшая цена продажи
	LastPrice float64   `json:"last_price"` // последняя сделка
	Timestamp time.Time `json:"timestamp"`
}

// OrderBook представляет стакан ордеров
type OrderBook struct {
	Asset     string       `json:"asset"`
	Bids      []PriceLevel `json:"bids"` // заявки на покупку
	Asks      []PriceLevel `json:"asks"` // заявки на продажу
	Timestamp time.Time    `json:"timestamp"`
}

// PriceLevel представляет уровень цены в стакане
type PriceLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// BidLiquidity возвращает суммарную ликвидность стороны bid в котируемой валюте
func (ob *OrderBook) BidLiquidity() float64 {
	total := 0.0
	for _, lvl := range ob.Bids {
		total += lvl.Price * lvl.Volume
	}
	return total
}

// NetworkHealth описывает состояние соединения со шлюзом
type NetworkHealth struct {
	LatencyMs    float64   `json:"latency_ms"`    // средняя задержка за окно наблюдения
	ErrorRate    float64   `json:"error_rate"`    // доля ошибок за окно наблюдения (0..1)
	RequestCount int       `json:"request_count"` // количество запросов в окне
	Healthy      bool      `json:"healthy"`
	CheckedAt    time.Time `json:"checked_at"`
}

// GatewayError представляет ошибку от шлюза
type GatewayError struct {
	Gateway   string
	Code      string
	Message   string
	Original  error
	Temporary bool // true для сетевых и rate-limit ошибок, которые можно retry'ить
}

func (e *GatewayError) Error() string {
	return e.Gateway + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *GatewayError) Unwrap() error {
	return e.Original
}

// Retryable сообщает retry-слою можно ли повторить запрос
func (e *GatewayError) Retryable() bool {
	return e.Temporary
}

// Side constants for orders
const (
	SideBuy  = "buy"  // покупка (открытие позиции)
	SideSell = "sell" // продажа (закрытие позиции)
)

// Order status constants
const (
	OrderStatusNew       = "new"
	OrderStatusFilled    = "filled"
	OrderStatusPartial   = "partial"
	OrderStatusCancelled = "cancelled"
	OrderStatusRejected  = "rejected"
)

// Order purpose constants
const (
	PurposeEntry     = "entry"
	PurposeExit      = "exit"
	PurposeEmergency = "emergency"
)
