package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Paper реализует Gateway поверх симулированного исполнения.
// Используется в dry-run режиме и интеграционных тестах:
// ордера исполняются мгновенно по текущей синтетической цене
// с заданным проскальзыванием, реальные запросы не отправляются.
type Paper struct {
	mu sync.RWMutex

	balance   float64
	prices    map[string]float64
	liquidity map[string]float64
	health    *NetworkHealth

	// ордера по ClientOrderID для идемпотентности Submit
	byClientID map[string]*OrderResult
	byOrderID  map[string]*OrderResult
	nextID     int64

	// Slippage - относительное проскальзывание исполнения (0.001 = 0.1%)
	Slippage float64

	// SubmitHook вызывается перед исполнением каждого ордера.
	// Возврат ошибки имитирует отказ шлюза (для тестов аварийных сценариев)
	SubmitHook func(req *OrderRequest) error

	priceCallbacks map[string][]func(*PriceUpdate)
	connected      bool
}

// NewPaper создаёт paper-шлюз с начальным балансом
func NewPaper(balance float64) *Paper {
	return &Paper{
		balance:        balance,
		prices:         make(map[string]float64),
		liquidity:      make(map[string]float64),
		byClientID:     make(map[string]*OrderResult),
		byOrderID:      make(map[string]*OrderResult),
		priceCallbacks: make(map[string][]func(*PriceUpdate)),
		health: &NetworkHealth{
			Healthy:   true,
			CheckedAt: time.Now(),
		},
	}
}

// SetPrice устанавливает синтетическую цену актива и
// рассылает обновление подписчикам
func (p *Paper) SetPrice(asset string, price float64) {
	p.mu.Lock()
	p.prices[asset] = price
	callbacks := append([]func(*PriceUpdate){}, p.priceCallbacks[asset]...)
	p.mu.Unlock()

	update := &PriceUpdate{
		Asset:     asset,
		BidPrice:  price,
		AskPrice:  price,
		LastPrice: price,
		Timestamp: time.Now(),
	}
	for _, cb := range callbacks {
		cb(update)
	}
}

// SetLiquidity устанавливает синтетическую ликвидность актива
func (p *Paper) SetLiquidity(asset string, liquidity float64) {
	p.mu.Lock()
	p.liquidity[asset] = liquidity
	p.mu.Unlock()
}

// SetNetworkHealth подменяет состояние сети (для тестов аварийных условий)
func (p *Paper) SetNetworkHealth(health *NetworkHealth) {
	p.mu.Lock()
	p.health = health
	p.mu.Unlock()
}

func (p *Paper) Connect(apiKey, secret string) error {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

func (p *Paper) Name() string {
	return "paper"
}

func (p *Paper) GetBalance(ctx context.Context) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance, nil
}

// Submit исполняет рыночный ордер по текущей синтетической цене.
// Повторный Submit с тем же ClientOrderID возвращает уже исполненный
// ордер, как это делает реальный шлюз
func (p *Paper) Submit(ctx context.Context, req *OrderRequest) (*OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if req.ClientOrderID != "" {
		if existing, ok := p.byClientID[req.ClientOrderID]; ok {
			return existing, nil
		}
	}

	if p.SubmitHook != nil {
		if err := p.SubmitHook(req); err != nil {
			return nil, err
		}
	}

	price, ok := p.prices[req.Asset]
	if !ok || price <= 0 {
		return nil, &GatewayError{
			Gateway: "paper",
			Message: "no price for asset " + req.Asset,
		}
	}

	// Проскальзывание: покупка дороже, продажа дешевле
	fillPrice := price
	if p.Slippage > 0 {
		if req.Side == SideBuy {
			fillPrice = price * (1 + p.Slippage)
		} else {
			fillPrice = price * (1 - p.Slippage)
		}
	}

	notional := fillPrice * req.Quantity
	if req.Side == SideBuy {
		if notional > p.balance {
			return nil, &GatewayError{
				Gateway: "paper",
				Code:    "insufficient_balance",
				Message: fmt.Sprintf("need %.2f, have %.2f", notional, p.balance),
			}
		}
		p.balance -= notional
	} else {
		p.balance += notional
	}

	p.nextID++
	result := &OrderResult{
		OrderID:      "paper-" + strconv.FormatInt(p.nextID, 10),
		Asset:        req.Asset,
		Side:         req.Side,
		Quantity:     req.Quantity,
		FilledQty:    req.Quantity,
		AvgFillPrice: fillPrice,
		Status:       OrderStatusFilled,
		CreatedAt:    time.Now(),
	}

	p.byOrderID[result.OrderID] = result
	if req.ClientOrderID != "" {
		p.byClientID[req.ClientOrderID] = result
	}

	return result, nil
}

func (p *Paper) Cancel(ctx context.Context, asset, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.byOrderID[orderID]
	if !ok {
		return &GatewayError{Gateway: "paper", Message: "order not found: " + orderID}
	}
	if order.Status == OrderStatusFilled {
		return &GatewayError{Gateway: "paper", Message: "order already filled: " + orderID}
	}
	order.Status = OrderStatusCancelled
	return nil
}

func (p *Paper) Confirm(ctx context.Context, asset, orderID string) (*OrderResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	order, ok := p.byOrderID[orderID]
	if !ok {
		return nil, &GatewayError{Gateway: "paper", Message: "order not found: " + orderID}
	}
	copied := *order
	return &copied, nil
}

func (p *Paper) GetPrice(ctx context.Context, asset string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	price, ok := p.prices[asset]
	if !ok {
		return 0, &GatewayError{Gateway: "paper", Message: "no price for asset " + asset}
	}
	return price, nil
}

func (p *Paper) GetLiquidity(ctx context.Context, asset string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if liq, ok := p.liquidity[asset]; ok {
		return liq, nil
	}
	// Без явной настройки считаем ликвидность достаточной
	return 1e9, nil
}

// GetOrderBook строит синтетический стакан вокруг текущей цены
func (p *Paper) GetOrderBook(ctx context.Context, asset string, depth int) (*OrderBook, error) {
	p.mu.RLock()
	price, ok := p.prices[asset]
	liquidity := p.liquidity[asset]
	p.mu.RUnlock()

	if !ok {
		return nil, &GatewayError{Gateway: "paper", Message: "no price for asset " + asset}
	}
	if depth <= 0 {
		depth = 10
	}
	if liquidity <= 0 {
		liquidity = 1e9
	}

	// Равномерно распределяем ликвидность по уровням с шагом 0.05%
	volumePerLevel := liquidity / float64(depth) / price
	book := &OrderBook{
		Asset:     asset,
		Bids:      make([]PriceLevel, depth),
		Asks:      make([]PriceLevel, depth),
		Timestamp: time.Now(),
	}
	for i := 0; i < depth; i++ {
		offset := price * 0.0005 * float64(i+1)
		book.Bids[i] = PriceLevel{Price: price - offset, Volume: volumePerLevel}
		book.Asks[i] = PriceLevel{Price: price + offset, Volume: volumePerLevel}
	}
	return book, nil
}

func (p *Paper) GetNetworkHealth(ctx context.Context) (*NetworkHealth, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	copied := *p.health
	copied.CheckedAt = time.Now()
	return &copied, nil
}

func (p *Paper) SubscribePrices(asset string, callback func(*PriceUpdate)) error {
	p.mu.Lock()
	p.priceCallbacks[asset] = append(p.priceCallbacks[asset], callback)
	p.mu.Unlock()
	return nil
}

func (p *Paper) Close() error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}
