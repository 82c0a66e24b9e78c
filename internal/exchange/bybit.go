package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"tradexec/pkg/ratelimit"
)

const (
	bybitBaseURL    = "https://api.bybit.com"
	bybitWSPublic   = "wss://stream.bybit.com/v5/spot/public"
	bybitRecvWindow = "5000"
)

// Категории запросов для rate limiting
const (
	rlOrders     = "orders"
	rlMarketData = "market_data"
	rlConfirm    = "confirm"
)

// Bybit реализует интерфейс Gateway для биржи Bybit (spot, API v5)
type Bybit struct {
	apiKey    string
	secretKey string

	httpClient *http.Client
	limiter    *ratelimit.MultiLimiter
	health     *healthTracker

	// WebSocket manager с автоматическим переподключением
	wsManager *WSReconnectManager

	// Callbacks подписок на цены
	priceCallbacks map[string]func(*PriceUpdate)
	callbackMu     sync.RWMutex

	connected bool
	closeChan chan struct{}
}

// NewBybit создает новый экземпляр Bybit
// Использует глобальный HTTP клиент с connection pooling и оптимизированными таймаутами
func NewBybit() *Bybit {
	limiter := ratelimit.NewMultiLimiter()
	limiter.Add(rlOrders, 10, 20)
	limiter.Add(rlMarketData, 50, 100)
	limiter.Add(rlConfirm, 10, 20)

	return &Bybit{
		httpClient:     GetGlobalHTTPClient().GetClient(),
		limiter:        limiter,
		health:         newHealthTracker(healthWindow),
		priceCallbacks: make(map[string]func(*PriceUpdate)),
		closeChan:      make(chan struct{}),
	}
}

// sign создает подпись для запроса к Bybit API v5
func (b *Bybit) sign(timestamp string, params string) string {
	message := timestamp + b.apiKey + bybitRecvWindow + params
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest выполняет HTTP запрос к Bybit API
// Каждый запрос проходит через rate limiter своей категории и
// фиксируется в health tracker'е для GetNetworkHealth
func (b *Bybit) doRequest(ctx context.Context, method, endpoint, category string, params map[string]string, signed bool) ([]byte, error) {
	if err := b.limiter.Wait(ctx, category); err != nil {
		return nil, err
	}

	var reqBody string
	var reqURL string

	if method == http.MethodGet {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		reqBody = query.Encode()
		if reqBody != "" {
			reqURL = bybitBaseURL + endpoint + "?" + reqBody
		} else {
			reqURL = bybitBaseURL + endpoint
		}
	} else {
		reqURL = bybitBaseURL + endpoint
		if len(params) > 0 {
			jsonBytes, _ := json.Marshal(params)
			reqBody = string(jsonBytes)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(reqBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	if signed {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		signature := b.sign(timestamp, reqBody)

		req.Header.Set("X-BAPI-API-KEY", b.apiKey)
		req.Header.Set("X-BAPI-SIGN", signature)
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)
	}

	started := time.Now()
	resp, err := b.httpClient.Do(req)
	b.health.Record(time.Since(started), err)
	if err != nil {
		return nil, &GatewayError{
			Gateway:   "bybit",
			Message:   "request failed: " + err.Error(),
			Original:  err,
			Temporary: true,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Проверяем базовый ответ
	var baseResp struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(body, &baseResp); err != nil {
		return nil, err
	}

	if baseResp.RetCode != 0 {
		return nil, &GatewayError{
			Gateway:   "bybit",
			Code:      strconv.Itoa(baseResp.RetCode),
			Message:   baseResp.RetMsg,
			Temporary: isRetryableRetCode(baseResp.RetCode),
		}
	}

	return body, nil
}

// isRetryableRetCode определяет временные коды ошибок Bybit
// 10006 - rate limit, 10016 - internal error, 10002 - recv window
func isRetryableRetCode(code int) bool {
	switch code {
	case 10002, 10006, 10016:
		return true
	default:
		return false
	}
}

func (b *Bybit) Connect(apiKey, secret string) error {
	b.apiKey = apiKey
	b.secretKey = secret

	// Проверяем подключение через получение баланса
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := b.GetBalance(ctx); err != nil {
		return fmt.Errorf("failed to connect to Bybit: %w", err)
	}

	b.connected = true
	return nil
}

func (b *Bybit) Name() string {
	return "bybit"
}

func (b *Bybit) GetBalance(ctx context.Context) (float64, error) {
	params := map[string]string{
		"accountType": "UNIFIED",
		"coin":        "USDT",
	}

	body, err := b.doRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", rlConfirm, params, true)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Result struct {
			List []struct {
				Coin []struct {
					Coin   string `json:"coin"`
					Equity string `json:"equity"`
				} `json:"coin"`
			} `json:"list"`
		} `json:"result"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}

	if len(resp.Result.List) > 0 {
		for _, coin := range resp.Result.List[0].Coin {
			if coin.Coin == "USDT" {
				equity, _ := strconv.ParseFloat(coin.Equity, 64)
				return equity, nil
			}
		}
	}

	return 0, nil
}

// Submit размещает рыночный ордер
// ClientOrderID передаётся как orderLinkId: повторный Submit с тем же
// значением Bybit отклонит как дубликат, что делает операцию идемпотентной
func (b *Bybit) Submit(ctx context.Context, req *OrderRequest) (*OrderResult, error) {
	bybitSide := "Buy"
	if req.Side == SideSell {
		bybitSide = "Sell"
	}

	params := map[string]string{
		"category":    "spot",
		"symbol":      req.Asset,
		"side":        bybitSide,
		"orderType":   "Market",
		"qty":         strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		"timeInForce": "IOC",
	}
	if req.ClientOrderID != "" {
		params["orderLinkId"] = req.ClientOrderID
	}

	body, err := b.doRequest(ctx, http.MethodPost, "/v5/order/create", rlOrders, params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			OrderId string `json:"orderId"`
		} `json:"result"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	result := &OrderResult{
		OrderID:   resp.Result.OrderId,
		Asset:     req.Asset,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Status:    OrderStatusNew,
		CreatedAt: time.Now(),
	}

	// Сразу запрашиваем исполнение: рыночный IOC ордер исполняется немедленно
	confirmed, err := b.Confirm(ctx, req.Asset, resp.Result.OrderId)
	if err == nil {
		return confirmed, nil
	}

	// Ордер размещён, но статус получить не удалось: вернём то что знаем,
	// вызывающий код верифицирует через Confirm
	result.FilledQty = req.Quantity
	result.Status = OrderStatusFilled
	return result, nil
}

func (b *Bybit) Cancel(ctx context.Context, asset, orderID string) error {
	params := map[string]string{
		"category": "spot",
		"symbol":   asset,
		"orderId":  orderID,
	}

	_, err := b.doRequest(ctx, http.MethodPost, "/v5/order/cancel", rlOrders, params, true)
	return err
}

// Confirm запрашивает фактическое состояние ордера
func (b *Bybit) Confirm(ctx context.Context, asset, orderID string) (*OrderResult, error) {
	params := map[string]string{
		"category": "spot",
		"symbol":   asset,
		"orderId":  orderID,
	}

	body, err := b.doRequest(ctx, http.MethodGet, "/v5/order/realtime", rlConfirm, params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			List []struct {
				OrderId     string `json:"orderId"`
				Side        string `json:"side"`
				Qty         string `json:"qty"`
				CumExecQty  string `json:"cumExecQty"`
				AvgPrice    string `json:"avgPrice"`
				OrderStatus string `json:"orderStatus"`
				CreatedTime string `json:"createdTime"`
			} `json:"list"`
		} `json:"result"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Result.List) == 0 {
		return nil, &GatewayError{
			Gateway: "bybit",
			Message: "order not found: " + orderID,
		}
	}

	o := resp.Result.List[0]
	qty, _ := strconv.ParseFloat(o.Qty, 64)
	filledQty, _ := strconv.ParseFloat(o.CumExecQty, 64)
	avgPrice, _ := strconv.ParseFloat(o.AvgPrice, 64)
	createdMs, _ := strconv.ParseInt(o.CreatedTime, 10, 64)

	side := SideBuy
	if o.Side == "Sell" {
		side = SideSell
	}

	return &OrderResult{
		OrderID:      o.OrderId,
		Asset:        asset,
		Side:         side,
		Quantity:     qty,
		FilledQty:    filledQty,
		AvgFillPrice: avgPrice,
		Status:       mapBybitOrderStatus(o.OrderStatus),
		CreatedAt:    time.UnixMilli(createdMs),
	}, nil
}

// mapBybitOrderStatus приводит статус Bybit к статусам шлюза
func mapBybitOrderStatus(status string) string {
	switch status {
	case "Filled":
		return OrderStatusFilled
	case "PartiallyFilled", "PartiallyFilledCanceled":
		return OrderStatusPartial
	case "Cancelled", "Deactivated":
		return OrderStatusCancelled
	case "Rejected":
		return OrderStatusRejected
	default:
		return OrderStatusNew
	}
}

func (b *Bybit) GetPrice(ctx context.Context, asset string) (float64, error) {
	params := map[string]string{
		"category": "spot",
		"symbol":   asset,
	}

	body, err := b.doRequest(ctx, http.MethodGet, "/v5/market/tickers", rlMarketData, params, false)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Result struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}

	if len(resp.Result.List) == 0 {
		return 0, fmt.Errorf("ticker not found for %s", asset)
	}

	price, _ := strconv.ParseFloat(resp.Result.List[0].LastPrice, 64)
	return price, nil
}

// GetLiquidity возвращает ликвидность стороны bid по верхним 50 уровням стакана
func (b *Bybit) GetLiquidity(ctx context.Context, asset string) (float64, error) {
	book, err := b.GetOrderBook(ctx, asset, 50)
	if err != nil {
		return 0, err
	}
	return book.BidLiquidity(), nil
}

func (b *Bybit) GetOrderBook(ctx context.Context, asset string, depth int) (*OrderBook, error) {
	if depth > 200 {
		depth = 200
	}

	params := map[string]string{
		"category": "spot",
		"symbol":   asset,
		"limit":    strconv.Itoa(depth),
	}

	body, err := b.doRequest(ctx, http.MethodGet, "/v5/market/orderbook", rlMarketData, params, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			Symbol string     `json:"s"`
			Bids   [][]string `json:"b"`
			Asks   [][]string `json:"a"`
			Ts     int64      `json:"ts"`
		} `json:"result"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	orderBook := &OrderBook{
		Asset:     asset,
		Bids:      make([]PriceLevel, len(resp.Result.Bids)),
		Asks:      make([]PriceLevel, len(resp.Result.Asks)),
		Timestamp: time.UnixMilli(resp.Result.Ts),
	}

	for i, bid := range resp.Result.Bids {
		price, _ := strconv.ParseFloat(bid[0], 64)
		volume, _ := strconv.ParseFloat(bid[1], 64)
		orderBook.Bids[i] = PriceLevel{Price: price, Volume: volume}
	}

	for i, ask := range resp.Result.Asks {
		price, _ := strconv.ParseFloat(ask[0], 64)
		volume, _ := strconv.ParseFloat(ask[1], 64)
		orderBook.Asks[i] = PriceLevel{Price: price, Volume: volume}
	}

	// Сортируем: bids по убыванию, asks по возрастанию
	sort.Slice(orderBook.Bids, func(i, j int) bool {
		return orderBook.Bids[i].Price > orderBook.Bids[j].Price
	})
	sort.Slice(orderBook.Asks, func(i, j int) bool {
		return orderBook.Asks[i].Price < orderBook.Asks[j].Price
	})

	return orderBook, nil
}

// GetNetworkHealth возвращает скользящие latency и error rate по запросам к шлюзу
// Если замеров нет, делает лёгкий запрос серверного времени для замера
func (b *Bybit) GetNetworkHealth(ctx context.Context) (*NetworkHealth, error) {
	snapshot := b.health.Snapshot()
	if snapshot.RequestCount > 0 {
		return snapshot, nil
	}

	_, _ = b.doRequest(ctx, http.MethodGet, "/v5/market/time", rlMarketData, nil, false)
	return b.health.Snapshot(), nil
}

func (b *Bybit) SubscribePrices(asset string, callback func(*PriceUpdate)) error {
	b.callbackMu.Lock()
	b.priceCallbacks[asset] = callback
	b.callbackMu.Unlock()

	// Создаём WSReconnectManager если ещё не создан
	if b.wsManager == nil {
		config := DefaultWSReconnectConfig()
		b.wsManager = NewWSReconnectManager("bybit", bybitWSPublic, config)
		b.wsManager.SetOnMessage(b.handleWSMessage)

		if err := b.wsManager.Connect(); err != nil {
			return fmt.Errorf("failed to connect to WebSocket: %w", err)
		}
	}

	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{"tickers." + asset},
	}

	// Добавляем подписку для восстановления после переподключения
	b.wsManager.AddSubscription(subMsg)

	return b.wsManager.Send(subMsg)
}

// handleWSMessage обрабатывает одно сообщение из публичного WebSocket
func (b *Bybit) handleWSMessage(message []byte) {
	var msg struct {
		Topic string `json:"topic"`
		Data  struct {
			Symbol    string `json:"symbol"`
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
			LastPrice string `json:"lastPrice"`
		} `json:"data"`
	}

	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	if !strings.HasPrefix(msg.Topic, "tickers.") {
		return
	}

	asset := msg.Data.Symbol

	b.callbackMu.RLock()
	callback, ok := b.priceCallbacks[asset]
	b.callbackMu.RUnlock()

	if !ok || callback == nil {
		return
	}

	bidPrice, _ := strconv.ParseFloat(msg.Data.Bid1Price, 64)
	askPrice, _ := strconv.ParseFloat(msg.Data.Ask1Price, 64)
	lastPrice, _ := strconv.ParseFloat(msg.Data.LastPrice, 64)

	callback(&PriceUpdate{
		Asset:     asset,
		BidPrice:  bidPrice,
		AskPrice:  askPrice,
		LastPrice: lastPrice,
		Timestamp: time.Now(),
	})
}

func (b *Bybit) Close() error {
	select {
	case <-b.closeChan:
		// Уже закрыт
	default:
		close(b.closeChan)
	}

	if b.wsManager != nil {
		b.wsManager.Close()
		b.wsManager = nil
	}

	b.connected = false
	return nil
}
