package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"tradexec/internal/config"
	"tradexec/internal/exchange"
	"tradexec/internal/models"
	"tradexec/pkg/retry"
	"tradexec/pkg/utils"

	"github.com/google/uuid"
)

// Аварийные условия
const (
	ConditionPriceDrop       = "price_drop"
	ConditionVolatilitySpike = "volatility_spike"
	ConditionLiquidityDrop   = "liquidity_drop"
	ConditionNetworkLatency  = "network_latency"
	ConditionErrorFrequency  = "error_frequency"
)

// Методы аварийного выхода
const (
	MethodMarket = "market"
	MethodSplit  = "split"
	MethodBackup = "backup"
)

// минимум наблюдений волатильности для детекции всплеска
const minVolatilitySamples = 10

// EmergencyController - детекция аварийных условий и принудительный выход
//
// Детекция: позиция закрывается аварийно, если сработало ЛЮБОЕ из условий
// (резкое падение цены, всплеск волатильности, обвал ликвидности, сетевая
// деградация, частые ошибки шлюза).
//
// Исполнение: если стакан принимает весь объём, позиция закрывается
// одним рыночным ордером, иначе дробится на части по ликвидности
// (SPLIT_ORDERS). Отказ части не прерывает остальные. Исполнение
// верифицируется через Confirm. Отказ основного пути переводит выход
// на резервную стратегию: мелкие ордера с агрессивным retry, затем
// резервный шлюз. Полный отказ всех путей возвращает CriticalFailure.
type EmergencyController struct {
	primary exchange.OrderGateway
	backup  exchange.OrderGateway // nil если резервного шлюза нет
	market  exchange.MarketDataSource
	cfg     config.EmergencyConfig

	notificationChan chan *models.Notification
	logger           *utils.Logger

	// Скользящие наблюдения по активам
	mu       sync.Mutex
	prices   map[string][]pricePoint
	volStats map[string]*volBaseline

	// Переопределяется в тестах
	now func() time.Time
}

type pricePoint struct {
	at    time.Time
	price float64
}

// volBaseline - бегущее среднее волатильности актива
type volBaseline struct {
	mean    float64
	samples int
}

// NewEmergencyController создает контроллер аварийного выхода
// backup может быть nil
func NewEmergencyController(
	primary exchange.OrderGateway,
	backup exchange.OrderGateway,
	market exchange.MarketDataSource,
	cfg config.EmergencyConfig,
	notifChan chan *models.Notification,
) *EmergencyController {
	return &EmergencyController{
		primary:          primary,
		backup:           backup,
		market:           market,
		cfg:              cfg,
		notificationChan: notifChan,
		logger:           utils.L().WithComponent("emergency"),
		prices:           make(map[string][]pricePoint),
		volStats:         make(map[string]*volBaseline),
		now:              time.Now,
	}
}

// ============================================================
// Детекция аварийных условий
// ============================================================

// RecordPrice добавляет наблюдение цены в скользящее окно актива
func (ec *EmergencyController) RecordPrice(asset string, price float64) {
	if price <= 0 {
		return
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()

	cutoff := ec.now().Add(-ec.cfg.ErrorWindow)
	window := ec.prices[asset]
	window = append(window, pricePoint{at: ec.now(), price: price})
	for len(window) > 0 && window[0].at.Before(cutoff) {
		window = window[1:]
	}
	ec.prices[asset] = window
}

// Detect проверяет все аварийные условия для позиции
//
// Возвращает список сработавших условий. Пустой список означает,
// что аварийный выход не требуется. Условия объединяются по ИЛИ:
// для выхода достаточно одного.
func (ec *EmergencyController) Detect(ctx context.Context, pos *models.Position, snap *models.MarketSnapshot) []string {
	var conditions []string

	if change, ok := ec.priceChange(pos.Asset); ok && change <= ec.cfg.PriceDropThreshold {
		conditions = append(conditions, ConditionPriceDrop)
	}
	if snap != nil && ec.isVolatilitySpike(pos.Asset, snap.Volatility) {
		conditions = append(conditions, ConditionVolatilitySpike)
	}
	if snap != nil && snap.Liquidity > 0 && snap.Liquidity < pos.Size*ec.cfg.LiquidityDropThreshold {
		conditions = append(conditions, ConditionLiquidityDrop)
	}

	if health, err := ec.market.GetNetworkHealth(ctx); err == nil && health != nil {
		if health.LatencyMs > ec.cfg.MaxNetworkLatencyMs {
			conditions = append(conditions, ConditionNetworkLatency)
		}
		if health.ErrorRate > ec.cfg.ErrorRateThreshold {
			conditions = append(conditions, ConditionErrorFrequency)
		}
	}

	for _, c := range conditions {
		RecordEmergencyCondition(c)
	}
	return conditions
}

// priceChange возвращает относительное изменение цены за окно наблюдения
func (ec *EmergencyController) priceChange(asset string) (float64, bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	window := ec.prices[asset]
	if len(window) < 2 {
		return 0, false
	}
	return utils.CalculatePriceChange(window[0].price, window[len(window)-1].price), true
}

// isVolatilitySpike сравнивает текущую волатильность с бегущим средним
// Пока наблюдений мало, всплеск не фиксируется
func (ec *EmergencyController) isVolatilitySpike(asset string, volatility float64) bool {
	if volatility <= 0 {
		return false
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()

	vb, ok := ec.volStats[asset]
	if !ok {
		vb = &volBaseline{}
		ec.volStats[asset] = vb
	}

	spike := vb.samples >= minVolatilitySamples && vb.mean > 0 &&
		volatility > vb.mean*ec.cfg.VolatilitySpikeFactor

	// Всплеск не загрязняет базовую линию
	if !spike {
		vb.samples++
		vb.mean += (volatility - vb.mean) / float64(vb.samples)
	}
	return spike
}

// ============================================================
// Аварийное исполнение
// ============================================================

// ExitResult - итог аварийного выхода
//
// FilledQty меньше RequestedQty означает частичное закрытие: остаток
// позиции всё ещё открыт на шлюзе, координатор уменьшает учётный
// размер на закрытую часть.
type ExitResult struct {
	Method       string
	AvgPrice     float64
	FilledQty    float64
	RequestedQty float64
}

// Partial сообщает, закрыт ли объём не полностью
func (r *ExitResult) Partial() bool {
	return r.FilledQty < r.RequestedQty
}

// ExecuteEmergencyExit принудительно закрывает позицию
//
// Метод выбирается по доступной ликвидности: одним рыночным ордером,
// если стакан принимает весь объём, иначе частями по ликвидности.
// Отказ основного пути переводит выход на резервную стратегию
// (мелкие ордера, агрессивный retry, затем резервный шлюз). Полный
// отказ всех путей возвращает *CriticalFailure: позицию нужно
// переводить в FAILED и останавливать новые входы.
func (ec *EmergencyController) ExecuteEmergencyExit(ctx context.Context, pos *models.Position, reasons []string) (*ExitResult, error) {
	log := ec.logger.WithPosition(pos.ID).WithAsset(pos.Asset)
	log.Warn("аварийное закрытие позиции",
		utils.Size(pos.Size), utils.Any("conditions", reasons))

	quantity := pos.Size / pos.EntryPrice
	method, liquidity := ec.chooseMethod(ctx, pos)

	res, err := ec.exitVia(ctx, ec.primary, pos, quantity, method, liquidity)
	if err == nil || asPartialFill(err) != nil {
		ec.recordExit(pos, res, reasons, asPartialFill(err))
		return res, nil
	}

	log.Error("основной путь не исполнил аварийный выход", utils.Err(err))

	res, backupErr := ec.exitBackupStrategy(ctx, pos, quantity)
	if backupErr == nil || asPartialFill(backupErr) != nil {
		ec.recordExit(pos, res, reasons, asPartialFill(backupErr))
		return res, nil
	}
	log.Error("резервная стратегия не исполнила аварийный выход", utils.Err(backupErr))

	RecordEmergencyExit(method, "failed")
	return nil, &CriticalFailure{
		PositionID: pos.ID,
		Asset:      pos.Asset,
		Reasons:    reasons,
		LastErr:    backupErr,
	}
}

// chooseMethod выбирает метод выхода по доступной ликвидности
//
// Рыночный ордер допустим, если стакан вмещает позицию с запасом
// LiquidityDropThreshold и размер не превышает SplitThreshold.
// Без данных о ликвидности решает один порог размера.
func (ec *EmergencyController) chooseMethod(ctx context.Context, pos *models.Position) (string, float64) {
	liquidity, err := ec.market.GetLiquidity(ctx, pos.Asset)
	if err != nil || liquidity <= 0 {
		if pos.Size > ec.cfg.SplitThreshold {
			return MethodSplit, 0
		}
		return MethodMarket, 0
	}
	if pos.Size > ec.cfg.SplitThreshold || pos.Size*ec.cfg.LiquidityDropThreshold > liquidity {
		return MethodSplit, liquidity
	}
	return MethodMarket, liquidity
}

// splitCount вычисляет количество частей под доступную ликвидность
//
// Каждая часть не крупнее объёма, который стакан принимает без
// нарушения фактора достаточности. Без данных о ликвидности
// используется настроенное количество частей.
func (ec *EmergencyController) splitCount(size, liquidity float64) int {
	count := ec.cfg.SplitChunks
	if liquidity > 0 && ec.cfg.LiquidityDropThreshold > 0 {
		perChunk := liquidity / ec.cfg.LiquidityDropThreshold
		if perChunk > 0 {
			if need := int(math.Ceil(size / perChunk)); need > count {
				count = need
			}
		}
	}
	return count
}

// exitBackupStrategy - резервный путь после отказа основного
//
// Дробит объём на части вдвое мельче штатного SPLIT_ORDERS и исполняет
// их на основном шлюзе с агрессивным retry. Если основной шлюз не
// исполнил ни одной части, последним шансом остаётся резервный шлюз.
func (ec *EmergencyController) exitBackupStrategy(ctx context.Context, pos *models.Position, quantity float64) (*ExitResult, error) {
	res, err := ec.exitSplit(ctx, ec.primary, pos, quantity, ec.cfg.SplitChunks*2, MethodBackup)
	if err == nil || asPartialFill(err) != nil {
		return res, err
	}

	if ec.backup != nil {
		backupRes, backupErr := ec.exitMarket(ctx, ec.backup, pos, quantity, MethodBackup)
		if backupErr == nil {
			return backupRes, nil
		}
		ec.logger.WithPosition(pos.ID).Error("резервный шлюз не исполнил аварийный выход",
			utils.Err(backupErr))
		return nil, backupErr
	}
	return nil, err
}

// exitVia исполняет выход через указанный шлюз выбранным методом
func (ec *EmergencyController) exitVia(ctx context.Context, gw exchange.OrderGateway, pos *models.Position, quantity float64, method string, liquidity float64) (*ExitResult, error) {
	if method == MethodSplit {
		return ec.exitSplit(ctx, gw, pos, quantity, ec.splitCount(pos.Size, liquidity), MethodSplit)
	}
	return ec.exitMarket(ctx, gw, pos, quantity, MethodMarket)
}

// exitMarket закрывает позицию одним рыночным ордером
func (ec *EmergencyController) exitMarket(ctx context.Context, gw exchange.OrderGateway, pos *models.Position, quantity float64, method string) (*ExitResult, error) {
	result, err := ec.submitChunk(ctx, gw, pos, quantity)
	if err != nil {
		return nil, err
	}
	return &ExitResult{
		Method:       method,
		AvgPrice:     result.AvgFillPrice,
		FilledQty:    result.FilledQty,
		RequestedQty: quantity,
	}, nil
}

// exitSplit закрывает позицию частями
//
// Отказ отдельной части не прерывает исполнение остальных. Если хотя бы
// одна часть исполнилась, выход состоялся: результат несёт фактически
// закрытый объём, а ошибкой возвращается *PartialFillError с деталями
// отказавшей части. Полный отказ всех частей возвращает ошибку последней.
func (ec *EmergencyController) exitSplit(ctx context.Context, gw exchange.OrderGateway, pos *models.Position, quantity float64, chunkCount int, method string) (*ExitResult, error) {
	chunks := utils.SplitVolume(quantity, chunkCount, 0)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("нечего исполнять: объём %.8f", quantity)
	}

	var (
		filledQty   float64
		filledValue float64
		failedChunk int
		lastErr     error
	)

	for i, chunk := range chunks {
		result, err := ec.submitChunk(ctx, gw, pos, chunk)
		if err != nil {
			ec.logger.WithPosition(pos.ID).Warn("часть аварийного выхода не исполнилась",
				utils.Int("chunk", i+1), utils.Int("total", len(chunks)), utils.Err(err))
			failedChunk = i + 1
			lastErr = err
			continue
		}
		filledQty += result.FilledQty
		filledValue += result.FilledQty * result.AvgFillPrice
	}

	if filledQty == 0 {
		return nil, lastErr
	}

	res := &ExitResult{
		Method:       method,
		AvgPrice:     filledValue / filledQty,
		FilledQty:    filledQty,
		RequestedQty: quantity,
	}
	if lastErr != nil {
		return res, &PartialFillError{
			PositionID:  pos.ID,
			TotalChunks: len(chunks),
			FailedChunk: failedChunk,
			FilledQty:   filledQty,
			TotalQty:    quantity,
			Err:         lastErr,
		}
	}
	return res, nil
}

// asPartialFill извлекает *PartialFillError из цепочки ошибок
// Частичное исполнение не фатально: часть объёма закрыта
func asPartialFill(err error) *PartialFillError {
	var partial *PartialFillError
	if errors.As(err, &partial) {
		return partial
	}
	return nil
}

// recordExit учитывает метрики и уведомления исполненного выхода
func (ec *EmergencyController) recordExit(pos *models.Position, res *ExitResult, reasons []string, partial *PartialFillError) {
	if partial != nil {
		RecordEmergencyExit(res.Method, "partial")
		ec.notifyPartialFill(pos, partial)
		return
	}
	RecordEmergencyExit(res.Method, "success")
	ec.notifyEmergency(pos, res.Method, reasons, res.AvgPrice)
}

// submitChunk размещает один ордер выхода и верифицирует исполнение
func (ec *EmergencyController) submitChunk(ctx context.Context, gw exchange.OrderGateway, pos *models.Position, quantity float64) (*exchange.OrderResult, error) {
	req := &exchange.OrderRequest{
		Asset:         pos.Asset,
		Side:          exchange.SideSell,
		Quantity:      quantity,
		Purpose:       exchange.PurposeEmergency,
		ClientOrderID: uuid.NewString(),
	}

	cfg := retry.EmergencyConfig()
	cfg.RetryIf = retry.IsRetryable

	started := time.Now()
	result, err := retry.DoWithResult(ctx, func() (*exchange.OrderResult, error) {
		return gw.Submit(ctx, req)
	}, cfg)
	RecordOrderLatency(exchange.PurposeEmergency, exchange.SideSell, float64(time.Since(started).Milliseconds()))
	if err != nil {
		return nil, err
	}

	return ec.verify(ctx, gw, pos.Asset, result)
}

// verify подтверждает исполнение ордера через Confirm
// Ордер, не дошедший до FILLED за отведённый таймаут, считается отказом
func (ec *EmergencyController) verify(ctx context.Context, gw exchange.OrderGateway, asset string, result *exchange.OrderResult) (*exchange.OrderResult, error) {
	if result.Filled() {
		return result, nil
	}

	verifyCtx, cancel := context.WithTimeout(ctx, ec.cfg.VerifyTimeout)
	defer cancel()

	confirmed, err := retry.DoWithResult(verifyCtx, func() (*exchange.OrderResult, error) {
		r, err := gw.Confirm(verifyCtx, asset, result.OrderID)
		if err != nil {
			return nil, err
		}
		if !r.Filled() {
			return nil, retry.Temporary(fmt.Errorf("ордер %s в статусе %s", r.OrderID, r.Status))
		}
		return r, nil
	}, retry.VerifyConfig())
	if err != nil {
		return nil, fmt.Errorf("верификация исполнения %s: %w", result.OrderID, err)
	}
	return confirmed, nil
}

// ============================================================
// Уведомления
// ============================================================

func (ec *EmergencyController) notifyEmergency(pos *models.Position, method string, reasons []string, avgPrice float64) {
	notif := &models.Notification{
		Timestamp:  ec.now(),
		Type:       models.NotificationTypeEmergency,
		Severity:   models.SeverityWarn,
		PositionID: pos.ID,
		Message: fmt.Sprintf("⚡ Emergency exit for %s executed via %s at %.2f",
			pos.Asset, method, avgPrice),
		Meta: map[string]interface{}{
			"asset":      pos.Asset,
			"method":     method,
			"conditions": reasons,
			"avg_price":  avgPrice,
		},
	}
	tryEnqueueNotification(ec.notificationChan, notif)
}

func (ec *EmergencyController) notifyPartialFill(pos *models.Position, partial *PartialFillError) {
	notif := &models.Notification{
		Timestamp:  ec.now(),
		Type:       models.NotificationTypeEmergency,
		Severity:   models.SeverityWarn,
		PositionID: pos.ID,
		Message: fmt.Sprintf("⚠️ Emergency exit for %s partially filled: %.8f of %.8f, chunk %d/%d failed",
			pos.Asset, partial.FilledQty, partial.TotalQty, partial.FailedChunk, partial.TotalChunks),
		Meta: map[string]interface{}{
			"asset":        pos.Asset,
			"filled_qty":   partial.FilledQty,
			"total_qty":    partial.TotalQty,
			"failed_chunk": partial.FailedChunk,
		},
	}
	tryEnqueueNotification(ec.notificationChan, notif)
}
