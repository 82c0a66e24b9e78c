package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradexec/internal/config"
	"tradexec/internal/exchange"
	"tradexec/internal/models"
	"tradexec/pkg/retry"
	"tradexec/pkg/utils"

	"github.com/google/uuid"
)

// PositionStore - персистентность позиций и результатов
//
// Координатор пишет через этот интерфейс, реализацию предоставляет
// repository. nil-store допустим: состояние живёт только в памяти.
type PositionStore interface {
	SavePosition(ctx context.Context, pos *models.Position) error
	UpdatePosition(ctx context.Context, pos *models.Position) error
	SaveOutcome(ctx context.Context, outcome *models.TradeOutcome) error
}

// ExecutionCoordinator - владелец жизненного цикла позиций
//
// Единственная точка, через которую позиции открываются и закрываются:
//
//	PENDING -> OPEN -> MONITORING -> CLOSING -> CLOSED | EMERGENCY_CLOSED
//
// Отклонение до входа завершает позицию в REJECTED, невосстановимая
// ошибка на любом шаге в FAILED. Конкурентные запросы на закрытие
// разрешает CAS перехода MONITORING -> CLOSING: проигравшие не делают
// ничего. Результат сделки учитывается риск-менеджером строго до
// удаления позиции из реестра.
type ExecutionCoordinator struct {
	registry  *PositionRegistry
	sizer     *PositionSizer
	risk      *RiskManager
	monitor   *PositionMonitor
	emergency *EmergencyController

	gateway exchange.OrderGateway
	market  exchange.MarketDataSource
	store   PositionStore

	cfg config.ExecutionConfig

	notificationChan chan *models.Notification
	logger           *utils.Logger

	// Переопределяется в тестах
	now func() time.Time
}

// NewExecutionCoordinator создает координатор исполнения
// store может быть nil
func NewExecutionCoordinator(
	registry *PositionRegistry,
	sizer *PositionSizer,
	risk *RiskManager,
	emergency *EmergencyController,
	gateway exchange.OrderGateway,
	market exchange.MarketDataSource,
	store PositionStore,
	cfg config.ExecutionConfig,
	notifChan chan *models.Notification,
) *ExecutionCoordinator {
	return &ExecutionCoordinator{
		registry:         registry,
		sizer:            sizer,
		risk:             risk,
		emergency:        emergency,
		gateway:          gateway,
		market:           market,
		store:            store,
		cfg:              cfg,
		notificationChan: notifChan,
		logger:           utils.L().WithComponent("coordinator"),
		now:              time.Now,
	}
}

// SetMonitor подключает монитор позиций
// Вызывается один раз при сборке: монитор ссылается на HandleExitRequest
// координатора, поэтому создаётся после него
func (c *ExecutionCoordinator) SetMonitor(monitor *PositionMonitor) {
	c.monitor = monitor
}

// ============================================================
// Открытие позиции
// ============================================================

// OpenPosition проводит сигнал через валидацию, расчёт размера и вход
//
// Возвращает позицию в статусе MONITORING при успехе. Отклонённые
// сигналы возвращают позицию в REJECTED вместе с причиной. Отказ
// размещения после всех попыток оставляет позицию в FAILED.
func (c *ExecutionCoordinator) OpenPosition(ctx context.Context, d *models.Decision, snap *models.MarketSnapshot) (*models.Position, error) {
	EventsProcessed.WithLabelValues("decision").Inc()

	pos := &models.Position{
		ID:       uuid.NewString(),
		Asset:    d.Asset,
		Status:   models.StatusPending,
		OpenedAt: c.now(),
	}
	c.registry.Add(pos)
	c.persistNew(ctx, pos)

	log := c.logger.WithPosition(pos.ID).WithAsset(d.Asset)

	// Валидация риска: отказ терминален, к шлюзу не обращаемся
	if err := c.risk.Validate(d, snap); err != nil {
		return c.reject(ctx, pos, err)
	}

	// Расчёт размера
	budget := c.risk.Budget()
	size := c.sizer.Size(SizeInput{
		Capital:     c.risk.Capital(),
		RiskScore:   d.RiskScore,
		Volatility:  snap.Volatility,
		Liquidity:   snap.Liquidity,
		Drawdown:    budget.CurrentDrawdown,
		MaxDrawdown: c.maxDrawdown(),
		Performance: c.risk.Performance(),
	})
	if size <= 0 {
		return c.reject(ctx, pos, &ValidationError{Asset: d.Asset, Reason: "position size below minimum"})
	}
	pos.RequestedSize = size

	stops := c.risk.ComputeStops(d, snap)

	// Резерв экспозиции до обращения к шлюзу
	if err := c.risk.RegisterOpen(d.Asset, size); err != nil {
		return c.reject(ctx, pos, err)
	}

	// Размещение входного ордера с ограниченным числом попыток
	result, err := c.submitEntry(ctx, pos, d, size, snap.Price)
	if err != nil {
		c.risk.ReleaseOpen(size)
		_ = c.registry.Transition(pos.ID, models.StatusFailed)
		c.persist(ctx, pos.ID)
		log.Error("вход не исполнен, позиция FAILED", utils.Err(err))
		c.notifyError(pos, err)
		failed := c.snapshotOf(pos.ID)
		// Вход не состоялся: runtime состояния нет, запись остаётся в БД
		c.registry.Remove(pos.ID)
		return failed, err
	}

	// Фактическое исполнение может отличаться от запрошенного
	entryPrice := result.AvgFillPrice
	filledSize := result.FilledQty * entryPrice

	err = c.registry.Update(pos.ID, func(p *models.Position) {
		p.EntryPrice = entryPrice
		p.Size = filledSize
		p.CurrentPrice = entryPrice
		p.StopLoss = models.StopLoss{Initial: entryPrice * (1 - stops.StopLossPct)}
		p.TakeProfit = models.TakeProfit{Target: entryPrice * (1 + stops.TakeProfitPct)}
		p.LastUpdate = c.now()
	})
	if err != nil {
		return nil, err
	}
	if filledSize != size {
		c.risk.AdjustExposure(filledSize - size)
	}

	if err := c.registry.Transition(pos.ID, models.StatusOpen); err != nil {
		return c.snapshotOf(pos.ID), err
	}
	if err := c.registry.Transition(pos.ID, models.StatusMonitoring); err != nil {
		return c.snapshotOf(pos.ID), err
	}
	c.persist(ctx, pos.ID)

	if c.monitor != nil {
		c.monitor.Start(ctx, pos.ID)
	}

	opened := c.snapshotOf(pos.ID)
	log.Info("позиция открыта",
		utils.Price(entryPrice), utils.Size(filledSize),
		utils.Float64("stop_loss", opened.StopLoss.Initial),
		utils.Float64("take_profit", opened.TakeProfit.Target))
	c.notifyOpened(opened)
	return opened, nil
}

// submitEntry размещает входной ордер с retry
func (c *ExecutionCoordinator) submitEntry(ctx context.Context, pos *models.Position, d *models.Decision, size, price float64) (*exchange.OrderResult, error) {
	req := &exchange.OrderRequest{
		Asset:         d.Asset,
		Side:          exchange.SideBuy,
		Quantity:      size / price,
		Purpose:       exchange.PurposeEntry,
		ClientOrderID: uuid.NewString(),
	}

	cfg := retry.SubmissionConfig()
	cfg.MaxRetries = c.cfg.MaxRetries
	cfg.InitialDelay = c.cfg.RetryBackoff
	cfg.RetryIf = retry.IsRetryable
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.WithPosition(pos.ID).Warn("повтор размещения входа",
			utils.Int("attempt", attempt), utils.Err(err))
	}

	started := time.Now()
	result, err := retry.DoWithResult(ctx, func() (*exchange.OrderResult, error) {
		orderCtx, cancel := context.WithTimeout(ctx, c.cfg.OrderTimeout)
		defer cancel()
		return c.gateway.Submit(orderCtx, req)
	}, cfg)
	RecordOrderLatency(exchange.PurposeEntry, exchange.SideBuy, float64(time.Since(started).Milliseconds()))

	if err != nil {
		return nil, &SubmissionError{PositionID: pos.ID, Attempts: cfg.MaxRetries, Err: err}
	}
	return result, nil
}

// reject завершает позицию в REJECTED
// Терминальная позиция без входа не занимает реестр, запись остаётся в БД
func (c *ExecutionCoordinator) reject(ctx context.Context, pos *models.Position, cause error) (*models.Position, error) {
	_ = c.registry.Transition(pos.ID, models.StatusRejected)
	c.persist(ctx, pos.ID)
	RecordTrade(pos.Asset, "rejected", 0)
	c.logger.WithPosition(pos.ID).Info("вход отклонён", utils.Err(cause))
	rejected := c.snapshotOf(pos.ID)
	c.registry.Remove(pos.ID)
	return rejected, cause
}

// ============================================================
// Закрытие позиции
// ============================================================

// HandleExitRequest обрабатывает запрос на закрытие позиции
//
// Идемпотентен: из N конкурентных запросов на одну позицию ровно один
// проходит CAS MONITORING -> CLOSING, остальные возвращают
// ErrAlreadyClosing без побочных эффектов.
func (c *ExecutionCoordinator) HandleExitRequest(ctx context.Context, req *models.ExitRequest) error {
	EventsProcessed.WithLabelValues("exit_request").Inc()

	if err := c.claimClosing(req.PositionID); err != nil {
		return err
	}

	if c.monitor != nil {
		c.monitor.Stop(req.PositionID)
	}

	if req.Reason == models.ExitReasonEmergency {
		return c.closeEmergency(ctx, req.PositionID, []string{req.Reason})
	}
	return c.closeNormal(ctx, req)
}

// claimClosing выполняет CAS перехода в CLOSING
func (c *ExecutionCoordinator) claimClosing(positionID string) error {
	err := c.registry.Transition(positionID, models.StatusClosing)
	if err == nil {
		return nil
	}
	var transitionErr *StateTransitionError
	if errors.As(err, &transitionErr) {
		RecordDuplicateExit(transitionErr.From)
		return ErrAlreadyClosing
	}
	return err
}

// closeNormal закрывает позицию штатным рыночным ордером
// Отказ шлюза на штатном пути эскалируется в аварийный выход
func (c *ExecutionCoordinator) closeNormal(ctx context.Context, req *models.ExitRequest) error {
	pos, err := c.registry.Get(req.PositionID)
	if err != nil {
		return err
	}
	log := c.logger.WithPosition(pos.ID).WithAsset(pos.Asset)

	order := &exchange.OrderRequest{
		Asset:         pos.Asset,
		Side:          exchange.SideSell,
		Quantity:      pos.Size / pos.EntryPrice,
		Purpose:       exchange.PurposeExit,
		ClientOrderID: uuid.NewString(),
	}

	cfg := retry.SubmissionConfig()
	cfg.RetryIf = retry.IsRetryable

	started := time.Now()
	result, err := retry.DoWithResult(ctx, func() (*exchange.OrderResult, error) {
		return c.gateway.Submit(ctx, order)
	}, cfg)
	RecordOrderLatency(exchange.PurposeExit, exchange.SideSell, float64(time.Since(started).Milliseconds()))

	if err != nil {
		log.Error("штатное закрытие не исполнено, эскалация в аварийное", utils.Err(err))
		return c.executeEmergency(ctx, &pos, []string{req.Reason})
	}

	if err := c.registry.Transition(pos.ID, models.StatusClosed); err != nil {
		return err
	}
	c.finalize(ctx, pos.ID, result.AvgFillPrice, req.Reason, false)
	return nil
}

// ============================================================
// Аварийное закрытие
// ============================================================

// EmergencyClose аварийно закрывает позицию по сработавшим условиям
// Проходит тот же CAS, что и штатное закрытие
func (c *ExecutionCoordinator) EmergencyClose(ctx context.Context, positionID string, conditions []string) error {
	EventsProcessed.WithLabelValues("exit_request").Inc()

	if err := c.claimClosing(positionID); err != nil {
		return err
	}
	if c.monitor != nil {
		c.monitor.Stop(positionID)
	}
	return c.closeEmergency(ctx, positionID, conditions)
}

func (c *ExecutionCoordinator) closeEmergency(ctx context.Context, positionID string, conditions []string) error {
	pos, err := c.registry.Get(positionID)
	if err != nil {
		return err
	}
	return c.executeEmergency(ctx, &pos, conditions)
}

// executeEmergency исполняет аварийный выход для позиции в CLOSING
func (c *ExecutionCoordinator) executeEmergency(ctx context.Context, pos *models.Position, conditions []string) error {
	res, err := c.emergency.ExecuteEmergencyExit(ctx, pos, conditions)
	if err != nil {
		// Полный отказ всех путей: позиция FAILED, входы остановлены
		var critical *CriticalFailure
		if errors.As(err, &critical) {
			_ = c.registry.Force(pos.ID, models.StatusFailed)
			c.persist(ctx, pos.ID)
			c.risk.Halt(haltReasonCritical)
			c.notifyCriticalFailure(critical)
			RecordTrade(pos.Asset, "failed", 0)
		}
		return err
	}

	if res.Partial() {
		return c.finalizePartial(ctx, pos.ID, res)
	}

	if err := c.registry.Transition(pos.ID, models.StatusEmergencyClosed); err != nil {
		return err
	}
	c.finalize(ctx, pos.ID, res.AvgPrice, models.ExitReasonEmergency, true)
	return nil
}

// ============================================================
// Финализация
// ============================================================

// finalize учитывает результат сделки и удаляет позицию из реестра
// Порядок строгий: сначала RecordOutcome, потом Remove
func (c *ExecutionCoordinator) finalize(ctx context.Context, positionID string, exitPrice float64, reason string, emergency bool) {
	closedAt := c.now()
	_ = c.registry.Update(positionID, func(p *models.Position) {
		p.ExitPrice = exitPrice
		p.ExitReason = reason
		p.ClosedAt = &closedAt
	})

	pos, err := c.registry.Get(positionID)
	if err != nil {
		return
	}

	outcome := &models.TradeOutcome{
		PositionID: pos.ID,
		Asset:      pos.Asset,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Size:       pos.Size,
		Pnl:        utils.CalculatePNL(pos.EntryPrice, exitPrice, pos.Size/pos.EntryPrice),
		ReturnPct:  utils.CalculatePriceChange(pos.EntryPrice, exitPrice),
		Reason:     reason,
		Emergency:  emergency,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   closedAt,
	}

	c.risk.RecordOutcome(outcome)
	EventsProcessed.WithLabelValues("outcome").Inc()

	result := "loss"
	if outcome.Success() {
		result = "success"
	}
	RecordTrade(pos.Asset, result, outcome.Pnl)

	c.persist(ctx, positionID)
	if c.store != nil {
		if err := c.store.SaveOutcome(ctx, outcome); err != nil {
			c.logger.WithPosition(positionID).Error("не удалось сохранить результат", utils.Err(err))
		}
	}

	c.registry.Remove(positionID)

	c.logger.WithPosition(pos.ID).WithAsset(pos.Asset).Info("позиция закрыта",
		utils.Reason(reason), utils.Price(exitPrice), utils.PNL(outcome.Pnl))
	c.notifyClosed(&pos, outcome)
}

// finalizePartial учитывает частично закрытую позицию
//
// Закрытая часть проходит обычный учёт результата и освобождает свою
// экспозицию. Остаток уменьшает учётный размер позиции и остаётся в
// FAILED до ручного закрытия: его экспозиция продолжает числиться
// за позицией.
func (c *ExecutionCoordinator) finalizePartial(ctx context.Context, positionID string, res *ExitResult) error {
	pos, err := c.registry.Get(positionID)
	if err != nil {
		return err
	}

	closedAt := c.now()
	closedSize := res.FilledQty * pos.EntryPrice
	remainder := pos.Size - closedSize

	outcome := &models.TradeOutcome{
		PositionID: pos.ID,
		Asset:      pos.Asset,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  res.AvgPrice,
		Size:       closedSize,
		Pnl:        utils.CalculatePNL(pos.EntryPrice, res.AvgPrice, res.FilledQty),
		ReturnPct:  utils.CalculatePriceChange(pos.EntryPrice, res.AvgPrice),
		Reason:     models.ExitReasonEmergency,
		Emergency:  true,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   closedAt,
	}

	c.risk.RecordOutcome(outcome)
	EventsProcessed.WithLabelValues("outcome").Inc()

	result := "loss"
	if outcome.Success() {
		result = "success"
	}
	RecordTrade(pos.Asset, result, outcome.Pnl)

	_ = c.registry.Update(positionID, func(p *models.Position) {
		p.Size = remainder
		p.ExitPrice = res.AvgPrice
		p.ExitReason = models.ExitReasonEmergency
		p.LastUpdate = closedAt
	})
	_ = c.registry.Force(positionID, models.StatusFailed)
	c.persist(ctx, positionID)
	if c.store != nil {
		if err := c.store.SaveOutcome(ctx, outcome); err != nil {
			c.logger.WithPosition(positionID).Error("не удалось сохранить результат", utils.Err(err))
		}
	}

	c.logger.WithPosition(pos.ID).WithAsset(pos.Asset).Warn(
		"позиция закрыта частично, остаток требует ручного закрытия",
		utils.Size(closedSize), utils.Float64("remainder", remainder),
		utils.Price(res.AvgPrice), utils.PNL(outcome.Pnl))
	c.notifyClosed(&pos, outcome)
	return nil
}

// ============================================================
// Остановка
// ============================================================

// Shutdown останавливает мониторинг и дожидается горутин
// Открытые позиции остаются на шлюзе и восстанавливаются при рестарте
func (c *ExecutionCoordinator) Shutdown() {
	if c.monitor != nil {
		c.monitor.StopAll()
	}
}

// ============================================================
// Вспомогательные
// ============================================================

func (c *ExecutionCoordinator) maxDrawdown() float64 {
	return c.risk.cfg.MaxDrawdown
}

// snapshotOf возвращает копию позиции из реестра
func (c *ExecutionCoordinator) snapshotOf(positionID string) *models.Position {
	pos, err := c.registry.Get(positionID)
	if err != nil {
		return nil
	}
	return &pos
}

// persistNew создаёт запись позиции при регистрации
func (c *ExecutionCoordinator) persistNew(ctx context.Context, pos *models.Position) {
	if c.store == nil {
		return
	}
	if err := c.store.SavePosition(ctx, pos); err != nil {
		c.logger.WithPosition(pos.ID).Error("не удалось сохранить позицию", utils.Err(err))
	}
}

// persist сохраняет текущее состояние позиции, если store подключен
func (c *ExecutionCoordinator) persist(ctx context.Context, positionID string) {
	if c.store == nil {
		return
	}
	pos, err := c.registry.Get(positionID)
	if err != nil {
		return
	}
	if err := c.store.UpdatePosition(ctx, &pos); err != nil {
		c.logger.WithPosition(positionID).Error("не удалось сохранить позицию", utils.Err(err))
	}
}

// ============================================================
// Уведомления
// ============================================================

func (c *ExecutionCoordinator) notifyOpened(pos *models.Position) {
	notif := &models.Notification{
		Timestamp:  c.now(),
		Type:       models.NotificationTypeTradeOpened,
		Severity:   models.SeverityInfo,
		PositionID: pos.ID,
		Message:    fmt.Sprintf("📈 Opened %s position, size %.2f at %.2f", pos.Asset, pos.Size, pos.EntryPrice),
		Meta: map[string]interface{}{
			"asset":       pos.Asset,
			"size":        pos.Size,
			"entry_price": pos.EntryPrice,
			"stop_loss":   pos.StopLoss.Initial,
			"take_profit": pos.TakeProfit.Target,
		},
	}
	tryEnqueueNotification(c.notificationChan, notif)
}

func (c *ExecutionCoordinator) notifyClosed(pos *models.Position, outcome *models.TradeOutcome) {
	notif := &models.Notification{
		Timestamp:  c.now(),
		Type:       models.NotificationTypeTradeClosed,
		Severity:   models.SeverityInfo,
		PositionID: pos.ID,
		Message: fmt.Sprintf("📉 Closed %s position (%s), PNL %.2f", pos.Asset,
			outcome.Reason, outcome.Pnl),
		Meta: map[string]interface{}{
			"asset":      pos.Asset,
			"reason":     outcome.Reason,
			"pnl":        outcome.Pnl,
			"return_pct": outcome.ReturnPct,
			"emergency":  outcome.Emergency,
		},
	}
	tryEnqueueNotification(c.notificationChan, notif)
}

func (c *ExecutionCoordinator) notifyError(pos *models.Position, err error) {
	notif := &models.Notification{
		Timestamp:  c.now(),
		Type:       models.NotificationTypeError,
		Severity:   models.SeverityError,
		PositionID: pos.ID,
		Message:    fmt.Sprintf("❌ Order error for %s: %v", pos.Asset, err),
		Meta: map[string]interface{}{
			"asset": pos.Asset,
			"error": err.Error(),
		},
	}
	tryEnqueueNotification(c.notificationChan, notif)
}

func (c *ExecutionCoordinator) notifyCriticalFailure(critical *CriticalFailure) {
	notif := &models.Notification{
		Timestamp:  c.now(),
		Type:       models.NotificationTypeCriticalFailure,
		Severity:   models.SeverityError,
		PositionID: critical.PositionID,
		Message: fmt.Sprintf("🆘 Critical failure closing %s: manual intervention required",
			critical.Asset),
		Meta: map[string]interface{}{
			"asset":      critical.Asset,
			"conditions": critical.Reasons,
			"error":      critical.LastErr.Error(),
		},
	}
	tryEnqueueNotification(c.notificationChan, notif)
}
