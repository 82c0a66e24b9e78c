package bot

import (
	"context"
	"sync"
	"time"

	"tradexec/internal/config"
	"tradexec/internal/exchange"
	"tradexec/internal/models"
	"tradexec/pkg/utils"
)

// WebSocketHub - интерфейс для отправки данных клиентам
//
// Реализуется пакетом internal/websocket/Hub
// Используется для real-time обновления UI:
// - positionUpdate: состояние позиций каждую секунду
// - notification: события жизненного цикла
// - riskUpdate: состояние риск-бюджета
type WebSocketHub interface {
	// BroadcastPositionUpdate отправляет обновление позиции
	// Вызывается каждую секунду для позиций в реестре
	BroadcastPositionUpdate(pos *models.Position)

	// BroadcastNotification отправляет уведомление о событии
	BroadcastNotification(notif *models.Notification)

	// BroadcastRiskUpdate отправляет состояние риск-менеджера
	BroadcastRiskUpdate(status models.RiskStatus)
}

// NotificationSink - персистентность уведомлений
// Реализацию предоставляет repository, nil допустим
type NotificationSink interface {
	SaveNotification(ctx context.Context, notif *models.Notification) error
}

// Engine - главный движок торгового ядра (event-driven)
//
// Поток данных:
//
//	сигналы    -> decisions  -> координатор (вход)
//	WebSocket  -> цены       -> трекеры волатильности и аварийных условий
//	мониторы   -> exit req   -> координатор (выход)
//	тикер      -> детекция   -> аварийное закрытие
//
// Engine не принимает торговых решений сам: он маршрутизирует события
// между источником сигналов, координатором и контроллером аварий.
type Engine struct {
	cfg *config.Config

	gateway     exchange.Gateway
	coordinator *ExecutionCoordinator
	registry    *PositionRegistry
	risk        *RiskManager
	emergency   *EmergencyController
	volatility  *VolatilityTracker

	// Входной канал сигналов
	decisions chan *models.Decision

	// Канал уведомлений, общий для всех компонентов ядра
	notificationChan chan *models.Notification

	// WebSocket hub для отправки данных клиентам, nil допустим
	wsHub WebSocketHub

	// Персистентность уведомлений, nil допустим
	notifSink NotificationSink

	logger   *utils.Logger
	shutdown chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// интервалы фоновых задач движка
const (
	emergencyCheckInterval = 2 * time.Second
	broadcastInterval      = 1 * time.Second
)

// NewEngine создает движок
// wsHub и notifSink могут быть nil
func NewEngine(
	cfg *config.Config,
	gateway exchange.Gateway,
	coordinator *ExecutionCoordinator,
	registry *PositionRegistry,
	risk *RiskManager,
	emergency *EmergencyController,
	notifChan chan *models.Notification,
	wsHub WebSocketHub,
	notifSink NotificationSink,
) *Engine {
	return &Engine{
		cfg:              cfg,
		gateway:          gateway,
		coordinator:      coordinator,
		registry:         registry,
		risk:             risk,
		emergency:        emergency,
		volatility:       NewVolatilityTracker(),
		decisions:        make(chan *models.Decision, cfg.Execution.EventBuffer),
		notificationChan: notifChan,
		wsHub:            wsHub,
		notifSink:        notifSink,
		logger:           utils.L().WithComponent("engine"),
		shutdown:         make(chan struct{}),
	}
}

// Run запускает рабочие циклы движка и блокируется до отмены контекста
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("торговое ядро запущено",
		utils.String("gateway", e.gateway.Name()),
		utils.Bool("dry_run", e.cfg.Execution.DryRun))

	workers := []func(context.Context){
		e.decisionLoop,
		e.notificationLoop,
		e.emergencyLoop,
		e.broadcastLoop,
	}
	for _, w := range workers {
		w := w
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			w(ctx)
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.risk.RunDailyReset(ctx)
	}()

	<-ctx.Done()
	e.Stop()
	e.wg.Wait()
	e.coordinator.Shutdown()
	return ctx.Err()
}

// Stop закрывает каналы остановки, идемпотентен
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.shutdown)
	})
}

// ============================================================
// Входные события
// ============================================================

// SubmitDecision ставит сигнал в очередь обработки
// Возвращает false, если буфер переполнен: сигнал сбрасывается,
// устаревшие сигналы опаснее пропущенных
func (e *Engine) SubmitDecision(d *models.Decision) bool {
	if d == nil {
		return false
	}
	select {
	case e.decisions <- d:
		return true
	default:
		RecordBufferOverflow("decision")
		e.logger.Warn("буфер сигналов переполнен, сигнал сброшен", utils.Asset(d.Asset))
		return false
	}
}

// TrackAsset подписывает движок на поток цен актива
// Цены питают трекер волатильности и детектор аварийных условий
func (e *Engine) TrackAsset(asset string) error {
	return e.gateway.SubscribePrices(asset, func(update *exchange.PriceUpdate) {
		e.volatility.Add(asset, update.LastPrice)
		e.emergency.RecordPrice(asset, update.LastPrice)
	})
}

// decisionLoop обрабатывает входящие сигналы
func (e *Engine) decisionLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.shutdown:
			return
		case d := <-e.decisions:
			e.handleDecision(ctx, d)
		}
	}
}

// handleDecision собирает срез рынка и передаёт сигнал координатору
func (e *Engine) handleDecision(ctx context.Context, d *models.Decision) {
	if d.Action != models.ActionBuy {
		return
	}

	snap, err := e.marketSnapshot(ctx, d.Asset)
	if err != nil {
		e.logger.Warn("нет рыночных данных для сигнала", utils.Asset(d.Asset), utils.Err(err))
		return
	}

	if _, err := e.coordinator.OpenPosition(ctx, d, snap); err != nil {
		e.logger.Info("сигнал не привёл к входу", utils.Asset(d.Asset), utils.Err(err))
	}
}

// marketSnapshot собирает текущий срез рынка по активу
func (e *Engine) marketSnapshot(ctx context.Context, asset string) (*models.MarketSnapshot, error) {
	price, err := e.gateway.GetPrice(ctx, asset)
	if err != nil {
		return nil, err
	}
	liquidity, err := e.gateway.GetLiquidity(ctx, asset)
	if err != nil {
		return nil, err
	}
	return &models.MarketSnapshot{
		Asset:      asset,
		Price:      price,
		Volatility: e.volatility.Value(asset),
		Liquidity:  liquidity,
		Timestamp:  time.Now(),
	}, nil
}

// ============================================================
// Аварийная детекция
// ============================================================

// emergencyLoop периодически проверяет аварийные условия по всем
// позициям под мониторингом
func (e *Engine) emergencyLoop(ctx context.Context) {
	ticker := time.NewTicker(emergencyCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.shutdown:
			return
		case <-ticker.C:
			e.checkEmergencyConditions(ctx)
		}
	}
}

func (e *Engine) checkEmergencyConditions(ctx context.Context) {
	for _, pos := range e.registry.List() {
		pos := pos
		if pos.Status != models.StatusMonitoring {
			continue
		}

		snap, err := e.marketSnapshot(ctx, pos.Asset)
		if err != nil {
			snap = nil
		}

		conditions := e.emergency.Detect(ctx, &pos, snap)
		if len(conditions) == 0 {
			continue
		}

		e.logger.WithPosition(pos.ID).Warn("сработали аварийные условия",
			utils.Asset(pos.Asset), utils.Any("conditions", conditions))

		if err := e.coordinator.EmergencyClose(ctx, pos.ID, conditions); err != nil {
			e.logger.WithPosition(pos.ID).Error("аварийное закрытие не удалось", utils.Err(err))
		}
	}
}

// ============================================================
// Раздача событий
// ============================================================

// notificationLoop раздаёт уведомления в hub и персистентность
func (e *Engine) notificationLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.shutdown:
			return
		case notif := <-e.notificationChan:
			if e.notifSink != nil {
				if err := e.notifSink.SaveNotification(ctx, notif); err != nil {
					e.logger.Error("не удалось сохранить уведомление", utils.Err(err))
				}
			}
			if e.wsHub != nil {
				e.wsHub.BroadcastNotification(notif)
			}
		}
	}
}

// broadcastLoop раз в секунду отправляет клиентам состояние позиций
// и риск-бюджета
func (e *Engine) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.shutdown:
			return
		case <-ticker.C:
			if e.wsHub == nil {
				continue
			}
			for _, pos := range e.registry.List() {
				pos := pos
				e.wsHub.BroadcastPositionUpdate(&pos)
			}
			e.wsHub.BroadcastRiskUpdate(e.risk.Status())
		}
	}
}
