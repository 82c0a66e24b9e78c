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

// PositionMonitor - мониторинг открытых позиций
//
// На каждую позицию запускается своя горутина с периодическим опросом цены.
// Цикл проверки в строгом порядке:
//
//  1. Подтяжка трейлинг-стопа за новым максимумом цены (только вверх)
//  2. Stop loss по стартовому уровню
//  3. Take profit
//  4. Трейлинг-стоп по подтянутому уровню
//
// За один цикл отправляется не больше одного запроса на закрытие.
// Монитор завершается после первого отправленного запроса: дальше
// позицию ведёт координатор, дубликаты отсекает CAS реестра.
type PositionMonitor struct {
	registry *PositionRegistry
	market   exchange.MarketDataSource
	cfg      config.MonitorConfig

	// exitFn доставляет запрос на закрытие координатору
	exitFn func(ctx context.Context, req *models.ExitRequest)

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup

	// Переопределяется в тестах
	now func() time.Time
}

// NewPositionMonitor создает монитор позиций
func NewPositionMonitor(
	registry *PositionRegistry,
	market exchange.MarketDataSource,
	cfg config.MonitorConfig,
	exitFn func(ctx context.Context, req *models.ExitRequest),
) *PositionMonitor {
	return &PositionMonitor{
		registry: registry,
		market:   market,
		cfg:      cfg,
		exitFn:   exitFn,
		cancels:  make(map[string]context.CancelFunc),
		now:      time.Now,
	}
}

// Start запускает горутину мониторинга позиции
// Повторный запуск для той же позиции игнорируется
func (pm *PositionMonitor) Start(ctx context.Context, positionID string) {
	pm.mu.Lock()
	if _, exists := pm.cancels[positionID]; exists {
		pm.mu.Unlock()
		return
	}
	monCtx, cancel := context.WithCancel(ctx)
	pm.cancels[positionID] = cancel
	pm.wg.Add(1)
	pm.mu.Unlock()

	MonitorGoroutines.Inc()

	go func() {
		defer func() {
			pm.mu.Lock()
			delete(pm.cancels, positionID)
			pm.mu.Unlock()
			MonitorGoroutines.Dec()
			pm.wg.Done()
		}()
		pm.run(monCtx, positionID)
	}()
}

// Stop останавливает монитор конкретной позиции
func (pm *PositionMonitor) Stop(positionID string) {
	pm.mu.Lock()
	cancel, ok := pm.cancels[positionID]
	pm.mu.Unlock()
	if ok {
		cancel()
	}
}

// StopAll останавливает все мониторы и ждёт завершения горутин
func (pm *PositionMonitor) StopAll() {
	pm.mu.Lock()
	for _, cancel := range pm.cancels {
		cancel()
	}
	pm.mu.Unlock()
	pm.wg.Wait()
}

// Running возвращает количество работающих мониторов
func (pm *PositionMonitor) Running() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.cancels)
}

// run - основной цикл мониторинга позиции
func (pm *PositionMonitor) run(ctx context.Context, positionID string) {
	log := utils.L().WithComponent("monitor").WithPosition(positionID)

	ticker := time.NewTicker(pm.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			exited, done := pm.checkOnce(ctx, positionID)
			if done {
				return
			}
			if exited {
				log.Info("запрос на закрытие отправлен, монитор завершается")
				return
			}
		}
	}
}

// checkOnce выполняет один цикл проверки позиции
// Возвращает exited=true если отправлен запрос на закрытие,
// done=true если мониторинг больше не нужен
func (pm *PositionMonitor) checkOnce(ctx context.Context, positionID string) (exited, done bool) {
	started := time.Now()

	pos, err := pm.registry.Get(positionID)
	if err != nil {
		return false, true
	}
	if !NeedsMonitor(pos.Status) {
		return false, true
	}

	price, err := pm.market.GetPrice(ctx, pos.Asset)
	if err != nil {
		utils.L().WithComponent("monitor").Warn("не удалось получить цену",
			utils.PositionID(positionID), utils.Asset(pos.Asset), utils.Err(err))
		return false, false
	}

	// Подтяжка трейлинга до проверок выхода: уровень двигается только вверх
	newTrailing := pm.ratchetTrailing(&pos, price)

	updateErr := pm.registry.Update(positionID, func(p *models.Position) {
		p.CurrentPrice = price
		p.UnrealizedPnl = (price - p.EntryPrice) / p.EntryPrice * p.Size
		p.LastUpdate = pm.now()
		if newTrailing > 0 {
			p.StopLoss.Trailing = newTrailing
			p.StopLoss.IsTrailing = true
		}
	})
	if updateErr != nil {
		return false, true
	}
	if newTrailing > 0 {
		pos.StopLoss.Trailing = newTrailing
		pos.StopLoss.IsTrailing = true
	}

	reason := pm.exitReason(&pos, price)

	MonitorCycleLatency.WithLabelValues(pos.Asset).Observe(float64(time.Since(started).Milliseconds()))

	if reason == "" {
		return false, false
	}

	switch reason {
	case models.ExitReasonStopLoss:
		StopLossTriggered.WithLabelValues(pos.Asset, "initial").Inc()
	case models.ExitReasonTrailingStop:
		StopLossTriggered.WithLabelValues(pos.Asset, "trailing").Inc()
	case models.ExitReasonTakeProfit:
		TakeProfitTriggered.WithLabelValues(pos.Asset).Inc()
	}

	// Доставка запроса не зависит от жизни монитора: координатор
	// останавливает опрос, но закрытие не должно отменяться вместе с ним
	pm.exitFn(context.WithoutCancel(ctx), &models.ExitRequest{
		PositionID: positionID,
		Reason:     reason,
		Price:      price,
		Timestamp:  pm.now(),
	})
	return true, false
}

// ratchetTrailing возвращает новый уровень трейлинг-стопа
// или 0, если подтяжка не нужна. Уровень никогда не опускается.
func (pm *PositionMonitor) ratchetTrailing(pos *models.Position, price float64) float64 {
	if pm.cfg.TrailingStopPct <= 0 {
		return 0
	}
	candidate := price * (1 - pm.cfg.TrailingStopPct)
	if candidate <= pos.StopLoss.Initial {
		return 0
	}
	if pos.StopLoss.IsTrailing && candidate <= pos.StopLoss.Trailing {
		return 0
	}
	return candidate
}

// exitReason проверяет условия выхода в порядке приоритета
func (pm *PositionMonitor) exitReason(pos *models.Position, price float64) string {
	if pos.StopLoss.Initial > 0 && price <= pos.StopLoss.Initial {
		return models.ExitReasonStopLoss
	}
	if pos.TakeProfit.Target > 0 && price >= pos.TakeProfit.Target {
		return models.ExitReasonTakeProfit
	}
	if pos.StopLoss.IsTrailing && pos.StopLoss.Trailing > pos.StopLoss.Initial && price <= pos.StopLoss.Trailing {
		return models.ExitReasonTrailingStop
	}
	return ""
}
