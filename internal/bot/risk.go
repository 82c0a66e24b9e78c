package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradexec/internal/config"
	"tradexec/internal/models"
	"tradexec/pkg/utils"
)

// RiskManager - централизованный менеджер рисков
//
// Функции:
// - Валидация сигнала перед входом (уверенность, риск, лимиты позиций)
// - Расчёт уровней stop loss и take profit под текущую волатильность
// - Учёт результатов сделок: просадка, дневной убыток, статистика
// - Остановка новых входов при пробое лимитов (halt)
// - Сброс дневных метрик в начале торгового дня
// - Генерация уведомлений о достижении лимитов
//
// Все изменения состояния проходят через один мьютекс: конкурентные
// recordOutcome от нескольких мониторов линеаризуются, пробой лимита
// фиксируется ровно один раз.
type RiskManager struct {
	mu sync.Mutex

	capital float64
	budget  models.RiskBudget
	perf    models.PerformanceStats

	openPositions int

	halted     bool
	haltReason string

	// Канал для уведомлений
	notificationChan chan *models.Notification

	// Конфигурация
	cfg config.RiskConfig

	// Переопределяется в тестах
	now func() time.Time
}

// Причины остановки входа
const (
	haltReasonDrawdown  = "max drawdown exceeded"
	haltReasonDailyLoss = "max daily loss exceeded"
	haltReasonCritical  = "critical failure during emergency close"
)

// NewRiskManager создает риск-менеджер
//
// capital - стартовый капитал для нормализации потерь в доли
func NewRiskManager(capital float64, cfg config.RiskConfig, notifChan chan *models.Notification) *RiskManager {
	rm := &RiskManager{
		capital:          capital,
		cfg:              cfg,
		notificationChan: notifChan,
		now:              time.Now,
	}
	rm.budget.LastDailyReset = rm.now()
	return rm
}

// ============================================================
// Валидация входа
// ============================================================

// Validate проверяет сигнал против лимитов риска
//
// Возвращает nil, если вход разрешён. ErrEntriesHalted при остановке,
// *ValidationError с причиной во всех остальных случаях.
func (rm *RiskManager) Validate(d *models.Decision, snap *models.MarketSnapshot) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.halted {
		return ErrEntriesHalted
	}

	if d.Action != models.ActionBuy {
		return &ValidationError{Asset: d.Asset, Reason: fmt.Sprintf("unsupported action %q", d.Action)}
	}
	if d.Confidence < rm.cfg.MinConfidence {
		return &ValidationError{Asset: d.Asset,
			Reason: fmt.Sprintf("confidence %.2f below minimum %.2f", d.Confidence, rm.cfg.MinConfidence)}
	}
	if d.RiskScore > rm.cfg.MaxRiskScore {
		return &ValidationError{Asset: d.Asset,
			Reason: fmt.Sprintf("risk score %.2f above maximum %.2f", d.RiskScore, rm.cfg.MaxRiskScore)}
	}
	if snap == nil || snap.Price <= 0 {
		return &ValidationError{Asset: d.Asset, Reason: "no market data"}
	}
	if rm.openPositions >= rm.cfg.MaxOpenPositions {
		return &ValidationError{Asset: d.Asset,
			Reason: fmt.Sprintf("open positions limit reached (%d)", rm.cfg.MaxOpenPositions)}
	}
	if rm.budget.CurrentDrawdown >= rm.cfg.MaxDrawdown {
		return &ValidationError{Asset: d.Asset, Reason: "drawdown budget exhausted"}
	}
	if rm.budget.DailyLoss >= rm.cfg.MaxDailyLoss {
		return &ValidationError{Asset: d.Asset, Reason: "daily loss budget exhausted"}
	}

	return nil
}

// RegisterOpen резервирует экспозицию под открываемую позицию
//
// Вызывается после успешного входа, до запуска мониторинга.
// Возвращает ошибку, если суммарная экспозиция превысила бы лимит.
func (rm *RiskManager) RegisterOpen(asset string, size float64) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.budget.OpenExposure+size > rm.cfg.MaxExposure {
		return &ValidationError{Asset: asset,
			Reason: fmt.Sprintf("exposure %.2f + %.2f would exceed limit %.2f",
				rm.budget.OpenExposure, size, rm.cfg.MaxExposure)}
	}

	rm.openPositions++
	rm.budget.OpenExposure += size
	rm.updateGaugesLocked()
	return nil
}

// ReleaseOpen освобождает экспозицию позиции, не дошедшей до закрытия
// через RecordOutcome (отказ входа после резервирования)
func (rm *RiskManager) ReleaseOpen(size float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.releaseLocked(size)
	rm.updateGaugesLocked()
}

// AdjustExposure корректирует экспозицию без изменения счётчика позиций
// Используется, когда фактическое исполнение отличается от запрошенного
func (rm *RiskManager) AdjustExposure(delta float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.budget.OpenExposure += delta
	if rm.budget.OpenExposure < 0 {
		rm.budget.OpenExposure = 0
	}
	rm.updateGaugesLocked()
}

func (rm *RiskManager) releaseLocked(size float64) {
	rm.openPositions--
	if rm.openPositions < 0 {
		rm.openPositions = 0
	}
	rm.budget.OpenExposure -= size
	if rm.budget.OpenExposure < 0 {
		rm.budget.OpenExposure = 0
	}
}

// ============================================================
// Расчёт стопов
// ============================================================

// ComputeStops рассчитывает уровни выхода для сигнала
//
// Ширина stop loss растёт с волатильностью и риском сигнала:
//
//	slPct = base × (1 + volatility × volMultiplier) × (1 + riskScore) × perfAdj
//
// Take profit ставится с фиксированным отношением к стопу (RiskRewardRatio).
func (rm *RiskManager) ComputeStops(d *models.Decision, snap *models.MarketSnapshot) models.StopLevels {
	rm.mu.Lock()
	perf := rm.perf
	rm.mu.Unlock()

	slPct := rm.cfg.BaseStopLossPct *
		(1 + snap.Volatility*rm.cfg.VolatilityMultiplier) *
		(1 + d.RiskScore) *
		performanceAdjustment(perf)
	tpPct := slPct * rm.cfg.RiskRewardRatio

	return models.StopLevels{
		StopLossPct:     slPct,
		StopLossPrice:   d.EntryPrice * (1 - slPct),
		TakeProfitPct:   tpPct,
		TakeProfitPrice: d.EntryPrice * (1 + tpPct),
		Trailing:        true,
	}
}

// ============================================================
// Учёт результатов
// ============================================================

// RecordOutcome учитывает результат закрытой сделки
//
// Обновляет просадку, дневной убыток и статистику, проверяет лимиты.
// Пробой лимита останавливает новые входы и отправляет уведомление.
// Вызывается строго до удаления позиции из реестра.
func (rm *RiskManager) RecordOutcome(outcome *models.TradeOutcome) {
	rm.mu.Lock()

	rm.releaseLocked(outcome.Size)

	// Статистика результативности
	rm.perf.TotalTrades++
	if outcome.Success() {
		rm.perf.SuccessfulTrades++
	}
	rm.perf.SuccessRate = float64(rm.perf.SuccessfulTrades) / float64(rm.perf.TotalTrades)
	rm.perf.AverageReturn += (outcome.ReturnPct - rm.perf.AverageReturn) / float64(rm.perf.TotalTrades)

	// Просадка и дневной лимит накапливают только убытки:
	// прибыль улучшает статистику, но бюджет потерь не восстанавливает
	if rm.capital > 0 {
		if lossFraction := -outcome.Pnl / rm.capital; lossFraction > 0 {
			rm.budget.CurrentDrawdown += lossFraction
			rm.budget.DailyLoss += lossFraction
		}
	}

	var breach string
	if rm.budget.CurrentDrawdown >= rm.cfg.MaxDrawdown {
		breach = haltReasonDrawdown
	} else if rm.budget.DailyLoss >= rm.cfg.MaxDailyLoss {
		breach = haltReasonDailyLoss
	}

	alreadyHalted := rm.halted
	if breach != "" && !rm.halted {
		rm.halted = true
		rm.haltReason = breach
	}

	budget := rm.budget
	rm.updateGaugesLocked()
	rm.mu.Unlock()

	if breach != "" && !alreadyHalted {
		rm.notifyRiskLimit(breach, budget)
	}
}

// ============================================================
// Halt управление
// ============================================================

// Halt останавливает новые входы с указанной причиной
func (rm *RiskManager) Halt(reason string) {
	rm.mu.Lock()
	already := rm.halted
	if !already {
		rm.halted = true
		rm.haltReason = reason
	}
	budget := rm.budget
	rm.updateGaugesLocked()
	rm.mu.Unlock()

	if !already {
		rm.notifyRiskLimit(reason, budget)
	}
}

// Halted сообщает, остановлены ли новые входы
func (rm *RiskManager) Halted() (bool, string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.halted, rm.haltReason
}

// ResetHalt снимает остановку входа (ручное вмешательство оператора)
func (rm *RiskManager) ResetHalt() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.halted = false
	rm.haltReason = ""
	rm.updateGaugesLocked()
}

// ============================================================
// Дневной сброс
// ============================================================

// ResetDailyMetrics обнуляет дневной убыток
//
// Остановка по дневному лимиту снимается, остановка по просадке
// или критическому отказу требует ручного вмешательства.
func (rm *RiskManager) ResetDailyMetrics() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.budget.DailyLoss = 0
	rm.budget.LastDailyReset = rm.now()

	if rm.halted && rm.haltReason == haltReasonDailyLoss {
		rm.halted = false
		rm.haltReason = ""
	}
	rm.updateGaugesLocked()
}

// RunDailyReset запускает воркер сброса дневных метрик
// Срабатывает в начале каждых суток UTC, до отмены контекста
func (rm *RiskManager) RunDailyReset(ctx context.Context) {
	for {
		next := utils.NextDayStartFrom(rm.now())
		timer := time.NewTimer(next.Sub(rm.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			rm.ResetDailyMetrics()
		}
	}
}

// ============================================================
// Снимки состояния
// ============================================================

// Status возвращает снимок состояния для API
func (rm *RiskManager) Status() models.RiskStatus {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return models.RiskStatus{
		Budget:      rm.budget,
		Performance: rm.perf,
		Halted:      rm.halted,
		HaltReason:  rm.haltReason,
	}
}

// Budget возвращает текущий риск-бюджет
func (rm *RiskManager) Budget() models.RiskBudget {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.budget
}

// Performance возвращает статистику результатов
func (rm *RiskManager) Performance() models.PerformanceStats {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.perf
}

// Capital возвращает учётный капитал
func (rm *RiskManager) Capital() float64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.capital
}

// SetCapital обновляет учётный капитал (например, после сверки баланса)
func (rm *RiskManager) SetCapital(capital float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if capital > 0 {
		rm.capital = capital
	}
}

func (rm *RiskManager) updateGaugesLocked() {
	UpdateRiskGauges(rm.budget.CurrentDrawdown, rm.budget.OpenExposure, rm.halted)
}

// ============================================================
// Уведомления
// ============================================================

// notifyRiskLimit отправляет уведомление об остановке входа
func (rm *RiskManager) notifyRiskLimit(reason string, budget models.RiskBudget) {
	notif := &models.Notification{
		Timestamp: rm.now(),
		Type:      models.NotificationTypeRiskLimit,
		Severity:  models.SeverityError,
		Message:   fmt.Sprintf("🚫 New entries halted: %s", reason),
		Meta: map[string]interface{}{
			"reason":           reason,
			"current_drawdown": budget.CurrentDrawdown,
			"daily_loss":       budget.DailyLoss,
			"open_exposure":    budget.OpenExposure,
		},
	}
	tryEnqueueNotification(rm.notificationChan, notif)
}
