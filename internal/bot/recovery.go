package bot

import (
	"context"
	"fmt"
	"time"

	"tradexec/internal/exchange"
	"tradexec/internal/models"
	"tradexec/pkg/utils"
)

// PositionLoader - чтение сохранённых позиций при восстановлении
// Реализацию предоставляет repository
type PositionLoader interface {
	GetActivePositions(ctx context.Context) ([]*models.Position, error)
}

// RecoveryManager отвечает за восстановление работы после перезапуска
//
// Функциональность:
// - Чтение незавершённых позиций из БД при старте
// - Сверка учётного капитала с балансом шлюза
// - Возобновление мониторинга позиций, переживших рестарт
// - Долив прерванных закрытий (позиции, застрявшие в CLOSING)
// - Перевод неподтверждённых входов в FAILED
// - Уведомление оператора о каждом восстановленном состоянии
type RecoveryManager struct {
	loader      PositionLoader
	registry    *PositionRegistry
	risk        *RiskManager
	monitor     *PositionMonitor
	coordinator *ExecutionCoordinator
	gateway     exchange.Gateway

	notificationChan chan *models.Notification
	logger           *utils.Logger

	recoveryTimeout time.Duration
}

// RecoveryConfig - конфигурация восстановления
type RecoveryConfig struct {
	// RecoveryTimeout - таймаут на весь процесс восстановления
	RecoveryTimeout time.Duration
}

// DefaultRecoveryConfig возвращает конфигурацию по умолчанию
func DefaultRecoveryConfig() *RecoveryConfig {
	return &RecoveryConfig{
		RecoveryTimeout: 30 * time.Second,
	}
}

// NewRecoveryManager создает менеджер восстановления
func NewRecoveryManager(
	loader PositionLoader,
	registry *PositionRegistry,
	risk *RiskManager,
	monitor *PositionMonitor,
	coordinator *ExecutionCoordinator,
	gateway exchange.Gateway,
	notifChan chan *models.Notification,
	cfg *RecoveryConfig,
) *RecoveryManager {
	if cfg == nil {
		cfg = DefaultRecoveryConfig()
	}
	return &RecoveryManager{
		loader:           loader,
		registry:         registry,
		risk:             risk,
		monitor:          monitor,
		coordinator:      coordinator,
		gateway:          gateway,
		notificationChan: notifChan,
		logger:           utils.L().WithComponent("recovery"),
		recoveryTimeout:  cfg.RecoveryTimeout,
	}
}

// RecoveryResult содержит итоги восстановления
type RecoveryResult struct {
	// PositionsLoaded - незавершённые позиции, найденные в БД
	PositionsLoaded int

	// MonitorsResumed - позиции, для которых возобновлён мониторинг
	MonitorsResumed int

	// ClosesReplayed - прерванные закрытия, запущенные заново
	ClosesReplayed int

	// EntriesFailed - неподтверждённые входы, переведённые в FAILED
	EntriesFailed int

	// Errors - нефатальные ошибки по ходу восстановления
	Errors []error
}

// Recover выполняет полный процесс восстановления
//
// Шаги:
// 1. Сверка капитала с балансом шлюза
// 2. Загрузка незавершённых позиций из БД
// 3. Разбор каждой позиции по статусу:
//   - PENDING: вход не подтверждён, позиция уходит в FAILED
//   - OPEN, MONITORING: позиция возвращается в реестр, мониторинг
//     возобновляется
//   - CLOSING: закрытие было прервано, запускается заново
//
// 4. Сводное уведомление оператора
func (rm *RecoveryManager) Recover(ctx context.Context) (*RecoveryResult, error) {
	result := &RecoveryResult{}

	ctx, cancel := context.WithTimeout(ctx, rm.recoveryTimeout)
	defer cancel()

	rm.reconcileBalance(ctx, result)

	positions, err := rm.loader.GetActivePositions(ctx)
	if err != nil {
		return result, fmt.Errorf("загрузка позиций: %w", err)
	}
	result.PositionsLoaded = len(positions)

	if len(positions) == 0 {
		rm.notify(models.SeverityInfo, "Recovery complete: no unfinished positions found", nil)
		return result, nil
	}

	for _, pos := range positions {
		switch pos.Status {
		case models.StatusPending:
			rm.failUnconfirmedEntry(ctx, pos, result)
		case models.StatusOpen, models.StatusMonitoring:
			rm.resumeMonitoring(ctx, pos, result)
		case models.StatusClosing:
			rm.replayClose(ctx, pos, result)
		default:
			// Терминальные статусы в выборке не ожидаются
			rm.logger.WithPosition(pos.ID).Warn("неожиданный статус при восстановлении",
				utils.Status(pos.Status))
		}
	}

	rm.notify(models.SeverityInfo, fmt.Sprintf(
		"Recovery summary: %d positions loaded, %d monitors resumed, %d closes replayed, %d entries failed",
		result.PositionsLoaded, result.MonitorsResumed, result.ClosesReplayed, result.EntriesFailed),
		map[string]interface{}{
			"loaded":   result.PositionsLoaded,
			"resumed":  result.MonitorsResumed,
			"replayed": result.ClosesReplayed,
			"failed":   result.EntriesFailed,
		})

	return result, nil
}

// RecoverAsync запускает восстановление асинхронно
func (rm *RecoveryManager) RecoverAsync(ctx context.Context) <-chan *RecoveryResult {
	resultChan := make(chan *RecoveryResult, 1)
	go func() {
		defer close(resultChan)
		result, err := rm.Recover(ctx)
		if err != nil {
			result.Errors = append(result.Errors, err)
		}
		resultChan <- result
	}()
	return resultChan
}

// reconcileBalance сверяет учётный капитал с балансом шлюза
func (rm *RecoveryManager) reconcileBalance(ctx context.Context, result *RecoveryResult) {
	if rm.gateway == nil {
		return
	}
	balance, err := rm.gateway.GetBalance(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("сверка баланса: %w", err))
		rm.logger.Warn("не удалось получить баланс шлюза", utils.Err(err))
		return
	}
	if balance > 0 {
		rm.risk.SetCapital(balance)
		rm.logger.Info("капитал сверен с балансом шлюза", utils.Float64("balance", balance))
	}
}

// failUnconfirmedEntry переводит неподтверждённый вход в FAILED
//
// Исполнился ли входной ордер до рестарта, определить нельзя:
// позиция требует ручной проверки оператором.
func (rm *RecoveryManager) failUnconfirmedEntry(ctx context.Context, pos *models.Position, result *RecoveryResult) {
	rm.registry.Add(pos)
	if err := rm.registry.Transition(pos.ID, models.StatusFailed); err != nil {
		result.Errors = append(result.Errors, err)
		return
	}
	result.EntriesFailed++

	rm.notify(models.SeverityError, fmt.Sprintf(
		"Unconfirmed entry for %s marked FAILED after restart: manual check required", pos.Asset),
		map[string]interface{}{
			"position_id": pos.ID,
			"asset":       pos.Asset,
		})
}

// resumeMonitoring возвращает позицию в реестр и возобновляет мониторинг
func (rm *RecoveryManager) resumeMonitoring(ctx context.Context, pos *models.Position, result *RecoveryResult) {
	rm.registry.Add(pos)

	if pos.Status == models.StatusOpen {
		if err := rm.registry.Transition(pos.ID, models.StatusMonitoring); err != nil {
			result.Errors = append(result.Errors, err)
			return
		}
	}

	if err := rm.risk.RegisterOpen(pos.Asset, pos.Size); err != nil {
		// Лимит экспозиции не повод бросить живую позицию без присмотра
		rm.logger.WithPosition(pos.ID).Warn("экспозиция сверх лимита при восстановлении",
			utils.Err(err))
		rm.risk.AdjustExposure(pos.Size)
	}

	if rm.monitor != nil {
		rm.monitor.Start(ctx, pos.ID)
	}
	result.MonitorsResumed++

	rm.notify(models.SeverityWarn, fmt.Sprintf(
		"Resumed monitoring for %s position, size %.2f", pos.Asset, pos.Size),
		map[string]interface{}{
			"position_id": pos.ID,
			"asset":       pos.Asset,
			"size":        pos.Size,
		})
}

// replayClose запускает заново прерванное закрытие
//
// Позиция входит в реестр в CLOSING: CAS уже пройден до рестарта,
// повторный exit request не нужен и невозможен.
func (rm *RecoveryManager) replayClose(ctx context.Context, pos *models.Position, result *RecoveryResult) {
	rm.registry.Add(pos)
	if err := rm.risk.RegisterOpen(pos.Asset, pos.Size); err != nil {
		rm.risk.AdjustExposure(pos.Size)
	}

	if err := rm.coordinator.closeNormal(ctx, &models.ExitRequest{
		PositionID: pos.ID,
		Reason:     models.ExitReasonRecovery,
		Timestamp:  time.Now(),
	}); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("долив закрытия %s: %w", pos.ID, err))
		return
	}
	result.ClosesReplayed++
}

// notify отправляет уведомление о ходе восстановления
func (rm *RecoveryManager) notify(severity, message string, meta map[string]interface{}) {
	notif := &models.Notification{
		Timestamp: time.Now(),
		Type:      models.NotificationTypeRecovery,
		Severity:  severity,
		Message:   message,
		Meta:      meta,
	}
	tryEnqueueNotification(rm.notificationChan, notif)
}
