package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики для торгового ядра
// ============================================================
//
// Назначение:
// - Мониторинг латентности входа и выхода
// - Счётчики сделок, отклонений и аварийных выходов
// - Алерты на переполнение буферов и остановку входа
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах

// ============ Метрики латентности ============

// OrderSubmitLatency - время исполнения ордера на шлюзе
var OrderSubmitLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "tradexec",
		Subsystem: "execution",
		Name:      "order_submit_latency_ms",
		Help:      "Time to submit and confirm order at gateway in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"purpose", "side"}, // purpose: entry, exit, emergency
)

// MonitorCycleLatency - время одного цикла проверки позиции
var MonitorCycleLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "tradexec",
		Subsystem: "monitor",
		Name:      "cycle_latency_ms",
		Help:      "Time to evaluate exit conditions for a position in milliseconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
	},
	[]string{"asset"},
)

// ============ Счётчики событий ============

// EventsProcessed - количество обработанных событий по типам
var EventsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradexec",
		Subsystem: "execution",
		Name:      "events_processed_total",
		Help:      "Total number of processed events",
	},
	[]string{"type"}, // decision, exit_request, outcome
)

// TradesTotal - общее количество сделок
var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradexec",
		Subsystem: "execution",
		Name:      "trades_total",
		Help:      "Total number of trades",
	},
	[]string{"asset", "result"}, // result: success, loss, failed, rejected
)

// PnlTotal - суммарный реализованный PNL
// Gauge, а не Counter: убыточные сделки уменьшают значение
var PnlTotal = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradexec",
		Subsystem: "execution",
		Name:      "pnl_total_quote",
		Help:      "Total realized PnL in quote currency",
	},
)

// StatusTransitions - переходы статусов позиций
var StatusTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradexec",
		Subsystem: "execution",
		Name:      "status_transitions_total",
		Help:      "Number of position status transitions",
	},
	[]string{"from", "to"},
)

// DuplicateExitRequests - проигравшие CAS запросы на закрытие
var DuplicateExitRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradexec",
		Subsystem: "execution",
		Name:      "duplicate_exit_requests_total",
		Help:      "Number of exit requests discarded by the CLOSING CAS",
	},
	[]string{"reason"},
)

// ============ Метрики состояния ============

// ActivePositions - количество позиций в реестре по статусам
var ActivePositions = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "tradexec",
		Subsystem: "execution",
		Name:      "active_positions",
		Help:      "Number of positions in the registry by status",
	},
	[]string{"status"},
)

// OpenExposure - суммарный размер открытых позиций
var OpenExposure = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradexec",
		Subsystem: "risk",
		Name:      "open_exposure_quote",
		Help:      "Total size of open positions in quote currency",
	},
)

// CurrentDrawdown - текущая просадка
var CurrentDrawdown = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradexec",
		Subsystem: "risk",
		Name:      "current_drawdown",
		Help:      "Accumulated losses since last reset as a fraction of capital",
	},
)

// EntryHalted - флаг остановки входа риск-менеджером
var EntryHalted = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradexec",
		Subsystem: "risk",
		Name:      "entry_halted",
		Help:      "Whether new entries are halted by the risk manager (1=halted)",
	},
)

// GatewayConnection - статус подключения к шлюзу
var GatewayConnection = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "tradexec",
		Subsystem: "gateway",
		Name:      "connection_status",
		Help:      "Gateway connection status (1=connected, 0=disconnected)",
	},
	[]string{"gateway"},
)

// ============ Метрики производительности ============

// BufferOverflows - переполнения буферов каналов
var BufferOverflows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradexec",
		Subsystem: "execution",
		Name:      "buffer_overflows_total",
		Help:      "Number of channel buffer overflows (events dropped)",
	},
	[]string{"buffer"}, // notification, exit_request
)

// MonitorGoroutines - количество работающих мониторов
var MonitorGoroutines = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradexec",
		Subsystem: "monitor",
		Name:      "goroutines",
		Help:      "Current number of position monitor goroutines",
	},
)

// ============ Метрики риска ============

// StopLossTriggered - срабатывания стоп-лосса
var StopLossTriggered = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradexec",
		Subsystem: "risk",
		Name:      "stop_loss_triggered_total",
		Help:      "Number of stop loss triggers",
	},
	[]string{"asset", "kind"}, // kind: initial, trailing
)

// TakeProfitTriggered - срабатывания тейк-профита
var TakeProfitTriggered = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradexec",
		Subsystem: "risk",
		Name:      "take_profit_triggered_total",
		Help:      "Number of take profit triggers",
	},
	[]string{"asset"},
)

// EmergencyExits - аварийные выходы по методам
var EmergencyExits = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradexec",
		Subsystem: "emergency",
		Name:      "exits_total",
		Help:      "Number of emergency exits by method and result",
	},
	[]string{"method", "result"}, // method: market, split, backup; result: success, partial, failed
)

// EmergencyConditions - сработавшие аварийные условия
var EmergencyConditions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradexec",
		Subsystem: "emergency",
		Name:      "conditions_total",
		Help:      "Number of emergency condition triggers by type",
	},
	[]string{"condition"}, // price_drop, volatility_spike, liquidity_drop, network_latency, error_frequency
)

// ============ Вспомогательные функции ============

// RecordStatusTransition записывает переход статуса позиции
func RecordStatusTransition(from, to string) {
	StatusTransitions.WithLabelValues(from, to).Inc()
}

// RecordOrderLatency записывает латентность исполнения ордера
func RecordOrderLatency(purpose, side string, latencyMs float64) {
	OrderSubmitLatency.WithLabelValues(purpose, side).Observe(latencyMs)
}

// RecordTrade записывает информацию о сделке
func RecordTrade(asset, result string, pnl float64) {
	TradesTotal.WithLabelValues(asset, result).Inc()
	if pnl != 0 {
		PnlTotal.Add(pnl)
	}
}

// RecordBufferOverflow записывает переполнение буфера
func RecordBufferOverflow(bufferName string) {
	BufferOverflows.WithLabelValues(bufferName).Inc()
}

// RecordDuplicateExit записывает проигравший CAS запрос на закрытие
func RecordDuplicateExit(reason string) {
	DuplicateExitRequests.WithLabelValues(reason).Inc()
}

// RecordEmergencyExit записывает аварийный выход
func RecordEmergencyExit(method, result string) {
	EmergencyExits.WithLabelValues(method, result).Inc()
}

// RecordEmergencyCondition записывает сработавшее аварийное условие
func RecordEmergencyCondition(condition string) {
	EmergencyConditions.WithLabelValues(condition).Inc()
}

// UpdateRiskGauges обновляет метрики риск-менеджера
func UpdateRiskGauges(drawdown, exposure float64, halted bool) {
	CurrentDrawdown.Set(drawdown)
	OpenExposure.Set(exposure)
	if halted {
		EntryHalted.Set(1)
	} else {
		EntryHalted.Set(0)
	}
}

// UpdateGatewayStatus обновляет статус шлюза
func UpdateGatewayStatus(gateway string, connected bool) {
	if connected {
		GatewayConnection.WithLabelValues(gateway).Set(1)
	} else {
		GatewayConnection.WithLabelValues(gateway).Set(0)
	}
}
