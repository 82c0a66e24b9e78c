package exchange

import (
	"sync"
	"time"
)

// healthWindow - окно наблюдения для оценки состояния сети
const healthWindow = 60 * time.Second

// healthSample - один замер запроса к шлюзу
type healthSample struct {
	at      time.Time
	latency time.Duration
	failed  bool
}

// healthTracker накапливает замеры запросов и считает по ним
// скользящие latency и error rate для GetNetworkHealth
type healthTracker struct {
	mu      sync.Mutex
	window  time.Duration
	samples []healthSample
}

func newHealthTracker(window time.Duration) *healthTracker {
	if window <= 0 {
		window = healthWindow
	}
	return &healthTracker{window: window}
}

// Record фиксирует результат одного запроса к шлюзу
func (t *healthTracker) Record(latency time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.samples = append(t.samples, healthSample{at: now, latency: latency, failed: err != nil})
	t.prune(now)
}

// prune удаляет замеры за пределами окна
// ВАЖНО: вызывается под lock'ом
func (t *healthTracker) prune(now time.Time) {
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(t.samples) && t.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.samples = t.samples[i:]
	}
}

// Snapshot возвращает текущее состояние сети по накопленным замерам
func (t *healthTracker) Snapshot() *NetworkHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.prune(now)

	health := &NetworkHealth{
		RequestCount: len(t.samples),
		Healthy:      true,
		CheckedAt:    now,
	}

	if len(t.samples) == 0 {
		return health
	}

	var totalLatency time.Duration
	failures := 0
	for _, s := range t.samples {
		totalLatency += s.latency
		if s.failed {
			failures++
		}
	}

	health.LatencyMs = float64(totalLatency.Milliseconds()) / float64(len(t.samples))
	health.ErrorRate = float64(failures) / float64(len(t.samples))
	health.Healthy = health.ErrorRate < 0.5

	return health
}
