package bot

import (
	"math"
	"sync"
	"time"
)

// volatilityWindow - горизонт наблюдений для оценки волатильности
const volatilityWindow = 10 * time.Minute

// максимум хранимых наблюдений на актив
const maxVolatilitySamplesStored = 600

// VolatilityTracker оценивает волатильность активов по потоку цен
//
// Волатильность считается как стандартное отклонение относительных
// изменений цены между соседними наблюдениями в скользящем окне.
// Потокобезопасен: пишет подписка на цены, читает сборка снимков рынка.
type VolatilityTracker struct {
	mu     sync.RWMutex
	series map[string][]volSample

	// Переопределяется в тестах
	now func() time.Time
}

type volSample struct {
	at    time.Time
	price float64
}

// NewVolatilityTracker создает пустой трекер
func NewVolatilityTracker() *VolatilityTracker {
	return &VolatilityTracker{
		series: make(map[string][]volSample),
		now:    time.Now,
	}
}

// Add добавляет наблюдение цены
func (vt *VolatilityTracker) Add(asset string, price float64) {
	if price <= 0 {
		return
	}
	vt.mu.Lock()
	defer vt.mu.Unlock()

	cutoff := vt.now().Add(-volatilityWindow)
	s := vt.series[asset]
	s = append(s, volSample{at: vt.now(), price: price})
	for len(s) > 0 && (s[0].at.Before(cutoff) || len(s) > maxVolatilitySamplesStored) {
		s = s[1:]
	}
	vt.series[asset] = s
}

// Value возвращает текущую оценку волатильности актива
// Пока наблюдений меньше трёх, возвращает 0
func (vt *VolatilityTracker) Value(asset string) float64 {
	vt.mu.RLock()
	defer vt.mu.RUnlock()

	s := vt.series[asset]
	if len(s) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		if s[i-1].price > 0 {
			returns = append(returns, (s[i].price-s[i-1].price)/s[i-1].price)
		}
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance)
}
