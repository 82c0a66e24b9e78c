package bot

import (
	"sync"

	"tradexec/internal/models"
)

// PositionRegistry - реестр активных позиций
//
// Единственный владелец runtime состояния позиций. Все переходы статусов
// выполняются под мьютексом реестра, поэтому Transition работает как CAS:
// из N конкурентных запросов MONITORING -> CLOSING выигрывает ровно один.
type PositionRegistry struct {
	mu        sync.RWMutex
	positions map[string]*models.Position
}

// NewPositionRegistry создает пустой реестр
func NewPositionRegistry() *PositionRegistry {
	return &PositionRegistry{
		positions: make(map[string]*models.Position),
	}
}

// Add регистрирует позицию
func (r *PositionRegistry) Add(pos *models.Position) {
	r.mu.Lock()
	r.positions[pos.ID] = pos
	r.updateGaugesLocked()
	r.mu.Unlock()
}

// Get возвращает копию позиции по ID
func (r *PositionRegistry) Get(id string) (models.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.positions[id]
	if !ok {
		return models.Position{}, ErrPositionNotFound
	}
	return *pos, nil
}

// List возвращает копии всех позиций реестра
func (r *PositionRegistry) List() []models.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Position, 0, len(r.positions))
	for _, pos := range r.positions {
		out = append(out, *pos)
	}
	return out
}

// Count возвращает количество позиций в реестре
func (r *PositionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}

// Transition атомарно переводит позицию в новый статус
//
// Возвращает StateTransitionError, если переход недопустим из текущего
// статуса, ErrPositionNotFound если позиции нет в реестре.
func (r *PositionRegistry) Transition(id, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[id]
	if !ok {
		return ErrPositionNotFound
	}
	if err := TryTransition(pos, to); err != nil {
		return err
	}
	r.updateGaugesLocked()
	return nil
}

// Force принудительно переводит позицию в статус минуя таблицу переходов
// Только для аварийных сценариев (FAILED из любого состояния)
func (r *PositionRegistry) Force(id, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[id]
	if !ok {
		return ErrPositionNotFound
	}
	ForceTransition(pos, to)
	r.updateGaugesLocked()
	return nil
}

// Update применяет изменение к позиции под блокировкой реестра
func (r *PositionRegistry) Update(id string, fn func(*models.Position)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[id]
	if !ok {
		return ErrPositionNotFound
	}
	fn(pos)
	return nil
}

// Remove удаляет позицию из реестра
// Вызывается только после RecordOutcome: результат учтён, runtime
// состояние больше не нужно
func (r *PositionRegistry) Remove(id string) {
	r.mu.Lock()
	delete(r.positions, id)
	r.updateGaugesLocked()
	r.mu.Unlock()
}

// updateGaugesLocked пересчитывает метрику позиций по статусам
func (r *PositionRegistry) updateGaugesLocked() {
	counts := make(map[string]int)
	for _, pos := range r.positions {
		counts[pos.Status]++
	}
	for _, status := range []string{
		models.StatusPending, models.StatusOpen, models.StatusMonitoring,
		models.StatusClosing, models.StatusFailed,
	} {
		ActivePositions.WithLabelValues(status).Set(float64(counts[status]))
	}
}
