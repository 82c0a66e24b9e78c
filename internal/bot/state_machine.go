package bot

import (
	"fmt"

	"tradexec/internal/models"
)

// ValidTransitions определяет допустимые переходы между статусами позиции
var ValidTransitions = map[string][]string{
	models.StatusPending:    {models.StatusOpen, models.StatusRejected, models.StatusFailed},
	models.StatusOpen:       {models.StatusMonitoring, models.StatusClosing, models.StatusFailed}, // Closing при закрытии сироты
	models.StatusMonitoring: {models.StatusClosing, models.StatusFailed},
	models.StatusClosing:    {models.StatusClosed, models.StatusEmergencyClosed, models.StatusFailed},
	// Конечные статусы, выхода нет
	models.StatusClosed:          {},
	models.StatusEmergencyClosed: {},
	models.StatusRejected:        {},
	models.StatusFailed:          {},
}

// StateTransitionError возвращается при попытке недопустимого перехода
type StateTransitionError struct {
	PositionID string
	From       string
	To         string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("недопустимый переход %s -> %s (позиция %s)", e.From, e.To, e.PositionID)
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// TryTransition атомарно переводит позицию в новый статус.
// Вызывающий обязан держать блокировку реестра: это и есть CAS,
// конкурентные запросы на закрытие разрешаются здесь.
func TryTransition(pos *models.Position, to string) error {
	if !CanTransition(pos.Status, to) {
		return &StateTransitionError{PositionID: pos.ID, From: pos.Status, To: to}
	}
	RecordTransition(pos, pos.Status, to)
	pos.Status = to
	return nil
}

// ForceTransition принудительно переводит позицию в статус минуя таблицу.
// Используется только для аварийных сценариев (FAILED из любого состояния).
func ForceTransition(pos *models.Position, to string) {
	RecordTransition(pos, pos.Status, to)
	pos.Status = to
}

// RecordTransition фиксирует переход в метриках
func RecordTransition(pos *models.Position, from, to string) {
	RecordStatusTransition(from, to)
}

// StatusInfo возвращает описание статуса для UI
func StatusInfo(s string) string {
	switch s {
	case models.StatusPending:
		return "Ожидание подтверждения входа"
	case models.StatusOpen:
		return "Вход исполнен"
	case models.StatusMonitoring:
		return "Позиция под мониторингом"
	case models.StatusClosing:
		return "Закрытие позиции..."
	case models.StatusClosed:
		return "Позиция закрыта"
	case models.StatusEmergencyClosed:
		return "Позиция закрыта аварийно"
	case models.StatusRejected:
		return "Вход отклонен риск-менеджером"
	case models.StatusFailed:
		return "Ошибка! Требуется вмешательство"
	default:
		return "Неизвестный статус"
	}
}

// IsActive возвращает true если позиция еще живет в реестре
func IsActive(s string) bool {
	return s == models.StatusPending || s == models.StatusOpen || s == models.StatusMonitoring || s == models.StatusClosing
}

// NeedsMonitor возвращает true если для статуса должен работать монитор
func NeedsMonitor(s string) bool {
	return s == models.StatusOpen || s == models.StatusMonitoring
}
