package service

import (
	"strings"

	"tradexec/internal/models"
)

// WebSocketBroadcaster - интерфейс для отправки WebSocket сообщений
//
// Позволяет избежать циклических зависимостей между пакетами
// и упрощает тестирование (можно подставить mock)
type WebSocketBroadcaster interface {
	BroadcastNotification(notif *models.Notification)
}

// NotificationService предоставляет бизнес-логику для управления уведомлениями.
//
// Отвечает за:
// - Создание уведомлений с проверкой настроек
// - Получение списка уведомлений с фильтрацией
// - Очистку журнала уведомлений
// - Broadcast уведомлений через WebSocket
type NotificationService struct {
	notificationRepo NotificationRepositoryInterface
	settingsRepo     SettingsRepositoryInterface
	wsHub            WebSocketBroadcaster
}

// NewNotificationService создает новый экземпляр NotificationService.
func NewNotificationService(
	notificationRepo NotificationRepositoryInterface,
	settingsRepo SettingsRepositoryInterface,
) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
		settingsRepo:     settingsRepo,
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast уведомлений.
// Вызывается после инициализации Hub в main.go.
func (s *NotificationService) SetWebSocketHub(hub WebSocketBroadcaster) {
	s.wsHub = hub
}

// CreateNotification создает новое уведомление.
//
// Перед созданием проверяет настройки уведомлений (notification_prefs).
// Если данный тип уведомлений отключен в настройках, уведомление не создается.
// После успешного создания отправляет broadcast через WebSocket (если hub настроен).
func (s *NotificationService) CreateNotification(notif *models.Notification) error {
	enabled, err := s.isNotificationTypeEnabled(notif.Type)
	if err != nil {
		// При ошибке получения настроек все равно создаем уведомление:
		// лучше уведомить, чем пропустить важное событие
	} else if !enabled {
		return nil
	}

	if err := s.notificationRepo.Create(notif); err != nil {
		return err
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastNotification(notif)
	}

	return nil
}

// GetNotifications возвращает список уведомлений с фильтрацией.
//
// types - список типов для фильтрации, пустой список вернет все типы.
// Уведомления отсортированы по времени, новые сверху.
func (s *NotificationService) GetNotifications(types []string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	normalizedTypes := make([]string, 0, len(types))
	for _, t := range types {
		normalized := strings.ToUpper(strings.TrimSpace(t))
		if normalized != "" && isValidNotificationType(normalized) {
			normalizedTypes = append(normalizedTypes, normalized)
		}
	}

	if len(normalizedTypes) > 0 {
		return s.notificationRepo.GetByTypes(normalizedTypes, limit)
	}

	return s.notificationRepo.GetRecent(limit)
}

// GetPositionNotifications возвращает уведомления по конкретной позиции.
func (s *NotificationService) GetPositionNotifications(positionID string) ([]*models.Notification, error) {
	return s.notificationRepo.GetByPosition(positionID)
}

// ClearNotifications очищает журнал уведомлений.
func (s *NotificationService) ClearNotifications() error {
	return s.notificationRepo.DeleteAll()
}

// isNotificationTypeEnabled проверяет, включен ли тип уведомлений в настройках
func (s *NotificationService) isNotificationTypeEnabled(notifType string) (bool, error) {
	settings, err := s.settingsRepo.Get()
	if err != nil {
		return true, err
	}

	prefs := settings.NotificationPrefs
	switch notifType {
	case models.NotificationTypeTradeOpened:
		return prefs.TradeOpened, nil
	case models.NotificationTypeTradeClosed:
		return prefs.TradeClosed, nil
	case models.NotificationTypeRiskLimit:
		return prefs.RiskLimit, nil
	case models.NotificationTypeEmergency:
		return prefs.Emergency, nil
	case models.NotificationTypeCriticalFailure:
		return prefs.CriticalFailure, nil
	case models.NotificationTypeRecovery:
		return prefs.Recovery, nil
	case models.NotificationTypeError:
		return prefs.APIError, nil
	}

	// Неизвестные типы не фильтруем
	return true, nil
}

// isValidNotificationType проверяет, что тип уведомления известен системе
func isValidNotificationType(notifType string) bool {
	switch notifType {
	case models.NotificationTypeTradeOpened,
		models.NotificationTypeTradeClosed,
		models.NotificationTypeRiskLimit,
		models.NotificationTypeEmergency,
		models.NotificationTypeCriticalFailure,
		models.NotificationTypeRecovery,
		models.NotificationTypeError:
		return true
	}
	return false
}
