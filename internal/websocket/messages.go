package websocket

import (
	"time"

	"tradexec/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypePositionUpdate - обновление состояния позиции
	// Отправляется каждую секунду для позиций под мониторингом
	MessageTypePositionUpdate MessageType = "positionUpdate"

	// MessageTypeNotification - новое уведомление
	// Отправляется при событиях жизненного цикла: открытие, закрытие,
	// stop loss, аварийные выходы, ошибки
	MessageTypeNotification MessageType = "notification"

	// MessageTypeRiskUpdate - обновление состояния риск-менеджера
	// Отправляется вместе со срезом позиций
	MessageTypeRiskUpdate MessageType = "riskUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// PositionUpdateMessage - сообщение об обновлении состояния позиции
//
// Содержит полный runtime срез позиции: статус, текущую цену,
// нереализованный PNL, действующие уровни SL/TP.
type PositionUpdateMessage struct {
	BaseMessage
	Data *models.Position `json:"data"`
}

// NotificationMessage - сообщение о новом уведомлении
type NotificationMessage struct {
	BaseMessage
	Data *models.Notification `json:"data"`
}

// RiskUpdateMessage - сообщение о состоянии риск-бюджета
type RiskUpdateMessage struct {
	BaseMessage
	Data models.RiskStatus `json:"data"`
}

// ============ Фабричные функции для создания сообщений ============

// NewPositionUpdateMessage создает сообщение обновления позиции
func NewPositionUpdateMessage(pos *models.Position) *PositionUpdateMessage {
	return &PositionUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePositionUpdate,
			Timestamp: time.Now(),
		},
		Data: pos,
	}
}

// NewNotificationMessage создает сообщение уведомления
func NewNotificationMessage(notif *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeNotification,
			Timestamp: time.Now(),
		},
		Data: notif,
	}
}

// NewRiskUpdateMessage создает сообщение состояния риск-менеджера
func NewRiskUpdateMessage(status models.RiskStatus) *RiskUpdateMessage {
	return &RiskUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeRiskUpdate,
			Timestamp: time.Now(),
		},
		Data: status,
	}
}
