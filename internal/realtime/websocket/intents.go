package websocket

import (
	"context"

	"github.com/AlibekovAA/teamspace-realtime/internal/common/logger"
	observabilitymetrics "github.com/AlibekovAA/teamspace-realtime/internal/observability/metrics"
	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/event"
)

// ManagerInterface is the connection surface consumed by session adapters.
type ManagerInterface interface {
	Connect()
	Disconnect()
	IsConnected() bool
	State() State
	Send(ev event.Event) bool
	JoinChat(chatID int64) bool
	LeaveChat(chatID int64) bool
	SendTyping(chatID int64, isTyping bool) bool
	UpdateStatus(status string) bool
	MarkMessagesRead(chatID int64) bool
}

var _ ManagerInterface = (*Manager)(nil)

func (m *Manager) JoinChat(chatID int64) bool {
	return m.sendIntent(event.TypeJoinChat, event.ChatPayload{ChatID: chatID})
}

func (m *Manager) LeaveChat(chatID int64) bool {
	return m.sendIntent(event.TypeLeaveChat, event.ChatPayload{ChatID: chatID})
}

func (m *Manager) SendTyping(chatID int64, isTyping bool) bool {
	return m.sendIntent(event.TypeTyping, event.TypingPayload{ChatID: chatID, IsTyping: isTyping})
}

func (m *Manager) UpdateStatus(status string) bool {
	return m.sendIntent(event.TypeStatus, event.StatusPayload{Status: status})
}

func (m *Manager) MarkMessagesRead(chatID int64) bool {
	return m.sendIntent(event.TypeReadMessages, event.ChatPayload{ChatID: chatID})
}

func (m *Manager) sendIntent(t event.Type, payload any) bool {
	ev, err := event.NewIntent(t, payload)
	if err != nil {
		observabilitymetrics.RealtimeSendFailures.WithLabelValues("invalid_event").Inc()
		m.log.WithFields(context.Background(), logger.Fields{
			"type":   string(t),
			"action": "ws_intent_invalid",
		}).Warnf("websocket rejected outbound event: %v", err)
		return false
	}
	return m.Send(ev)
}
