package event

type Type string

const (
	// TypeWildcard subscribes to every dispatched event.
	TypeWildcard Type = "*"

	TypeJoinChat     Type = "join_chat"
	TypeLeaveChat    Type = "leave_chat"
	TypeTyping       Type = "typing"
	TypeStatus       Type = "status"
	TypeReadMessages Type = "read_messages"
	TypePing         Type = "ping"

	TypeNewMessage     Type = "new_message"
	TypeMessageUpdated Type = "message_updated"
	TypeMessageDeleted Type = "message_deleted"
	TypeUserStatus     Type = "user_status"

	// Pseudo-events are synthesized locally and never cross the wire.
	TypeConnected            Type = "connected"
	TypeDisconnected         Type = "disconnected"
	TypeError                Type = "error"
	TypeMaxReconnectAttempts Type = "max_reconnect_attempts"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsPseudo() bool {
	switch t {
	case TypeConnected, TypeDisconnected, TypeError, TypeMaxReconnectAttempts:
		return true
	default:
		return false
	}
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusAway    = "away"
	StatusBusy    = "busy"
)

type ChatPayload struct {
	ChatID int64 `json:"chat_id" validate:"gt=0"`
}

type TypingPayload struct {
	ChatID   int64 `json:"chat_id" validate:"gt=0"`
	UserID   int64 `json:"user_id,omitempty"`
	IsTyping bool  `json:"is_typing"`
}

type StatusPayload struct {
	Status string `json:"status" validate:"required,oneof=online offline away busy"`
}

// UserStatusPayload leaves UserID nil when the server omits it.
type UserStatusPayload struct {
	UserID *int64 `json:"user_id"`
	Status string `json:"status"`
}

type Message struct {
	ID          int64  `json:"id"`
	SenderID    int64  `json:"sender_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	CreatedAt   string `json:"created_at"`
}

type NewMessagePayload struct {
	ChatID  int64   `json:"chat_id"`
	Message Message `json:"message"`
}

type MessageUpdatedPayload struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
}

type MessageDeletedPayload struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

type DisconnectedPayload struct {
	Reason string `json:"reason,omitempty"`
	Manual bool   `json:"manual"`
}

type MaxReconnectPayload struct {
	Attempts int `json:"attempts"`
}
