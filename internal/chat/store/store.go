// Package store keeps the chat messages observed over the realtime
// connection in memory, per chat, in arrival order.
package store

import (
	"sync"

	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/event"
)

type Message struct {
	ID          int64
	ChatID      int64
	SenderID    int64
	Content     string
	MessageType string
	CreatedAt   string
	IsEdited    bool
	IsDeleted   bool
}

type MemoryStore struct {
	mu    sync.RWMutex
	chats map[int64]*chatLog
}

type chatLog struct {
	messages []Message
	index    map[int64]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chats: make(map[int64]*chatLog)}
}

// AddMessage appends msg to the chat. A message whose id is already known is
// replaced in place, so a redelivery after reconnect does not duplicate it.
func (s *MemoryStore) AddMessage(chatID int64, msg event.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.chat(chatID)
	stored := Message{
		ID:          msg.ID,
		ChatID:      chatID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		MessageType: msg.MessageType,
		CreatedAt:   msg.CreatedAt,
	}
	if stored.MessageType == "" {
		stored.MessageType = "text"
	}

	if i, ok := log.index[msg.ID]; ok {
		log.messages[i] = stored
		return
	}
	log.index[msg.ID] = len(log.messages)
	log.messages = append(log.messages, stored)
}

// UpdateMessage replaces the content of a known message and marks it edited.
// Unknown ids are ignored.
func (s *MemoryStore) UpdateMessage(chatID, messageID int64, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.chats[chatID]
	if !ok {
		return
	}
	if i, ok := log.index[messageID]; ok {
		log.messages[i].Content = content
		log.messages[i].IsEdited = true
	}
}

// DeleteMessage tombstones a known message and drops its content.
func (s *MemoryStore) DeleteMessage(chatID, messageID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.chats[chatID]
	if !ok {
		return
	}
	if i, ok := log.index[messageID]; ok {
		log.messages[i].Content = ""
		log.messages[i].IsDeleted = true
	}
}

func (s *MemoryStore) Messages(chatID int64) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	out := make([]Message, len(log.messages))
	copy(out, log.messages)
	return out
}

func (s *MemoryStore) Count(chatID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if log, ok := s.chats[chatID]; ok {
		return len(log.messages)
	}
	return 0
}

func (s *MemoryStore) chat(chatID int64) *chatLog {
	log, ok := s.chats[chatID]
	if !ok {
		log = &chatLog{index: make(map[int64]int)}
		s.chats[chatID] = log
	}
	return log
}
