package session

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	commonerrors "github.com/AlibekovAA/teamspace-realtime/internal/common/errors"
	"github.com/AlibekovAA/teamspace-realtime/internal/common/logger"
	observabilitymetrics "github.com/AlibekovAA/teamspace-realtime/internal/observability/metrics"
	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/dispatcher"
	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/event"
)

type Connection interface {
	Connector
	JoinChat(chatID int64) bool
	LeaveChat(chatID int64) bool
	SendTyping(chatID int64, isTyping bool) bool
	MarkMessagesRead(chatID int64) bool
}

// MessageSink receives the chat messages observed by an adapter.
type MessageSink interface {
	AddMessage(chatID int64, msg event.Message)
	UpdateMessage(chatID, messageID int64, content string)
	DeleteMessage(chatID, messageID int64)
}

// ChatAdapter binds one chat view to the shared connection. It tracks who is
// typing in its chat and who is online anywhere, and forwards the chat's
// message events to a sink.
type ChatAdapter struct {
	id      string
	chatID  int64
	conn    Connection
	pub     dispatcher.Publisher
	sink    MessageSink
	log     *logger.Logger
	watcher *Watcher

	mu     sync.RWMutex
	typing map[int64]struct{}
	online map[int64]struct{}
	subs   []*dispatcher.Subscription
	active bool
	joined bool

	changes chan struct{}
}

func NewChatAdapter(log *logger.Logger, conn Connection, pub dispatcher.Publisher, chatID int64, sink MessageSink) *ChatAdapter {
	if log == nil {
		log = logger.Discard()
	}
	changes := make(chan struct{}, 1)
	return &ChatAdapter{
		id:      uuid.NewString(),
		chatID:  chatID,
		conn:    conn,
		pub:     pub,
		sink:    sink,
		log:     log,
		watcher: newWatcher(conn, pub, changes),
		typing:  make(map[int64]struct{}),
		online:  make(map[int64]struct{}),
		changes: changes,
	}
}

func (a *ChatAdapter) ChatID() int64 {
	return a.chatID
}

// Activate ensures the connection is being established, announces the chat
// if the connection is already open and registers the event handlers.
// Derived sets start empty on every activation.
func (a *ChatAdapter) Activate() error {
	if a.chatID <= 0 {
		return commonerrors.ErrInvalidScope
	}

	a.mu.Lock()
	if a.active {
		a.mu.Unlock()
		return nil
	}
	a.active = true
	a.typing = make(map[int64]struct{})
	a.online = make(map[int64]struct{})
	a.subs = []*dispatcher.Subscription{
		a.pub.Subscribe(event.TypeTyping, a.onTyping),
		a.pub.Subscribe(event.TypeNewMessage, a.onNewMessage),
		a.pub.Subscribe(event.TypeMessageUpdated, a.onMessageUpdated),
		a.pub.Subscribe(event.TypeMessageDeleted, a.onMessageDeleted),
		a.pub.Subscribe(event.TypeUserStatus, a.onUserStatus),
		a.pub.Subscribe(event.TypeConnected, a.onConnected),
		a.pub.Subscribe(event.TypeDisconnected, a.onDisconnected),
	}
	a.mu.Unlock()

	a.watcher.Start()
	if a.conn.IsConnected() {
		a.join()
	}

	observabilitymetrics.RealtimeSessionsActive.Inc()
	a.log.WithFields(context.Background(), logger.Fields{
		"adapter_id": a.id,
		"chat_id":    a.chatID,
		"action":     "session_activate",
	}).Info("chat session activated")
	return nil
}

// Deactivate leaves the chat and removes every handler registered by
// Activate. It is safe to call more than once.
func (a *ChatAdapter) Deactivate() {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	a.active = false
	a.joined = false
	subs := a.subs
	a.subs = nil
	a.mu.Unlock()

	defer func() {
		for _, sub := range subs {
			sub.Cancel()
		}
		a.watcher.Stop()
		observabilitymetrics.RealtimeSessionsActive.Dec()
		a.log.WithFields(context.Background(), logger.Fields{
			"adapter_id": a.id,
			"chat_id":    a.chatID,
			"action":     "session_deactivate",
		}).Info("chat session deactivated")
	}()

	a.conn.LeaveChat(a.chatID)
}

// Run activates the adapter and keeps it active until ctx is done.
func (a *ChatAdapter) Run(ctx context.Context) error {
	if err := a.Activate(); err != nil {
		return err
	}
	defer a.Deactivate()

	<-ctx.Done()
	return nil
}

func (a *ChatAdapter) Active() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active
}

// SendTyping announces the local user's typing state in this chat. Delivery
// is not acknowledged.
func (a *ChatAdapter) SendTyping(isTyping bool) error {
	if !a.conn.SendTyping(a.chatID, isTyping) {
		return commonerrors.ErrNotConnected
	}
	return nil
}

// MarkAsRead tells the server the chat has been read. Delivery is not
// acknowledged.
func (a *ChatAdapter) MarkAsRead() error {
	if !a.conn.MarkMessagesRead(a.chatID) {
		return commonerrors.ErrNotConnected
	}
	return nil
}

func (a *ChatAdapter) TypingUsers() []int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sortedIDs(a.typing)
}

func (a *ChatAdapter) OnlineUsers() []int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sortedIDs(a.online)
}

func (a *ChatAdapter) IsTyping(userID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.typing[userID]
	return ok
}

func (a *ChatAdapter) IsOnline(userID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.online[userID]
	return ok
}

func (a *ChatAdapter) Connected() bool    { return a.watcher.Connected() }
func (a *ChatAdapter) Reconnecting() bool { return a.watcher.Reconnecting() }
func (a *ChatAdapter) Exhausted() bool    { return a.watcher.Exhausted() }
func (a *ChatAdapter) Retry()             { a.watcher.Retry() }

// Changes signals, coalesced, whenever derived state changes.
func (a *ChatAdapter) Changes() <-chan struct{} {
	return a.changes
}

func (a *ChatAdapter) inScope(ev event.Event) bool {
	chatID, ok := ev.ChatID()
	return ok && chatID == a.chatID
}

func (a *ChatAdapter) onTyping(ev event.Event) error {
	if !a.inScope(ev) {
		return nil
	}
	var p struct {
		UserID   *int64 `json:"user_id"`
		IsTyping bool   `json:"is_typing"`
	}
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if p.UserID == nil {
		return nil
	}

	a.mu.Lock()
	if p.IsTyping {
		a.typing[*p.UserID] = struct{}{}
	} else {
		delete(a.typing, *p.UserID)
	}
	a.mu.Unlock()
	a.notify()
	return nil
}

func (a *ChatAdapter) onUserStatus(ev event.Event) error {
	var p event.UserStatusPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if p.UserID == nil {
		return nil
	}

	a.mu.Lock()
	if p.Status == event.StatusOnline {
		a.online[*p.UserID] = struct{}{}
	} else {
		delete(a.online, *p.UserID)
	}
	a.mu.Unlock()
	a.notify()
	return nil
}

func (a *ChatAdapter) onNewMessage(ev event.Event) error {
	if !a.inScope(ev) {
		return nil
	}
	var p event.NewMessagePayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if a.sink != nil {
		a.sink.AddMessage(a.chatID, p.Message)
	}
	a.notify()
	return nil
}

func (a *ChatAdapter) onMessageUpdated(ev event.Event) error {
	if !a.inScope(ev) {
		return nil
	}
	var p event.MessageUpdatedPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if a.sink != nil {
		a.sink.UpdateMessage(a.chatID, p.MessageID, p.Content)
	}
	a.notify()
	return nil
}

func (a *ChatAdapter) onMessageDeleted(ev event.Event) error {
	if !a.inScope(ev) {
		return nil
	}
	var p event.MessageDeletedPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if a.sink != nil {
		a.sink.DeleteMessage(a.chatID, p.MessageID)
	}
	a.notify()
	return nil
}

// onConnected re-announces the chat after every (re)connect so the server
// side room survives drops.
func (a *ChatAdapter) onConnected(event.Event) error {
	a.join()
	return nil
}

func (a *ChatAdapter) onDisconnected(ev event.Event) error {
	if !ev.Local() {
		return nil
	}
	a.mu.Lock()
	a.joined = false
	a.mu.Unlock()
	return nil
}

// join sends join_chat at most once per open connection.
func (a *ChatAdapter) join() {
	a.mu.Lock()
	if a.joined || !a.active {
		a.mu.Unlock()
		return
	}
	a.joined = true
	a.mu.Unlock()

	if !a.conn.JoinChat(a.chatID) {
		a.mu.Lock()
		a.joined = false
		a.mu.Unlock()
	}
}

func (a *ChatAdapter) notify() {
	select {
	case a.changes <- struct{}{}:
	default:
	}
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
