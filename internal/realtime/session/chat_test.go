package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	commonerrors "github.com/AlibekovAA/teamspace-realtime/internal/common/errors"
	"github.com/AlibekovAA/teamspace-realtime/internal/common/logger"
	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/dispatcher"
	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/event"
)

type fakeConnection struct {
	mu           sync.Mutex
	connected    bool
	connectCalls int
	sent         []string

	LeaveChatFunc func(chatID int64)
}

func (c *fakeConnection) Connect() {
	c.mu.Lock()
	c.connectCalls++
	c.mu.Unlock()
}

func (c *fakeConnection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConnection) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *fakeConnection) record(kind string, chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return false
	}
	c.sent = append(c.sent, fmt.Sprintf("%s:%d", kind, chatID))
	return true
}

func (c *fakeConnection) JoinChat(chatID int64) bool {
	return c.record("join_chat", chatID)
}

func (c *fakeConnection) LeaveChat(chatID int64) bool {
	if c.LeaveChatFunc != nil {
		c.LeaveChatFunc(chatID)
	}
	return c.record("leave_chat", chatID)
}

func (c *fakeConnection) SendTyping(chatID int64, isTyping bool) bool {
	return c.record(fmt.Sprintf("typing(%v)", isTyping), chatID)
}

func (c *fakeConnection) MarkMessagesRead(chatID int64) bool {
	return c.record("read_messages", chatID)
}

func (c *fakeConnection) sentFrames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeConnection) connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectCalls
}

type fakeSink struct {
	mu      sync.Mutex
	added   []event.Message
	updated map[int64]string
	deleted []int64
}

func (s *fakeSink) AddMessage(chatID int64, msg event.Message) {
	s.mu.Lock()
	s.added = append(s.added, msg)
	s.mu.Unlock()
}

func (s *fakeSink) UpdateMessage(chatID, messageID int64, content string) {
	s.mu.Lock()
	if s.updated == nil {
		s.updated = make(map[int64]string)
	}
	s.updated[messageID] = content
	s.mu.Unlock()
}

func (s *fakeSink) DeleteMessage(chatID, messageID int64) {
	s.mu.Lock()
	s.deleted = append(s.deleted, messageID)
	s.mu.Unlock()
}

func dispatchJSON(t *testing.T, d *dispatcher.Dispatcher, frame string) {
	t.Helper()
	ev, err := event.Parse([]byte(frame))
	if err != nil {
		t.Fatalf("invalid frame %s: %v", frame, err)
	}
	d.Dispatch(ev)
}

func emitLocal(t *testing.T, d *dispatcher.Dispatcher, typ event.Type, data any) {
	t.Helper()
	if err := d.Emit(typ, data); err != nil {
		t.Fatalf("emit %s failed: %v", typ, err)
	}
}

func allTypes() []event.Type {
	return []event.Type{
		event.TypeTyping, event.TypeNewMessage, event.TypeMessageUpdated, event.TypeMessageDeleted,
		event.TypeUserStatus, event.TypeConnected, event.TypeDisconnected, event.TypeMaxReconnectAttempts,
	}
}

func TestActivate_AlreadyOpenJoinsImmediately(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	a := NewChatAdapter(logger.Discard(), conn, d, 42, nil)

	if err := a.Activate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer a.Deactivate()

	if got := conn.sentFrames(); !reflect.DeepEqual(got, []string{"join_chat:42"}) {
		t.Errorf("expected single join_chat, got %v", got)
	}
	if conn.connects() != 0 {
		t.Errorf("expected no connect call on open connection, got %d", conn.connects())
	}
	if !a.Connected() {
		t.Error("expected adapter to observe open connection")
	}
}

func TestActivate_NotOpenConnectsAndJoinsOnConnected(t *testing.T) {
	conn := &fakeConnection{}
	d := dispatcher.New(logger.Discard())
	a := NewChatAdapter(logger.Discard(), conn, d, 42, nil)

	if err := a.Activate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer a.Deactivate()

	if conn.connects() != 1 {
		t.Fatalf("expected connect to be requested, got %d", conn.connects())
	}
	if len(conn.sentFrames()) != 0 {
		t.Fatalf("expected no join before open, got %v", conn.sentFrames())
	}
	if a.Connected() {
		t.Error("expected disconnected status")
	}

	conn.setConnected(true)
	emitLocal(t, d, event.TypeConnected, nil)

	if got := conn.sentFrames(); !reflect.DeepEqual(got, []string{"join_chat:42"}) {
		t.Errorf("expected join on connected, got %v", got)
	}
	if !a.Connected() {
		t.Error("expected connected status")
	}
}

func TestActivate_InvalidScope(t *testing.T) {
	a := NewChatAdapter(nil, &fakeConnection{}, dispatcher.New(nil), 0, nil)

	if err := a.Activate(); !errors.Is(err, commonerrors.ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
	if a.Active() {
		t.Error("expected adapter to stay inactive")
	}
}

func TestTyping_ScopedAddAndRemove(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	a := NewChatAdapter(logger.Discard(), conn, d, 42, nil)
	if err := a.Activate(); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	defer a.Deactivate()

	dispatchJSON(t, d, `{"type":"typing","chat_id":42,"user_id":7,"is_typing":true}`)
	dispatchJSON(t, d, `{"type":"typing","chat_id":42,"user_id":3,"is_typing":true}`)
	dispatchJSON(t, d, `{"type":"typing","chat_id":7,"user_id":9,"is_typing":true}`)

	if got := a.TypingUsers(); !reflect.DeepEqual(got, []int64{3, 7}) {
		t.Fatalf("expected [3 7], got %v", got)
	}

	dispatchJSON(t, d, `{"type":"typing","chat_id":42,"user_id":7,"is_typing":false}`)
	if a.IsTyping(7) {
		t.Error("expected user 7 removed")
	}
	if !a.IsTyping(3) {
		t.Error("expected user 3 to remain typing")
	}
}

func TestTyping_RemoveAbsentUserIsNoop(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	a := NewChatAdapter(logger.Discard(), conn, d, 42, nil)
	if err := a.Activate(); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	defer a.Deactivate()

	dispatchJSON(t, d, `{"type":"typing","chat_id":42,"user_id":11,"is_typing":false}`)

	if got := a.TypingUsers(); len(got) != 0 {
		t.Errorf("expected empty typing set, got %v", got)
	}
}

func TestTyping_NoExpiry(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	a := NewChatAdapter(logger.Discard(), conn, d, 42, nil)
	if err := a.Activate(); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	defer a.Deactivate()

	dispatchJSON(t, d, `{"type":"typing","chat_id":42,"user_id":7,"is_typing":true}`)
	emitLocal(t, d, event.TypeDisconnected, event.DisconnectedPayload{Reason: "close 1006"})
	dispatchJSON(t, d, `{"type":"user_status","user_id":7,"status":"offline"}`)

	if !a.IsTyping(7) {
		t.Error("expected typing state to persist until an explicit stop")
	}
}

func TestUserStatus_ProcessWide(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	a := NewChatAdapter(logger.Discard(), conn, d, 42, nil)
	if err := a.Activate(); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	defer a.Deactivate()

	dispatchJSON(t, d, `{"type":"user_status","user_id":5,"status":"online"}`)
	dispatchJSON(t, d, `{"type":"user_status","user_id":2,"status":"online"}`)
	dispatchJSON(t, d, `{"type":"user_status","user_id":5,"status":"away"}`)
	dispatchJSON(t, d, `{"type":"user_status","user_id":8,"status":"offline"}`)

	if got := a.OnlineUsers(); !reflect.DeepEqual(got, []int64{2}) {
		t.Errorf("expected [2], got %v", got)
	}
	if a.IsOnline(5) {
		t.Error("expected away user removed from online set")
	}
}

func TestRoundTrip_ScopedMessages(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	sink := &fakeSink{}
	a := NewChatAdapter(logger.Discard(), conn, d, 42, sink)
	if err := a.Activate(); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	defer a.Deactivate()

	if got := conn.sentFrames(); len(got) != 1 || got[0] != "join_chat:42" {
		t.Fatalf("expected join_chat for 42, got %v", got)
	}

	dispatchJSON(t, d, `{"type":"new_message","chat_id":42,"message":{"id":1,"sender_id":7,"content":"hi","message_type":"text"}}`)
	dispatchJSON(t, d, `{"type":"new_message","chat_id":7,"message":{"id":2,"sender_id":7,"content":"elsewhere"}}`)
	dispatchJSON(t, d, `{"type":"message_updated","chat_id":42,"message_id":1,"content":"hi!"}`)
	dispatchJSON(t, d, `{"type":"message_updated","chat_id":7,"message_id":2,"content":"nope"}`)
	dispatchJSON(t, d, `{"type":"message_deleted","chat_id":42,"message_id":1}`)
	dispatchJSON(t, d, `{"type":"message_deleted","chat_id":7,"message_id":2}`)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.added) != 1 || sink.added[0].ID != 1 || sink.added[0].Content != "hi" {
		t.Errorf("expected only chat 42 message, got %+v", sink.added)
	}
	if len(sink.updated) != 1 || sink.updated[1] != "hi!" {
		t.Errorf("unexpected updates %v", sink.updated)
	}
	if !reflect.DeepEqual(sink.deleted, []int64{1}) {
		t.Errorf("unexpected deletes %v", sink.deleted)
	}
}

func TestIntents_SendTypingAndMarkAsRead(t *testing.T) {
	conn := &fakeConnection{connected: true}
	a := NewChatAdapter(logger.Discard(), conn, dispatcher.New(nil), 42, nil)

	if err := a.SendTyping(true); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := a.SendTyping(false); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := a.MarkAsRead(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []string{"typing(true):42", "typing(false):42", "read_messages:42"}
	if got := conn.sentFrames(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	conn.setConnected(false)
	if err := a.SendTyping(true); !errors.Is(err, commonerrors.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := a.MarkAsRead(); !errors.Is(err, commonerrors.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestDeactivate_LeavesThenUnsubscribes(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	a := NewChatAdapter(logger.Discard(), conn, d, 42, nil)

	var countsAtLeave map[event.Type]int
	conn.LeaveChatFunc = func(int64) {
		countsAtLeave = make(map[event.Type]int)
		for _, typ := range allTypes() {
			countsAtLeave[typ] = d.Count(typ)
		}
	}

	if err := a.Activate(); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	a.Deactivate()
	a.Deactivate()

	if countsAtLeave[event.TypeTyping] != 1 {
		t.Errorf("expected handlers still registered when leave_chat is sent, got %v", countsAtLeave)
	}
	for _, typ := range allTypes() {
		if n := d.Count(typ); n != 0 {
			t.Errorf("expected no %s handlers after deactivate, got %d", typ, n)
		}
	}
	if got := conn.sentFrames(); !reflect.DeepEqual(got, []string{"join_chat:42", "leave_chat:42"}) {
		t.Errorf("expected one join and one leave, got %v", got)
	}

	dispatchJSON(t, d, `{"type":"typing","chat_id":42,"user_id":7,"is_typing":true}`)
	if a.IsTyping(7) {
		t.Error("expected no updates after deactivate")
	}
}

func TestDeactivate_CleanupWhenLeavePanics(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	a := NewChatAdapter(logger.Discard(), conn, d, 42, nil)
	conn.LeaveChatFunc = func(int64) { panic("socket gone") }

	if err := a.Activate(); err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	func() {
		defer func() { _ = recover() }()
		a.Deactivate()
	}()

	for _, typ := range allTypes() {
		if n := d.Count(typ); n != 0 {
			t.Errorf("expected no %s handlers after failed deactivate, got %d", typ, n)
		}
	}
}

func TestRun_DeactivatesOnCancel(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	a := NewChatAdapter(logger.Discard(), conn, d, 42, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !a.Active() {
		if time.Now().After(deadline) {
			t.Fatal("adapter never activated")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}

	if a.Active() {
		t.Error("expected adapter inactive after run")
	}
	if n := d.Count(event.TypeTyping); n != 0 {
		t.Errorf("expected handlers removed, got %d", n)
	}
}

func TestReactivate_ResetsDerivedSets(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	a := NewChatAdapter(logger.Discard(), conn, d, 42, nil)

	if err := a.Activate(); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	dispatchJSON(t, d, `{"type":"typing","chat_id":42,"user_id":7,"is_typing":true}`)
	dispatchJSON(t, d, `{"type":"user_status","user_id":7,"status":"online"}`)
	a.Deactivate()

	if err := a.Activate(); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	defer a.Deactivate()

	if len(a.TypingUsers()) != 0 || len(a.OnlineUsers()) != 0 {
		t.Errorf("expected empty sets after remount, got typing=%v online=%v", a.TypingUsers(), a.OnlineUsers())
	}
}

func TestChanges_Signalled(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	a := NewChatAdapter(logger.Discard(), conn, d, 42, nil)
	if err := a.Activate(); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	defer a.Deactivate()

	for len(a.Changes()) > 0 {
		<-a.Changes()
	}

	dispatchJSON(t, d, `{"type":"typing","chat_id":42,"user_id":7,"is_typing":true}`)
	dispatchJSON(t, d, `{"type":"typing","chat_id":42,"user_id":8,"is_typing":true}`)

	select {
	case <-a.Changes():
	default:
		t.Fatal("expected change notification")
	}
	select {
	case <-a.Changes():
		t.Error("expected notifications to coalesce")
	default:
	}
}

func TestHandlers_FailureDoesNotAffectOthers(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	first := NewChatAdapter(logger.Discard(), conn, d, 42, nil)
	second := NewChatAdapter(logger.Discard(), conn, d, 42, nil)
	for _, a := range []*ChatAdapter{first, second} {
		if err := a.Activate(); err != nil {
			t.Fatalf("activate failed: %v", err)
		}
		defer a.Deactivate()
	}

	dispatchJSON(t, d, `{"type":"typing","chat_id":42,"user_id":"not-a-number","is_typing":true}`)
	dispatchJSON(t, d, `{"type":"typing","chat_id":42,"user_id":7,"is_typing":true}`)

	if !first.IsTyping(7) || !second.IsTyping(7) {
		t.Error("expected both adapters to observe the valid event")
	}
}

func TestRejoin_AfterReconnect(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	a := NewChatAdapter(logger.Discard(), conn, d, 42, nil)
	if err := a.Activate(); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	defer a.Deactivate()

	emitLocal(t, d, event.TypeConnected, nil)
	if got := conn.sentFrames(); len(got) != 1 {
		t.Fatalf("expected no duplicate join on the same connection, got %v", got)
	}

	emitLocal(t, d, event.TypeDisconnected, event.DisconnectedPayload{Reason: "close 1006"})
	emitLocal(t, d, event.TypeConnected, nil)

	want := []string{"join_chat:42", "join_chat:42"}
	if got := conn.sentFrames(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTypingAndStatus_IgnoreMissingUserID(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	a := NewChatAdapter(logger.Discard(), conn, d, 42, nil)
	if err := a.Activate(); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	defer a.Deactivate()

	dispatchJSON(t, d, `{"type":"typing","chat_id":42,"is_typing":true}`)
	dispatchJSON(t, d, `{"type":"user_status","status":"online"}`)

	if got := a.TypingUsers(); len(got) != 0 {
		t.Errorf("expected no typing users, got %v", got)
	}
	if got := a.OnlineUsers(); len(got) != 0 {
		t.Errorf("expected no online users, got %v", got)
	}

	dispatchJSON(t, d, `{"type":"typing","chat_id":42,"user_id":0,"is_typing":true}`)
	if !a.IsTyping(0) {
		t.Error("expected an explicit user_id 0 to be tracked")
	}
}

func TestServerLifecycleFrames_DoNotResetJoin(t *testing.T) {
	conn := &fakeConnection{connected: true}
	d := dispatcher.New(logger.Discard())
	a := NewChatAdapter(logger.Discard(), conn, d, 42, nil)
	if err := a.Activate(); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	defer a.Deactivate()

	dispatchJSON(t, d, `{"type":"disconnected","manual":false}`)
	dispatchJSON(t, d, `{"type":"connected","user_id":7}`)

	if got := conn.sentFrames(); !reflect.DeepEqual(got, []string{"join_chat:42"}) {
		t.Errorf("expected a single join, got %v", got)
	}
	if !a.Connected() || a.Reconnecting() {
		t.Error("expected server frames not to change connection status")
	}
}
