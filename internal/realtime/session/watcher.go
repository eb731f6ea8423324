package session

import (
	"sync"

	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/dispatcher"
	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/event"
)

type Connector interface {
	Connect()
	IsConnected() bool
}

// Watcher exposes the connection status observed by one consumer. It is
// derived from locally emitted lifecycle pseudo-events, seeded from the
// connector when started. Server frames reusing those type tags are ignored.
type Watcher struct {
	conn Connector
	pub  dispatcher.Publisher

	mu           sync.RWMutex
	connected    bool
	reconnecting bool
	exhausted    bool
	subs         []*dispatcher.Subscription
	started      bool

	changes chan struct{}
}

func NewWatcher(conn Connector, pub dispatcher.Publisher) *Watcher {
	return newWatcher(conn, pub, make(chan struct{}, 1))
}

func newWatcher(conn Connector, pub dispatcher.Publisher, changes chan struct{}) *Watcher {
	return &Watcher{
		conn:    conn,
		pub:     pub,
		changes: changes,
	}
}

// Start subscribes to lifecycle events and asks the connector to connect if
// it is not already connected. Calling Start on a started watcher is a
// no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.subs = []*dispatcher.Subscription{
		w.pub.Subscribe(event.TypeConnected, w.onConnected),
		w.pub.Subscribe(event.TypeDisconnected, w.onDisconnected),
		w.pub.Subscribe(event.TypeMaxReconnectAttempts, w.onExhausted),
	}
	w.mu.Unlock()

	if !w.conn.IsConnected() {
		w.conn.Connect()
	}

	w.mu.Lock()
	w.connected = w.conn.IsConnected()
	w.mu.Unlock()
	w.notify()
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	subs := w.subs
	w.subs = nil
	w.started = false
	w.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

func (w *Watcher) Connected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// Reconnecting reports whether the connection dropped without a manual
// disconnect and automatic retries are still running.
func (w *Watcher) Reconnecting() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reconnecting
}

// Exhausted reports whether the reconnect budget ran out. It stays true
// until the connection opens again or Retry is called.
func (w *Watcher) Exhausted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.exhausted
}

// Retry is the manual recovery path after the reconnect budget is spent.
func (w *Watcher) Retry() {
	w.mu.Lock()
	w.exhausted = false
	w.mu.Unlock()
	w.notify()
	w.conn.Connect()
}

func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

func (w *Watcher) onConnected(ev event.Event) error {
	if !ev.Local() {
		return nil
	}
	w.mu.Lock()
	w.connected = true
	w.reconnecting = false
	w.exhausted = false
	w.mu.Unlock()
	w.notify()
	return nil
}

func (w *Watcher) onDisconnected(ev event.Event) error {
	if !ev.Local() {
		return nil
	}
	var p event.DisconnectedPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	w.mu.Lock()
	w.connected = false
	w.reconnecting = !p.Manual
	w.mu.Unlock()
	w.notify()
	return nil
}

func (w *Watcher) onExhausted(ev event.Event) error {
	if !ev.Local() {
		return nil
	}
	w.mu.Lock()
	w.reconnecting = false
	w.exhausted = true
	w.mu.Unlock()
	w.notify()
	return nil
}

func (w *Watcher) notify() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}
