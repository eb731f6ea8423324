package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	commonerrors "github.com/AlibekovAA/teamspace-realtime/internal/common/errors"
	"github.com/AlibekovAA/teamspace-realtime/internal/common/logger"
	observabilitymetrics "github.com/AlibekovAA/teamspace-realtime/internal/observability/metrics"
	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/event"
)

// Handler receives a dispatched event. A returned error or a panic is logged
// and never stops delivery to the remaining handlers.
type Handler func(ev event.Event) error

type Publisher interface {
	Subscribe(t event.Type, h Handler) *Subscription
	Unsubscribe(sub *Subscription)
	Dispatch(ev event.Event)
}

// Subscription is the registration token returned by Subscribe. Its identity,
// not the handler's, decides what Unsubscribe removes.
type Subscription struct {
	id      uint64
	typ     event.Type
	handler Handler
	owner   *Dispatcher
	active  atomic.Bool
}

func (s *Subscription) Type() event.Type {
	return s.typ
}

func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Cancel removes exactly this registration. Calling it more than once is a
// no-op.
func (s *Subscription) Cancel() {
	if s == nil || s.owner == nil {
		return
	}
	s.owner.Unsubscribe(s)
}

type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]*Subscription
	nextID   uint64
	log      *logger.Logger
}

var _ Publisher = (*Dispatcher)(nil)

func New(log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{
		handlers: make(map[event.Type][]*Subscription),
		log:      log,
	}
}

func (d *Dispatcher) Subscribe(t event.Type, h Handler) *Subscription {
	sub := &Subscription{typ: t, handler: h, owner: d}
	if h == nil || t == "" {
		d.log.WithFields(context.Background(), logger.Fields{
			"type":   string(t),
			"action": "dispatcher_subscribe_rejected",
		}).Warn("dispatcher rejected subscription without handler or type")
		return sub
	}

	d.mu.Lock()
	d.nextID++
	sub.id = d.nextID
	sub.active.Store(true)
	d.handlers[t] = append(d.handlers[t], sub)
	d.mu.Unlock()

	observabilitymetrics.RealtimeSubscriptionsActive.Inc()
	return sub
}

func (d *Dispatcher) Unsubscribe(sub *Subscription) {
	if sub == nil || !sub.active.CompareAndSwap(true, false) {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.handlers[sub.typ]
	for i, s := range subs {
		if s.id == sub.id {
			next := make([]*Subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(d.handlers, sub.typ)
			} else {
				d.handlers[sub.typ] = next
			}
			break
		}
	}
	observabilitymetrics.RealtimeSubscriptionsActive.Dec()
}

// Dispatch invokes the handlers registered for ev.Type in registration
// order, then the wildcard handlers. Handlers registered or removed while a
// dispatch is running take effect for the next event, except that a removed
// handler is never invoked after its removal.
func (d *Dispatcher) Dispatch(ev event.Event) {
	d.mu.RLock()
	typed := d.handlers[ev.Type]
	var wildcard []*Subscription
	if ev.Type != event.TypeWildcard {
		wildcard = d.handlers[event.TypeWildcard]
	}
	d.mu.RUnlock()

	observabilitymetrics.RealtimeEventsDispatched.WithLabelValues(string(ev.Type)).Inc()

	for _, sub := range typed {
		d.invoke(sub, ev)
	}
	for _, sub := range wildcard {
		d.invoke(sub, ev)
	}
}

// Emit synthesizes a local {type, ...data} event and dispatches it.
func (d *Dispatcher) Emit(t event.Type, data any) error {
	ev, err := event.NewLocal(t, data)
	if err != nil {
		d.log.WithFields(context.Background(), logger.Fields{
			"type":   string(t),
			"action": "dispatcher_emit_failed",
		}).Errorf("dispatcher failed to build event: %v", err)
		return err
	}
	d.Dispatch(ev)
	return nil
}

// Count returns the number of live registrations for t.
func (d *Dispatcher) Count(t event.Type) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[t])
}

func (d *Dispatcher) invoke(sub *Subscription, ev event.Event) {
	if !sub.active.Load() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.reportFailure(sub, ev, commonerrors.ErrHandlerFailed.WithCause(fmt.Errorf("panic: %v", r)))
		}
	}()

	if err := sub.handler(ev); err != nil {
		d.reportFailure(sub, ev, commonerrors.ErrHandlerFailed.WithCause(err))
	}
}

func (d *Dispatcher) reportFailure(sub *Subscription, ev event.Event, err error) {
	observabilitymetrics.RealtimeHandlerFailures.WithLabelValues(string(ev.Type)).Inc()
	d.log.WithFields(context.Background(), logger.Fields{
		"type":         string(ev.Type),
		"subscription": sub.id,
		"wildcard":     sub.typ == event.TypeWildcard,
		"action":       "dispatcher_handler_failed",
	}).Errorf("error in message handler: %v", err)
}
