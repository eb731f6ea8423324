package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AlibekovAA/teamspace-realtime/internal/auth/credential"
	"github.com/AlibekovAA/teamspace-realtime/internal/common/clock"
	"github.com/AlibekovAA/teamspace-realtime/internal/common/config"
	"github.com/AlibekovAA/teamspace-realtime/internal/common/constants"
	commonerrors "github.com/AlibekovAA/teamspace-realtime/internal/common/errors"
	"github.com/AlibekovAA/teamspace-realtime/internal/common/logger"
	observabilitymetrics "github.com/AlibekovAA/teamspace-realtime/internal/observability/metrics"
	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/dispatcher"
	"github.com/AlibekovAA/teamspace-realtime/internal/realtime/event"
)

type ManagerConfig struct {
	Endpoint             string
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// Manager owns the single logical realtime connection of a session. Socket
// callbacks, timer firings and event handlers all run on the goroutine that
// executes Run, one at a time.
type Manager struct {
	mu     sync.Mutex
	config ManagerConfig
	dialer Dialer
	creds  credential.Source
	pub    dispatcher.Publisher
	clock  clock.Clock
	log    *logger.Logger
	loop   *eventLoop

	state          State
	current        *connection
	attempts       int
	manualClose    bool
	stopped        bool
	heartbeat      clock.Timer
	reconnectTimer clock.Timer
	reconnectToken uint64

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	done    chan struct{}
}

// connection is one dial attempt and, once open, the socket it produced.
type connection struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	conn   Conn
}

func NewManager(log *logger.Logger, dialer Dialer, creds credential.Source, pub dispatcher.Publisher, clk clock.Clock, config ManagerConfig) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = constants.DefaultHeartbeatInterval
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = constants.DefaultReconnectDelay
	}
	if config.MaxReconnectAttempts < 0 {
		config.MaxReconnectAttempts = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		config: config,
		dialer: dialer,
		creds:  creds,
		pub:    pub,
		clock:  clk,
		log:    log,
		loop:   newEventLoop(),
		state:  StateIdle,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	observabilitymetrics.RealtimeConnectionState.Set(float64(StateIdle))
	return m
}

// Run processes connection callbacks until ctx is cancelled or Shutdown is
// called, then tears the connection down.
func (m *Manager) Run(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case <-m.ctx.Done():
			m.shutdown()
			return
		case <-m.loop.wake:
			m.loop.drain()
		}
	}
}

// Shutdown stops the manager for good. It must not be called from an event
// handler.
func (m *Manager) Shutdown() {
	m.cancel()
	if m.running.Load() {
		<-m.done
		return
	}
	m.shutdown()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) IsConnected() bool {
	return m.State() == StateOpen
}

// ReconnectAttempts returns the number of reconnects scheduled since the
// last successful open.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Connect opens the connection unless one is already connecting or open.
// An explicit call clears the manual-close flag and restores the full
// reconnect budget.
func (m *Manager) Connect() {
	m.connect(true)
}

func (m *Manager) connect(explicit bool) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		m.log.WithFields(context.Background(), logger.Fields{
			"action": "ws_connect_after_shutdown",
		}).Warn("websocket manager is shut down, ignoring connect")
		return
	}
	if m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()
		return
	}

	token, err := m.creds.AccessToken()
	if err != nil {
		m.mu.Unlock()
		m.log.WithFields(context.Background(), logger.Fields{
			"state":  m.State().String(),
			"action": "ws_connect_no_credential",
		}).Errorf("websocket connect aborted: %v", err)
		return
	}
	url, err := config.BuildURL(m.config.Endpoint, token)
	if err != nil {
		m.mu.Unlock()
		m.log.WithFields(context.Background(), logger.Fields{
			"action": "ws_connect_bad_endpoint",
		}).Errorf("websocket connect aborted: %v", err)
		return
	}

	// A connection still closing after Disconnect is finished here; its own
	// close callback will find it replaced and stay silent.
	stale := m.current
	staleManual := m.manualClose
	if stale != nil {
		stale.cancel()
		m.stopHeartbeatLocked()
		m.current = nil
		m.setStateLocked(StateClosed)
	}

	if explicit {
		m.manualClose = false
		m.attempts = 0
	}
	m.stopReconnectLocked()

	ctx, cancel := context.WithCancel(m.ctx)
	c := &connection{id: uuid.NewString(), ctx: ctx, cancel: cancel}
	m.current = c
	m.setStateLocked(StateConnecting)
	attempt := m.attempts
	m.mu.Unlock()

	if stale != nil {
		m.loop.post(func() { m.finishStale(stale, staleManual) })
	}

	observabilitymetrics.RealtimeConnectAttempts.Inc()
	m.log.WithFields(ctx, logger.Fields{
		"connection_id": c.id,
		"endpoint":      m.config.Endpoint,
		"attempt":       attempt,
		"action":        "ws_connecting",
	}).Info("websocket connecting")

	go m.dial(c, url)
}

// Disconnect closes the connection and cancels any pending heartbeat or
// reconnect. No reconnect is scheduled until Connect is called again.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manualClose = true
	m.stopHeartbeatLocked()
	m.stopReconnectLocked()

	c := m.current
	var conn Conn
	if c != nil {
		m.setStateLocked(StateClosing)
		c.cancel()
		conn = c.conn
	}
	m.mu.Unlock()

	if c == nil {
		return
	}
	m.log.WithFields(context.Background(), logger.Fields{
		"connection_id": c.id,
		"action":        "ws_disconnect",
	}).Info("websocket disconnecting")
	if conn != nil {
		if err := conn.Close(); err != nil {
			m.log.Debugf("websocket close connection_id=%s: %v", c.id, err)
		}
	}
}

// Send writes ev if the connection is open. It reports false, without
// queueing, otherwise.
func (m *Manager) Send(ev event.Event) bool {
	m.mu.Lock()
	state := m.state
	var conn Conn
	var id string
	if m.current != nil {
		conn = m.current.conn
		id = m.current.id
	}
	m.mu.Unlock()

	if state != StateOpen || conn == nil {
		observabilitymetrics.RealtimeSendFailures.WithLabelValues("not_connected").Inc()
		m.log.WithFields(context.Background(), logger.Fields{
			"type":   string(ev.Type),
			"state":  state.String(),
			"action": "ws_send_not_connected",
		}).Warn("websocket not connected, cannot send message")
		return false
	}

	if err := conn.WriteMessage(ev.Bytes()); err != nil {
		observabilitymetrics.RealtimeSendFailures.WithLabelValues("write_error").Inc()
		m.log.WithFields(context.Background(), logger.Fields{
			"connection_id": id,
			"type":          string(ev.Type),
			"action":        "ws_send_failed",
		}).Warnf("websocket send failed: %v", err)
		return false
	}

	observabilitymetrics.RealtimeMessagesSent.WithLabelValues(string(ev.Type)).Inc()
	return true
}

func (m *Manager) dial(c *connection, url string) {
	conn, err := m.dialer.Dial(c.ctx, url)
	if err != nil {
		m.loop.post(func() { m.handleError(c, err) })
		m.loop.post(func() { m.handleClose(c, err) })
		return
	}

	m.mu.Lock()
	if c.ctx.Err() != nil {
		m.mu.Unlock()
		_ = conn.Close()
		m.loop.post(func() { m.handleClose(c, context.Canceled) })
		return
	}
	c.conn = conn
	m.mu.Unlock()

	m.loop.post(func() { m.handleOpen(c) })

	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) && c.ctx.Err() == nil {
				m.loop.post(func() { m.handleError(c, err) })
			}
			m.loop.post(func() { m.handleClose(c, err) })
			return
		}
		m.loop.post(func() { m.handleFrame(c, frame) })
	}
}

func (m *Manager) handleOpen(c *connection) {
	m.mu.Lock()
	if m.current != c || c.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateOpen)
	m.attempts = 0
	m.heartbeat = m.scheduleHeartbeatLocked(c)
	m.mu.Unlock()

	observabilitymetrics.RealtimeConnectionsOpened.Inc()
	m.log.WithFields(c.ctx, logger.Fields{
		"connection_id": c.id,
		"action":        "ws_open",
	}).Info("websocket connected")

	m.emit(event.TypeConnected, nil)
}

func (m *Manager) handleFrame(c *connection, frame []byte) {
	m.mu.Lock()
	current := m.current == c
	m.mu.Unlock()
	if !current {
		return
	}

	ev, err := event.Parse(frame)
	if err != nil {
		observabilitymetrics.RealtimeDecodeFailures.Inc()
		m.log.WithFields(c.ctx, logger.Fields{
			"connection_id": c.id,
			"size":          len(frame),
			"action":        "ws_decode_failed",
		}).Warnf("websocket dropped undecodable frame: %v", err)
		return
	}
	observabilitymetrics.RealtimeEventsReceived.WithLabelValues(string(ev.Type)).Inc()
	if m.log.ShouldLog(logger.DEBUG) {
		m.log.Debugf("websocket received connection_id=%s type=%s", c.id, ev.Type)
	}
	m.pub.Dispatch(ev)
}

func (m *Manager) handleError(c *connection, err error) {
	m.mu.Lock()
	current := m.current == c
	m.mu.Unlock()

	if !current || c.ctx.Err() != nil {
		m.log.Debugf("websocket error on inactive connection_id=%s: %v", c.id, err)
		return
	}

	m.log.WithFields(c.ctx, logger.Fields{
		"connection_id": c.id,
		"action":        "ws_error",
	}).Errorf("websocket error: %v", err)
	m.emit(event.TypeError, event.ErrorPayload{Error: err.Error()})
}

func (m *Manager) handleClose(c *connection, cause error) {
	m.mu.Lock()
	if m.current != c {
		m.mu.Unlock()
		m.log.Debugf("websocket close on inactive connection_id=%s: %v", c.id, cause)
		return
	}

	c.cancel()
	m.stopHeartbeatLocked()
	m.current = nil
	m.setStateLocked(StateClosed)

	manual := m.manualClose
	exhausted := false
	var delay time.Duration
	if !manual {
		if m.attempts >= m.config.MaxReconnectAttempts {
			exhausted = true
		} else {
			m.attempts++
			delay = m.config.ReconnectDelay * time.Duration(m.attempts)
			m.scheduleReconnectLocked(delay)
		}
	}
	attempts := m.attempts
	m.mu.Unlock()

	reason := closeReason(cause)
	if manual {
		observabilitymetrics.RealtimeDisconnections.WithLabelValues("manual").Inc()
	} else {
		observabilitymetrics.RealtimeDisconnections.WithLabelValues("dropped").Inc()
	}
	m.log.WithFields(context.Background(), logger.Fields{
		"connection_id": c.id,
		"manual":        manual,
		"reason":        reason,
		"action":        "ws_close",
	}).Info("websocket disconnected")

	m.emit(event.TypeDisconnected, event.DisconnectedPayload{Reason: reason, Manual: manual})

	switch {
	case exhausted:
		observabilitymetrics.RealtimeReconnectExhausted.Inc()
		m.log.WithFields(context.Background(), logger.Fields{
			"attempts": attempts,
			"action":   "ws_reconnect_exhausted",
		}).Errorf("websocket giving up: %v", commonerrors.ErrReconnectExhausted)
		m.emit(event.TypeMaxReconnectAttempts, event.MaxReconnectPayload{Attempts: attempts})
	case !manual:
		observabilitymetrics.RealtimeReconnectsScheduled.Inc()
		m.log.WithFields(context.Background(), logger.Fields{
			"attempt": attempts,
			"delay":   delay.String(),
			"action":  "ws_reconnect_scheduled",
		}).Info("websocket reconnect scheduled")
	}
}

// finishStale reports the close of a connection that a new Connect replaced
// before its close callback ran.
func (m *Manager) finishStale(c *connection, manual bool) {
	if manual {
		observabilitymetrics.RealtimeDisconnections.WithLabelValues("manual").Inc()
	} else {
		observabilitymetrics.RealtimeDisconnections.WithLabelValues("replaced").Inc()
	}
	reason := closeReason(context.Canceled)
	m.log.WithFields(context.Background(), logger.Fields{
		"connection_id": c.id,
		"manual":        manual,
		"reason":        reason,
		"action":        "ws_close",
	}).Info("websocket disconnected")

	m.emit(event.TypeDisconnected, event.DisconnectedPayload{Reason: reason, Manual: manual})
}

func (m *Manager) scheduleReconnectLocked(delay time.Duration) {
	m.reconnectToken++
	token := m.reconnectToken
	m.reconnectTimer = m.clock.AfterFunc(delay, func() {
		m.loop.post(func() { m.fireReconnect(token) })
	})
}

func (m *Manager) fireReconnect(token uint64) {
	m.mu.Lock()
	if token != m.reconnectToken || m.reconnectTimer == nil || m.manualClose {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	m.mu.Unlock()

	m.connect(false)
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectToken++
}

func (m *Manager) scheduleHeartbeatLocked(c *connection) clock.Timer {
	return m.clock.AfterFunc(m.config.HeartbeatInterval, func() {
		m.loop.post(func() { m.heartbeatTick(c) })
	})
}

func (m *Manager) heartbeatTick(c *connection) {
	m.mu.Lock()
	if m.current != c || m.state != StateOpen {
		m.mu.Unlock()
		return
	}
	m.heartbeat = m.scheduleHeartbeatLocked(c)
	m.mu.Unlock()

	ping, err := event.New(event.TypePing, nil)
	if err != nil {
		return
	}
	m.Send(ping)
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	observabilitymetrics.RealtimeConnectionState.Set(float64(s))
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.manualClose = true
	m.stopHeartbeatLocked()
	m.stopReconnectLocked()

	c := m.current
	var conn Conn
	if c != nil {
		c.cancel()
		conn = c.conn
		m.current = nil
		m.setStateLocked(StateClosed)
	}
	m.mu.Unlock()

	m.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	if c != nil {
		m.emit(event.TypeDisconnected, event.DisconnectedPayload{Reason: "shutdown", Manual: true})
	}
	m.log.WithFields(context.Background(), logger.Fields{
		"action": "ws_manager_shutdown",
	}).Info("websocket manager stopped")
}

func (m *Manager) emit(t event.Type, data any) {
	ev, err := event.NewLocal(t, data)
	if err != nil {
		m.log.Errorf("websocket failed to build %s event: %v", t, err)
		return
	}
	m.pub.Dispatch(ev)
}
