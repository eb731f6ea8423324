package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	gorillaWS "github.com/gorilla/websocket"

	"github.com/AlibekovAA/teamspace-realtime/internal/common/constants"
	commonerrors "github.com/AlibekovAA/teamspace-realtime/internal/common/errors"
)

// Conn is one established socket. ReadMessage is called from a single
// goroutine; WriteMessage and Close may be called concurrently with it.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type DialerConfig struct {
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	MaxMessageSize   int64
	Header           http.Header
}

type GorillaDialer struct {
	dialer         *gorillaWS.Dialer
	writeWait      time.Duration
	maxMessageSize int64
	header         http.Header
}

func NewGorillaDialer(config DialerConfig) *GorillaDialer {
	handshake := config.HandshakeTimeout
	if handshake <= 0 {
		handshake = constants.DefaultHandshakeTimeout
	}
	writeWait := config.WriteWait
	if writeWait <= 0 {
		writeWait = constants.DefaultWriteWait
	}
	maxSize := config.MaxMessageSize
	if maxSize <= 0 {
		maxSize = constants.DefaultMaxMessageSize
	}

	return &GorillaDialer{
		dialer: &gorillaWS.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshake,
			ReadBufferSize:   constants.WebSocketReadBufferSize,
			WriteBufferSize:  constants.WebSocketWriteBufferSize,
		},
		writeWait:      writeWait,
		maxMessageSize: maxSize,
		header:         config.Header,
	}
}

func (d *GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}

	conn.SetReadLimit(d.maxMessageSize)
	return &gorillaConn{conn: conn, writeWait: d.writeWait}, nil
}

type gorillaConn struct {
	conn      *gorillaWS.Conn
	writeMu   sync.Mutex
	writeWait time.Duration
	closeOnce sync.Once
	closeErr  error
	closed    bool
}

func (c *gorillaConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *gorillaConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return commonerrors.ErrConnectionClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(gorillaWS.TextMessage, data)
}

func (c *gorillaConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		c.writeMu.Unlock()

		_ = c.conn.WriteControl(
			gorillaWS.CloseMessage,
			gorillaWS.FormatCloseMessage(gorillaWS.CloseNormalClosure, ""),
			time.Now().Add(constants.WebSocketCloseGrace),
		)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// closeReason renders the error that ended a connection for the
// disconnected pseudo-event.
func closeReason(err error) string {
	if err == nil {
		return ""
	}
	var closeErr *gorillaWS.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Text != "" {
			return fmt.Sprintf("close %d: %s", closeErr.Code, closeErr.Text)
		}
		return fmt.Sprintf("close %d", closeErr.Code)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return err.Error()
}

// isExpectedClose reports whether err is a normal end of the read loop
// rather than a transport failure worth surfacing as an error event.
func isExpectedClose(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	return gorillaWS.IsCloseError(err, gorillaWS.CloseNormalClosure, gorillaWS.CloseGoingAway)
}
