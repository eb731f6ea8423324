package constants

import "time"

const (
	DefaultWebSocketURL  = "ws://localhost:8000"
	DefaultWebSocketPath = "/ws"
	TokenQueryParam      = "token"

	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectDelay       = 1 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteWait            = 10 * time.Second
	DefaultMaxMessageSize       = 1 << 20
	DefaultMetricsAddr          = ":9090"

	WebSocketReadBufferSize  = 1024
	WebSocketWriteBufferSize = 1024
	WebSocketCloseGrace      = 1 * time.Second

	ServerReadHeaderTimeout = 5 * time.Second
	ServerReadTimeout       = 10 * time.Second
	ServerWriteTimeout      = 10 * time.Second
	ServerIdleTimeout       = 120 * time.Second

	ShutdownTimeout = 30 * time.Second
	DrainTimeout    = 10 * time.Second

	TokenExpiryLeeway = 5 * time.Second

	LoggerMaxSize    = 100
	LoggerMaxBackups = 3
	LoggerMaxAge     = 28
)

type TraceIDKeyType string

const TraceIDKey TraceIDKeyType = "trace_id"
