package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/AlibekovAA/teamspace-realtime/internal/common/constants"
	commonerrors "github.com/AlibekovAA/teamspace-realtime/internal/common/errors"
)

type RealtimeConfig struct {
	WebSocketURL         string        `env:"REALTIME_WS_URL" envDefault:"ws://localhost:8000" validate:"required,url"`
	WebSocketPath        string        `env:"REALTIME_WS_PATH" envDefault:"/ws" validate:"required,startswith=/"`
	AccessToken          string        `env:"REALTIME_ACCESS_TOKEN"`
	HeartbeatInterval    time.Duration `env:"REALTIME_HEARTBEAT_INTERVAL" envDefault:"30s" validate:"gt=0"`
	ReconnectDelay       time.Duration `env:"REALTIME_RECONNECT_DELAY" envDefault:"1s" validate:"gt=0"`
	MaxReconnectAttempts int           `env:"REALTIME_MAX_RECONNECT_ATTEMPTS" envDefault:"5" validate:"gte=0"`
	HandshakeTimeout     time.Duration `env:"REALTIME_HANDSHAKE_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	WriteWait            time.Duration `env:"REALTIME_WRITE_WAIT" envDefault:"10s" validate:"gt=0"`
	MaxMessageSize       int64         `env:"REALTIME_MAX_MESSAGE_SIZE" envDefault:"1048576" validate:"gt=0"`
	MetricsAddr          string        `env:"REALTIME_METRICS_ADDR" envDefault:":9090"`
	LogDir               string        `env:"LOG_DIR"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info" validate:"omitempty,oneof=debug info warn warning error critical DEBUG INFO WARN WARNING ERROR CRITICAL"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func LoadRealtimeConfig() (RealtimeConfig, error) {
	var cfg RealtimeConfig
	if err := env.Parse(&cfg); err != nil {
		return RealtimeConfig{}, commonerrors.ErrInvalidConfig.WithCause(fmt.Errorf("parse env: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return RealtimeConfig{}, err
	}
	return cfg, nil
}

// DefaultRealtimeConfig mirrors the envDefault tags for callers that build
// the config in code.
func DefaultRealtimeConfig() RealtimeConfig {
	return RealtimeConfig{
		WebSocketURL:         constants.DefaultWebSocketURL,
		WebSocketPath:        constants.DefaultWebSocketPath,
		HeartbeatInterval:    constants.DefaultHeartbeatInterval,
		ReconnectDelay:       constants.DefaultReconnectDelay,
		MaxReconnectAttempts: constants.DefaultMaxReconnectAttempts,
		HandshakeTimeout:     constants.DefaultHandshakeTimeout,
		WriteWait:            constants.DefaultWriteWait,
		MaxMessageSize:       constants.DefaultMaxMessageSize,
		MetricsAddr:          constants.DefaultMetricsAddr,
		LogLevel:             "info",
	}
}

func (c RealtimeConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return commonerrors.ErrInvalidConfig.WithCause(err)
	}
	u, err := url.Parse(c.WebSocketURL)
	if err != nil {
		return commonerrors.ErrInvalidConfig.WithCause(err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return commonerrors.ErrInvalidConfig.WithCause(fmt.Errorf("REALTIME_WS_URL scheme must be ws or wss, got %q", u.Scheme))
	}
	return nil
}

// Endpoint is the socket URL without credentials.
func (c RealtimeConfig) Endpoint() string {
	return strings.TrimRight(c.WebSocketURL, "/") + c.WebSocketPath
}

// BuildURL returns the socket URL with the token appended as a query
// parameter.
func BuildURL(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", commonerrors.ErrInvalidConfig.WithCause(err)
	}
	q := u.Query()
	q.Set(constants.TokenQueryParam, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
