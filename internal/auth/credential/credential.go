// Package credential supplies the bearer token the realtime connection embeds
// in its handshake. Token issuance and refresh live elsewhere; this package
// only holds the current token and refuses to hand out one that is already
// unusable.
package credential

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AlibekovAA/teamspace-realtime/internal/common/clock"
	"github.com/AlibekovAA/teamspace-realtime/internal/common/constants"
	commonerrors "github.com/AlibekovAA/teamspace-realtime/internal/common/errors"
)

type Source interface {
	AccessToken() (string, error)
}

// StaticSource holds a token set by the session owner (login, refresh,
// logout).
type StaticSource struct {
	mu    sync.RWMutex
	token string
}

func NewStaticSource(token string) *StaticSource {
	return &StaticSource{token: strings.TrimSpace(token)}
}

func (s *StaticSource) AccessToken() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", commonerrors.ErrMissingCredential
	}
	return s.token, nil
}

func (s *StaticSource) SetToken(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

func (s *StaticSource) Clear() {
	s.SetToken("")
}

type Claims struct {
	UserID    string
	Username  string
	ExpiresAt time.Time
}

// JWTSource wraps another source and rejects tokens that are malformed or
// already expired. Signatures are not verified here; the server does that
// during the handshake.
type JWTSource struct {
	next   Source
	clock  clock.Clock
	leeway time.Duration
	parser *jwt.Parser
}

func NewJWTSource(next Source, clk clock.Clock) *JWTSource {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &JWTSource{
		next:   next,
		clock:  clk,
		leeway: constants.TokenExpiryLeeway,
		parser: jwt.NewParser(),
	}
}

func (s *JWTSource) AccessToken() (string, error) {
	token, err := s.next.AccessToken()
	if err != nil {
		return "", err
	}

	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}

	if !claims.ExpiresAt.IsZero() && !s.clock.Now().Add(s.leeway).Before(claims.ExpiresAt) {
		return "", commonerrors.ErrTokenExpired
	}
	return token, nil
}

// Claims returns the identity carried by the current token.
func (s *JWTSource) Claims() (Claims, error) {
	token, err := s.next.AccessToken()
	if err != nil {
		return Claims{}, err
	}
	return s.parse(token)
}

func (s *JWTSource) parse(token string) (Claims, error) {
	mapClaims := jwt.MapClaims{}
	if _, _, err := s.parser.ParseUnverified(token, mapClaims); err != nil {
		return Claims{}, commonerrors.ErrInvalidToken.WithCause(err)
	}

	var claims Claims
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.UserID = sub
	}
	if usr, ok := mapClaims["usr"].(string); ok {
		claims.Username = usr
	}
	exp, err := mapClaims.GetExpirationTime()
	if err != nil {
		return Claims{}, commonerrors.ErrInvalidToken.WithCause(err)
	}
	if exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}
