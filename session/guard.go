// Package session is the client side of the gateway's authentication: it
// attaches a fresh ID token to every outbound call and reports an expired
// session once per cool-down window so the application shell can send the
// user back to login.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// EventSessionExpired names the signal consumed by the application shell
const EventSessionExpired = "auth:session-expired"

// Signal reasons
const (
	ReasonTokenRefreshFailed = "token_refresh_failed"
	ReasonUnauthorized       = "unauthorized"
)

// UserMessage is the only text shown to the user for any session failure
const UserMessage = "Session expired, please log in again."

// ErrSessionExpired is returned when no token could be obtained for a call
var ErrSessionExpired = errors.New("session expired")

// Signal tells the shell the session is no longer usable. The guard never
// acts on it itself.
type Signal struct {
	Event  string
	Reason string
	At     time.Time
	Err    error
}

// GuardOption configures a Guard
type GuardOption func(*Guard)

// WithBase sets the transport that performs the actual call
func WithBase(base http.RoundTripper) GuardOption {
	return func(g *Guard) { g.base = base }
}

// WithCooldown sets the suppression window for repeated signals
func WithCooldown(window time.Duration) GuardOption {
	return func(g *Guard) { g.cooldown = window }
}

// WithClock injects the clock used for signal timestamps and the cool-down
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) GuardOption {
	return func(g *Guard) { g.logger = logger }
}

// OnSessionExpired registers the shell's handler for session-expired signals
func OnSessionExpired(fn func(Signal)) GuardOption {
	return func(g *Guard) { g.onExpired = fn }
}

// Guard is an http.RoundTripper that authenticates outbound calls
type Guard struct {
	tokens    TokenSource
	base      http.RoundTripper
	cooldown  time.Duration
	now       func() time.Time
	debouncer *Debouncer
	onExpired func(Signal)
	logger    *zap.Logger
}

// NewGuard creates a guard. A nil TokenSource means no identity provider is
// configured and requests go out without a token.
func NewGuard(tokens TokenSource, opts ...GuardOption) *Guard {
	g := &Guard{
		tokens:   tokens,
		base:     http.DefaultTransport,
		cooldown: DefaultCooldown,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.debouncer = NewDebouncer(g.cooldown, g.now)
	return g
}

// Client returns an http.Client using the guard as transport
func (g *Guard) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: g, Timeout: timeout}
}

// Reset re-arms the signal, typically after a successful re-login
func (g *Guard) Reset() {
	g.debouncer.Reset()
}

// RoundTrip implements http.RoundTripper
func (g *Guard) RoundTrip(req *http.Request) (*http.Response, error) {
	if g.tokens == nil {
		return g.base.RoundTrip(req)
	}

	token, err := g.tokens.Token(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		g.emit(ReasonTokenRefreshFailed, err)
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.base.RoundTrip(authed)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		g.emit(ReasonUnauthorized, nil)
	}
	return resp, nil
}

func (g *Guard) emit(reason string, cause error) {
	if !g.debouncer.Allow() {
		g.logger.Debug("session expired signal suppressed",
			zap.String("reason", reason))
		return
	}

	g.logger.Warn("session expired",
		zap.String("event", EventSessionExpired),
		zap.String("reason", reason),
		zap.Error(cause))

	if g.onExpired != nil {
		g.onExpired(Signal{
			Event:  EventSessionExpired,
			Reason: reason,
			At:     g.now(),
			Err:    cause,
		})
	}
}
