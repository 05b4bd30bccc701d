package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sapliy/rental-ecosystem/pkg/auth"
	"github.com/sapliy/rental-ecosystem/pkg/observability"
)

// Close codes sent when the handshake fails.
const (
	CloseAuthRequired = 4001
	CloseAuthFailed   = 4002
)

const (
	ReasonAuthRequired = "Authentication required"
	ReasonInvalidToken = "Invalid authentication token"
	ReasonAuthFailed   = "Authentication failed"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrInvalidState  = errors.New("invalid session state")
)

// State is the lifecycle position of a session. Closed is terminal.
type State int

const (
	StatePending State = iota
	StateAuthenticated
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAuthenticated:
		return "authenticated"
	case StateConnected:
		return "connected"
	default:
		return "closed"
	}
}

// Authenticator resolves a credential to a user id. Errors wrapping auth.ErrInvalidToken
// or auth.ErrMissingToken mean a bad credential; anything else is an authentication failure.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// Transport is the subset of *websocket.Conn a session uses.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

type SessionOptions struct {
	WriteTimeout time.Duration
	PongWait     time.Duration
	PingInterval time.Duration
	ReadLimit    int64
}

func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		WriteTimeout: 10 * time.Second,
		PongWait:     60 * time.Second,
		PingInterval: 54 * time.Second,
		ReadLimit:    4096,
	}
}

// Session is one realtime connection. Writes are serialized by writeMu, which is
// never held by the registry.
type Session struct {
	id        string
	transport Transport
	registry  *Registry
	opts      SessionOptions
	logger    *observability.Logger

	mu     sync.Mutex
	state  State
	userID string

	writeMu sync.Mutex
	done    chan struct{}
}

func NewSession(t Transport, registry *Registry, opts SessionOptions, logger *observability.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:        id,
		transport: t,
		registry:  registry,
		opts:      opts,
		logger:    logger.With("connection_id", id),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Done is closed once the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Authenticate moves Pending -> Authenticated, or closes the session with 4001/4002.
func (s *Session) Authenticate(ctx context.Context, a Authenticator, token string) error {
	if st := s.State(); st != StatePending {
		return fmt.Errorf("%w: authenticate from %s", ErrInvalidState, st)
	}

	if token == "" {
		HandshakesTotal.WithLabelValues("missing_token").Inc()
		s.Close(CloseAuthRequired, ReasonAuthRequired)
		return auth.ErrMissingToken
	}

	userID, err := a.Authenticate(ctx, token)
	switch {
	case err == nil && userID != "":
	case err == nil, errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingToken):
		HandshakesTotal.WithLabelValues("invalid_token").Inc()
		s.logger.Info("rejecting realtime handshake", "reason", ReasonInvalidToken, "error", err)
		s.Close(CloseAuthRequired, ReasonInvalidToken)
		if err == nil {
			err = auth.ErrInvalidToken
		}
		return err
	default:
		HandshakesTotal.WithLabelValues("auth_error").Inc()
		s.logger.Error("realtime authentication failed", "error", err)
		s.Close(CloseAuthFailed, ReasonAuthFailed)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePending {
		return ErrSessionClosed
	}
	s.state = StateAuthenticated
	s.userID = userID
	s.logger = s.logger.With("user_id", userID)
	HandshakesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Register moves Authenticated -> Connected by inserting the session into the registry.
// A session closed while registering is removed again and reports ErrSessionClosed.
func (s *Session) Register() error {
	s.mu.Lock()
	if s.state != StateAuthenticated {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: register from %s", ErrInvalidState, st)
	}
	userID := s.userID
	s.mu.Unlock()

	s.registry.Connect(s, userID)

	s.mu.Lock()
	if s.state != StateAuthenticated {
		s.mu.Unlock()
		s.registry.Disconnect(s, userID)
		return ErrSessionClosed
	}
	s.state = StateConnected
	s.mu.Unlock()
	return nil
}

// Send writes one envelope. It fails once the session is closed. The write is bounded
// by WriteTimeout; ctx is not consulted.
func (s *Session) Send(ctx context.Context, msg Envelope) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.opts.WriteTimeout > 0 {
		if err := s.transport.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	if err := s.transport.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close sends a close frame and releases the transport. Later calls are no-ops.
func (s *Session) Close(code int, reason string) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasConnected := s.state == StateConnected
	s.state = StateClosed
	userID := s.userID
	s.mu.Unlock()

	if wasConnected {
		s.registry.Disconnect(s, userID)
	}

	deadline := time.Now().Add(time.Second)
	_ = s.transport.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = s.transport.Close()
	close(s.done)
}

// Serve runs the read loop until the peer goes away, ctx is cancelled or the session
// is closed. Inbound {"type":"ping"} is answered with a pong envelope.
func (s *Session) Serve(ctx context.Context) {
	if s.State() != StateConnected {
		return
	}

	if s.opts.ReadLimit > 0 {
		s.transport.SetReadLimit(s.opts.ReadLimit)
	}
	if s.opts.PongWait > 0 {
		_ = s.transport.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		s.transport.SetPongHandler(func(string) error {
			return s.transport.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.opts.PingInterval > 0 {
		go s.pingLoop(ctx)
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Close(websocket.CloseGoingAway, "server shutting down")
		case <-s.done:
		}
	}()

	for {
		_, data, err := s.transport.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("realtime connection dropped", "error", err)
			}
			s.Close(websocket.CloseNormalClosure, "")
			return
		}
		s.handleInbound(ctx, data)
	}
}

func (s *Session) handleInbound(ctx context.Context, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Type == "ping" {
		if err := s.Send(ctx, Envelope{Type: TypePong}); err != nil {
			s.logger.Warn("failed to answer ping", "error", err)
		}
	}
}

func (s *Session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.opts.WriteTimeout)
			if err := s.transport.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Info("ping failed, closing connection", "error", err)
				s.Close(websocket.CloseGoingAway, "ping failed")
				return
			}
		}
	}
}
