package realtime

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sapliy/rental-ecosystem/pkg/auth"
	"github.com/sapliy/rental-ecosystem/pkg/observability"
)

// ConnectHook runs after a session is registered, before the read loop starts.
type ConnectHook func(ctx context.Context, s *Session)

// Handler upgrades HTTP requests to realtime sessions.
type Handler struct {
	upgrader  websocket.Upgrader
	registry  *Registry
	auth      Authenticator
	opts      SessionOptions
	logger    *observability.Logger
	onConnect []ConnectHook
}

// NewHandler accepts any origin when allowedOrigins is empty.
func NewHandler(registry *Registry, a Authenticator, opts SessionOptions, allowedOrigins []string, logger *observability.Logger) *Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}

	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		registry: registry,
		auth:     a,
		opts:     opts,
		logger:   logger.With("component", "realtime_handler"),
	}
}

// OnConnect adds a hook run for every newly connected session.
func (h *Handler) OnConnect(hook ConnectHook) {
	h.onConnect = append(h.onConnect, hook)
}

// ServeHTTP upgrades first so that authentication failures can be reported with
// a close code the client can read.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s := NewSession(conn, h.registry, h.opts, h.logger)
	ctx := r.Context()

	if err := s.Authenticate(ctx, h.auth, tokenFrom(r)); err != nil {
		return
	}
	if err := s.Register(); err != nil {
		s.Close(websocket.CloseInternalServerErr, "registration failed")
		return
	}

	if !h.greet(ctx, s) {
		return
	}
	for _, hook := range h.onConnect {
		hook(ctx, s)
	}

	s.Serve(ctx)
}

// greet sends the connected frame. A session that cannot take it is closed.
func (h *Handler) greet(ctx context.Context, s *Session) bool {
	err := s.Send(ctx, System("connected", "Connected to notifications", map[string]any{
		"connection_id": s.ID(),
	}))
	if err != nil {
		h.logger.Warn("failed to greet connection", "user_id", s.UserID(), "connection_id", s.ID(), "error", err)
		s.Close(CloseSendFailed, "send failed")
		return false
	}
	return true
}

func tokenFrom(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return auth.BearerToken(r)
}
