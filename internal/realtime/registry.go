package realtime

import (
	"context"
	"sync"

	"github.com/sapliy/rental-ecosystem/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// CloseSendFailed is sent to a connection pruned after a failed push.
const CloseSendFailed = 1011

// Conn is a live connection the registry can push to.
type Conn interface {
	ID() string
	Send(ctx context.Context, msg Envelope) error
	Close(code int, reason string)
}

// Registry maps users to their live connections. Map mutations happen under mu;
// sends never do, so a slow connection only delays its own goroutine.
type Registry struct {
	mu     sync.RWMutex
	users  map[string]map[Conn]struct{}
	logger *observability.Logger

	broadcastLimit int
}

func NewRegistry(logger *observability.Logger) *Registry {
	return &Registry{
		users:          make(map[string]map[Conn]struct{}),
		logger:         logger.With("component", "realtime_registry"),
		broadcastLimit: 64,
	}
}

// Connect registers c for userID. There is no per-user connection limit.
func (r *Registry) Connect(c Conn, userID string) {
	r.mu.Lock()
	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[Conn]struct{})
		r.users[userID] = conns
	}
	_, existed := conns[c]
	conns[c] = struct{}{}
	total := len(conns)
	r.mu.Unlock()

	if !existed {
		ActiveConnections.Inc()
	}
	r.logger.Info("connection registered", "user_id", userID, "connection_id", c.ID(), "user_connections", total)
}

// Disconnect removes c. It reports whether c was registered; a second call is a no-op.
func (r *Registry) Disconnect(c Conn, userID string) bool {
	r.mu.Lock()
	conns, ok := r.users[userID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, ok := conns[c]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(r.users, userID)
	}
	r.mu.Unlock()

	ActiveConnections.Dec()
	r.logger.Info("connection removed", "user_id", userID, "connection_id", c.ID())
	return true
}

func (r *Registry) snapshot(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.users[userID]
	out := make([]Conn, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}

// Push sends msg to every connection of userID and returns how many received it.
// Connections whose send fails are removed and closed. A failure after ctx is done is
// the caller's, and leaves the connection registered.
func (r *Registry) Push(ctx context.Context, userID string, msg Envelope) int {
	conns := r.snapshot(userID)
	if len(conns) == 0 {
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, c := range conns {
		wg.Add(1)
		go func(c Conn) {
			defer wg.Done()
			if err := c.Send(ctx, msg); err != nil {
				PushesTotal.WithLabelValues("failed").Inc()
				if ctx.Err() != nil {
					r.logger.Info("push abandoned by caller", "user_id", userID, "connection_id", c.ID(), "error", err)
					return
				}
				r.logger.Warn("push failed, pruning connection",
					"user_id", userID, "connection_id", c.ID(), "error", err)
				if r.Disconnect(c, userID) {
					c.Close(CloseSendFailed, "send failed")
				}
				return
			}
			PushesTotal.WithLabelValues("delivered").Inc()
			mu.Lock()
			delivered++
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return delivered
}

// Broadcast pushes msg to every connected user except exclude and returns the number
// of connections that received it.
func (r *Registry) Broadcast(ctx context.Context, msg Envelope, exclude string) int {
	var (
		g         errgroup.Group
		mu        sync.Mutex
		delivered int
	)
	g.SetLimit(r.broadcastLimit)

	for _, userID := range r.Users() {
		if userID == exclude {
			continue
		}
		userID := userID
		g.Go(func() error {
			n := r.Push(ctx, userID, msg)
			mu.Lock()
			delivered += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return delivered
}

// ConnectionCount returns the number of live connections for userID.
func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// Users returns the ids of all users with at least one connection.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.users))
	for u := range r.users {
		out = append(out, u)
	}
	return out
}

// Shutdown closes and removes every connection.
func (r *Registry) Shutdown(code int, reason string) {
	r.mu.Lock()
	all := r.users
	r.users = make(map[string]map[Conn]struct{})
	r.mu.Unlock()

	for _, conns := range all {
		for c := range conns {
			ActiveConnections.Dec()
			c.Close(code, reason)
		}
	}
}
