package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapliy/rental-ecosystem/pkg/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/sapliy/rental-ecosystem/internal/notification")

// Result is the outcome of one dispatch.
type Result struct {
	Succeeded []Channel
	Failed    map[Channel]error
}

func (r Result) AnySucceeded() bool { return len(r.Succeeded) > 0 }

// FailedChannels returns the failed channels in a stable order.
func (r Result) FailedChannels() []Channel {
	out := make([]Channel, 0, len(r.Failed))
	for c := range r.Failed {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatcher routes a notification to the senders of its eligible channels.
type Dispatcher struct {
	mu      sync.RWMutex
	senders map[Channel]Sender
	logger  *observability.Logger
}

func NewDispatcher(logger *observability.Logger, senders ...Sender) *Dispatcher {
	d := &Dispatcher{
		senders: make(map[Channel]Sender, len(senders)),
		logger:  logger.With("component", "dispatcher"),
	}
	for _, s := range senders {
		d.Register(s)
	}
	return d
}

// Register replaces any sender already bound to s.Channel().
func (d *Dispatcher) Register(s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[s.Channel()] = s
}

func (d *Dispatcher) sender(c Channel) (Sender, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.senders[c]
	return s, ok
}

// Dispatch attempts every eligible channel concurrently. A failing or panicking sender
// never affects the others, and nothing is retried here.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification, eligible []Channel) Result {
	ctx, span := tracer.Start(ctx, "notification.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("notification.id", n.ID),
		attribute.String("notification.type", string(n.Type)),
		attribute.Int("notification.channels", len(eligible)),
	)
	timer := prometheus.NewTimer(DispatchLatency)
	defer timer.ObserveDuration()

	res := Result{Failed: make(map[Channel]error)}
	if len(eligible) == 0 {
		return res
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, c := range eligible {
		wg.Add(1)
		go func(c Channel) {
			defer wg.Done()
			err := d.attempt(ctx, c, n)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed[c] = err
				return
			}
			res.Succeeded = append(res.Succeeded, c)
		}(c)
	}
	wg.Wait()

	sort.Slice(res.Succeeded, func(i, j int) bool { return res.Succeeded[i] < res.Succeeded[j] })
	if !res.AnySucceeded() {
		span.SetStatus(codes.Error, "no channel delivered")
	}
	return res
}

func (d *Dispatcher) attempt(ctx context.Context, c Channel, n *Notification) (err error) {
	logger := d.logger.WithContext(ctx).With("notification_id", n.ID, "user_id", n.UserID, "channel", c)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
		if err != nil {
			ChannelAttempts.WithLabelValues(string(c), "failed").Inc()
			logger.Error("channel delivery failed", "error", err)
			return
		}
		ChannelAttempts.WithLabelValues(string(c), "delivered").Inc()
	}()

	s, ok := d.sender(c)
	if !ok {
		return fmt.Errorf("no sender registered for channel %s", c)
	}
	return s.Attempt(ctx, n)
}
