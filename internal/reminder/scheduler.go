package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sapliy/rental-ecosystem/internal/notification"
	"github.com/sapliy/rental-ecosystem/pkg/observability"
)

var (
	remindersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_created_total",
		Help: "Reminder notifications created by the scheduler",
	}, []string{"kind"})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reminder_scan_duration_seconds",
		Help:    "Duration of one reminder scan",
		Buckets: prometheus.DefBuckets,
	})
)

// PaymentSource lists payments still owed whose due date falls in [from, to].
type PaymentSource interface {
	DuePayments(ctx context.Context, from, to time.Time) ([]Payment, error)
}

// Notifier is the part of the notification service the scheduler drives.
type Notifier interface {
	Notify(ctx context.Context, req notification.CreateRequest) (*notification.Notification, error)
	RetryUnsent(ctx context.Context) (int, error)
}

// Config tunes a Scheduler.
type Config struct {
	LeadDays int
	// Location decides which calendar day a reference timestamp belongs to.
	Location *time.Location
}

// Report summarises one scan.
type Report struct {
	AsOf       time.Time `json:"as_of"`
	Scanned    int       `json:"scanned"`
	Created    int       `json:"created"`
	Duplicates int       `json:"duplicates"`
	Failed     int       `json:"failed"`
	Retried    int       `json:"retried"`
}

type Scheduler struct {
	source   PaymentSource
	notifier Notifier
	cfg      Config
	logger   *observability.Logger
}

func NewScheduler(source PaymentSource, notifier Notifier, cfg Config, logger *observability.Logger) *Scheduler {
	if cfg.LeadDays <= 0 {
		cfg.LeadDays = DefaultLeadDays
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{source: source, notifier: notifier, cfg: cfg, logger: logger}
}

// Run scans for reminders due on the calendar day of asOf and creates one
// notification per condition. Re-running for the same day creates nothing new.
// Unsent notifications from earlier runs are retried afterwards.
func (s *Scheduler) Run(ctx context.Context, asOf time.Time) (Report, error) {
	timer := prometheus.NewTimer(scanDuration)
	defer timer.ObserveDuration()

	today := civil(asOf, s.cfg.Location)
	from := today.AddDate(0, 0, -OverdueMilestones[len(OverdueMilestones)-1])
	to := today.AddDate(0, 0, s.cfg.LeadDays)

	report := Report{AsOf: today}
	payments, err := s.source.DuePayments(ctx, from, to)
	if err != nil {
		return report, fmt.Errorf("load due payments: %w", err)
	}

	for _, p := range payments {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		r, ok := Classify(p, asOf, s.cfg.Location, s.cfg.LeadDays)
		if !ok {
			continue
		}
		report.Scanned++

		n, err := s.notifier.Notify(ctx, r.Request())
		switch {
		case errors.Is(err, notification.ErrDuplicateReminder):
			report.Duplicates++
		case err != nil && n == nil:
			report.Failed++
			s.logger.Warn("Reminder not created", "payment_id", p.ID, "key", r.Key(), "error", err)
		default:
			// A record that failed delivery is persisted and picked up by the retry pass.
			report.Created++
			remindersCreated.WithLabelValues(string(r.Kind)).Inc()
		}
	}

	retried, err := s.notifier.RetryUnsent(ctx)
	report.Retried = retried
	if err != nil {
		s.logger.Warn("Retrying unsent notifications failed", "error", err)
	}

	s.logger.Info("Reminder scan finished",
		"as_of", today.Format(time.DateOnly),
		"scanned", report.Scanned,
		"created", report.Created,
		"duplicates", report.Duplicates,
		"failed", report.Failed,
		"retried", report.Retried,
	)
	return report, nil
}
