package notification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Notifications persisted, by type.",
	}, []string{"type"})

	ChannelAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_channel_attempts_total",
		Help: "Channel delivery attempts, by channel and result.",
	}, []string{"channel", "result"})

	DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notification_dispatch_duration_seconds",
		Help:    "Time to attempt every eligible channel of one notification.",
		Buckets: prometheus.DefBuckets,
	})

	SuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_suppressed_total",
		Help: "Notifications with no eligible channel at dispatch time, by reason.",
	}, []string{"reason"})
)
