package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_active_connections",
		Help: "Number of registered realtime connections.",
	})

	PushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_pushes_total",
		Help: "Realtime push attempts per connection, by result.",
	}, []string{"result"})

	HandshakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_handshakes_total",
		Help: "Realtime handshakes by outcome.",
	}, []string{"outcome"})
)
