package server

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/NicolasHaas/gorelay/pkg/version"
)

// Metrics tracks server runtime statistics.
// Each Metrics owns its own prometheus.Registry so several servers can run in
// one process (tests) without colliding on the default registerer.
type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	TotalConnections  prometheus.Counter     // lifetime connections accepted, any transport
	ActiveConnections prometheus.Gauge       // currently open connections
	Disconnects       prometheus.Counter     // connections closed, clean or not
	Sessions          prometheus.GaugeFunc   // currently registered display names
	AuthAttempts      *prometheus.CounterVec // by result: ok or a failure reason
	Registrations     *prometheus.CounterVec // by result
	ChatMessages      *prometheus.CounterVec // by kind: broadcast, direct
	Throttled         prometheus.Counter     // lines dropped by flood control
	KickCount         prometheus.Counter
	BanCount          prometheus.Counter
}

// NewMetrics creates a Metrics instance. online reports the number of
// registered sessions at scrape time; it may be nil.
func NewMetrics(online func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	if online == nil {
		online = func() int { return 0 }
	}

	m := &Metrics{
		startTime: time.Now(),
		registry:  reg,
		TotalConnections: factory.NewCounter(prometheus.CounterOpts{
			Name: "gorelay_connections_total",
			Help: "Lifetime connections accepted.",
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gorelay_connections_active",
			Help: "Currently open connections.",
		}),
		Disconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "gorelay_disconnects_total",
			Help: "Total client disconnects.",
		}),
		Sessions: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "gorelay_sessions_registered",
			Help: "Authenticated sessions currently in the chat.",
		}, func() float64 { return float64(online()) }),
		AuthAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gorelay_auth_attempts_total",
			Help: "Authentication attempts by result.",
		}, []string{"result"}),
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gorelay_registrations_total",
			Help: "Registration attempts by result.",
		}, []string{"result"}),
		ChatMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gorelay_chat_messages_total",
			Help: "Chat lines relayed by kind.",
		}, []string{"kind"}),
		Throttled: factory.NewCounter(prometheus.CounterOpts{
			Name: "gorelay_throttled_total",
			Help: "Chat lines dropped by flood control.",
		}),
		KickCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "gorelay_kicks_total",
			Help: "Users kicked.",
		}),
		BanCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "gorelay_bans_total",
			Help: "Users banned.",
		}),
	}
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gorelay_uptime_seconds",
		Help: "Server uptime in seconds.",
	}, func() float64 { return time.Since(m.startTime).Seconds() })
	factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gorelay_build_info",
		Help: "Always 1; labels describe the running build.",
	}, []string{"version", "commit"}).WithLabelValues(version.String(), version.Commit()).Set(1)
	return m
}

// Registry returns the prometheus registry holding every server metric.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// LogSummary writes a metrics summary to the logger.
func (m *Metrics) LogSummary(logger *slog.Logger) {
	families, err := m.registry.Gather()
	if err != nil {
		logger.Warn("gather metrics", "err", err)
		return
	}
	args := []any{"uptime", time.Since(m.startTime).Truncate(time.Second).String()}
	for _, mf := range families {
		switch mf.GetName() {
		case "gorelay_connections_active", "gorelay_connections_total", "gorelay_sessions_registered":
			for _, metric := range mf.GetMetric() {
				switch {
				case metric.GetGauge() != nil:
					args = append(args, mf.GetName(), metric.GetGauge().GetValue())
				case metric.GetCounter() != nil:
					args = append(args, mf.GetName(), metric.GetCounter().GetValue())
				}
			}
		}
	}
	logger.Info("metrics", args...)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(logger *slog.Logger, interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary(logger)
			}
		}
	}()
}
