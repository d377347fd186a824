package prometheus

import (
	"time"

	"github.com/marmos91/volumed/pkg/metrics"
	"github.com/marmos91/volumed/pkg/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterServerMetricsConstructor(func() server.MetricsFactory {
		m := NewServerMetrics(metrics.GetRegistry())
		if m == nil {
			return nil
		}
		return m.ForProfile
	})
}

// ServerMetrics holds the connection metrics shared by every instance.
type ServerMetrics struct {
	accepted    *prometheus.CounterVec
	closed      *prometheus.CounterVec
	forceClosed *prometheus.CounterVec
	errors      *prometheus.CounterVec
	active      *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
}

// NewServerMetrics registers the connection metrics on reg.
//
// Returns nil if reg is nil.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	if reg == nil {
		return nil
	}

	return &ServerMetrics{
		accepted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumed_connections_accepted_total",
				Help: "Total number of accepted connections by profile",
			},
			[]string{"profile"},
		),
		closed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumed_connections_closed_total",
				Help: "Total number of closed connections by profile",
			},
			[]string{"profile"},
		),
		forceClosed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumed_connections_force_closed_total",
				Help: "Connections closed because the shutdown grace period expired",
			},
			[]string{"profile"},
		),
		errors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumed_connection_errors_total",
				Help: "Connections that ended with an error or a handler panic",
			},
			[]string{"profile"},
		),
		active: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "volumed_connections_active",
				Help: "Connections currently being served",
			},
			[]string{"profile"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "volumed_connection_duration_seconds",
				Help: "Lifetime of served connections in seconds",
				Buckets: []float64{
					0.001, // 1ms - health probes
					0.01,  // 10ms
					0.1,   // 100ms
					1,     // 1s
					10,    // 10s
					60,    // 1m - keep-alive clients
					600,   // 10m
				},
			},
			[]string{"profile"},
		),
	}
}

// ForProfile returns the recorder for one profile.
func (m *ServerMetrics) ForProfile(profile string) server.MetricsRecorder {
	if m == nil {
		return nil
	}
	return &profileMetrics{m: m, profile: profile}
}

// profileMetrics is the server.MetricsRecorder bound to one profile label.
type profileMetrics struct {
	m       *ServerMetrics
	profile string
}

func (p *profileMetrics) RecordConnectionAccepted() {
	if p == nil {
		return
	}
	p.m.accepted.WithLabelValues(p.profile).Inc()
}

func (p *profileMetrics) RecordConnectionClosed(d time.Duration) {
	if p == nil {
		return
	}
	p.m.closed.WithLabelValues(p.profile).Inc()
	p.m.duration.WithLabelValues(p.profile).Observe(d.Seconds())
}

func (p *profileMetrics) RecordConnectionForceClosed() {
	if p == nil {
		return
	}
	p.m.forceClosed.WithLabelValues(p.profile).Inc()
}

func (p *profileMetrics) RecordConnectionError() {
	if p == nil {
		return
	}
	p.m.errors.WithLabelValues(p.profile).Inc()
}

func (p *profileMetrics) SetActiveConnections(count int32) {
	if p == nil {
		return
	}
	p.m.active.WithLabelValues(p.profile).Set(float64(count))
}
