package bridge

import (
	stderrors "errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Release outcomes recorded by hostbridge_releases_total.
const (
	resultReleased = "released"
	resultFailed   = "failed"
	resultDropped  = "dropped"
)

// Metrics are the bridge's prometheus collectors.
type Metrics struct {
	Releases        *prometheus.CounterVec
	Pending         prometheus.Gauge
	References      prometheus.Gauge
	AttachedThreads prometheus.Gauge
	State           prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered. Collectors already registered on reg by another
// bridge are shared.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Releases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostbridge_releases_total",
				Help: "Native reference releases processed by the reference daemon, by result",
			},
			[]string{"result"},
		),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostbridge_pending_releases",
			Help: "Releases queued for the reference daemon",
		}),
		References: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostbridge_native_references",
			Help: "Native references registered with the runtime and not yet released",
		}),
		AttachedThreads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostbridge_attached_threads",
			Help: "OS threads currently attached to the runtime",
		}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostbridge_lifecycle_state",
			Help: "Lifecycle state (0 not started, 1 starting, 2 running, 3 attached, 4 shutting down, 5 stopped)",
		}),
	}
	if reg == nil {
		return m
	}
	m.Releases = register(reg, m.Releases)
	m.Pending = register(reg, m.Pending)
	m.References = register(reg, m.References)
	m.AttachedThreads = register(reg, m.AttachedThreads)
	m.State = register(reg, m.State)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if stderrors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		Logger().Sugar().Warnf("metrics: %v", err)
	}
	return c
}
