package kinetic

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus collectors a Session reports to, if
// registered. Leaving Config.Metrics nil (the default) substitutes
// nopMetrics, whose collectors are never registered, so instrumentation
// is entirely opt-in.
type Metrics struct {
	outstanding    prometheus.Gauge
	framesSent     prometheus.Counter
	framesReceived prometheus.Counter
	hmacFailures   prometheus.Counter
	timeouts       prometheus.Counter
}

// NewMetrics creates a Metrics instance and registers its collectors
// with reg. Pass a *prometheus.Registry (or prometheus.DefaultRegisterer)
// from the calling application; the core never registers with the
// global registry implicitly.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "kinetic", Name: "operations_outstanding",
			Help: "Number of operations currently registered and awaiting resolution.",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "kinetic", Name: "frames_sent_total",
			Help: "Total frames written to the drive connection.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "kinetic", Name: "frames_received_total",
			Help: "Total frames read from the drive connection.",
		}),
		hmacFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "kinetic", Name: "hmac_failures_total",
			Help: "Total responses that failed HMAC validation.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "kinetic", Name: "operation_timeouts_total",
			Help: "Total operations resolved by the timeout sweeper.",
		}),
	}
	reg.MustRegister(m.outstanding, m.framesSent, m.framesReceived, m.hmacFailures, m.timeouts)
	return m
}

// nopMetrics is installed by Config.withDefaults when the session was
// configured without a *Metrics, so call sites never need a nil check.
var nopMetrics = &Metrics{
	outstanding:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "kinetic_nop_outstanding"}),
	framesSent:     prometheus.NewCounter(prometheus.CounterOpts{Name: "kinetic_nop_frames_sent"}),
	framesReceived: prometheus.NewCounter(prometheus.CounterOpts{Name: "kinetic_nop_frames_received"}),
	hmacFailures:   prometheus.NewCounter(prometheus.CounterOpts{Name: "kinetic_nop_hmac_failures"}),
	timeouts:       prometheus.NewCounter(prometheus.CounterOpts{Name: "kinetic_nop_timeouts"}),
}
