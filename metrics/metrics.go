// Package metrics instruments the driver with prometheus counters and
// histograms, adapted from the teacher's engine/metrics.go (which registers
// a CounterVec/HistogramVec pair for the rule engine's HTTP surface) to the
// driver's own phases and error taxonomy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bittoy/platformdesc/diag"
)

// Recorder is the metrics sink a Driver reports through. A nil *Recorder is
// valid and every method on it is a no-op, so WithMetrics is optional.
type Recorder struct {
	entriesCreated   prometheus.Counter
	registrations    prometheus.Counter
	buildDuration    *prometheus.HistogramVec
	errors           *prometheus.CounterVec
}

// NewRecorder builds a Recorder and registers its collectors against reg.
// Pass prometheus.NewRegistry() in tests to avoid polluting the default
// registry; pass prometheus.DefaultRegisterer in production, matching the
// teacher's package-level MustRegister in engine/metrics.go.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		entriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "platformdesc",
			Subsystem: "driver",
			Name:      "entries_created_total",
			Help:      "Number of entries turned into live objects.",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "platformdesc",
			Subsystem: "driver",
			Name:      "registrations_total",
			Help:      "Number of peripherals registered onto the host Machine.",
		}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "platformdesc",
			Subsystem: "driver",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of each driver phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "platformdesc",
			Subsystem: "driver",
			Name:      "errors_total",
			Help:      "Number of ProcessFile/ProcessDescription calls that failed, by error code.",
		}, []string{"code"}),
	}
	reg.MustRegister(r.entriesCreated, r.registrations, r.buildDuration, r.errors)
	return r
}

func (r *Recorder) EntryCreated() {
	if r == nil {
		return
	}
	r.entriesCreated.Inc()
}

func (r *Recorder) Registered() {
	if r == nil {
		return
	}
	r.registrations.Inc()
}

// ObservePhase records how long a named phase took, in seconds. The driver
// reports the parse, validate and build phases.
func (r *Recorder) ObservePhase(phase string, seconds float64) {
	if r == nil {
		return
	}
	r.buildDuration.WithLabelValues(phase).Observe(seconds)
}

func (r *Recorder) Error(code diag.Code) {
	if r == nil {
		return
	}
	r.errors.WithLabelValues(code.String()).Inc()
}
