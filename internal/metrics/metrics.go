// Package metrics counts what a dump run did. The counters live in their own
// registry and are written once, at the end of a run, in the node exporter
// textfile format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "etwmeta"

// Provider outcomes.
const (
	OutcomeManifest = "manifest"
	OutcomeLegacy   = "legacy"
	OutcomeBoth     = "both"
	OutcomeUnknown  = "unknown"
	OutcomeFailed   = "failed"
)

// Run holds the counters of one run.
type Run struct {
	registry *prometheus.Registry

	Providers *prometheus.CounterVec
	Repairs   *prometheus.CounterVec
	Skipped   *prometheus.CounterVec
	Events    *prometheus.CounterVec
	Helper    *prometheus.CounterVec
}

func New() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		Providers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "providers_total",
			Help:      "Providers processed, by outcome.",
		}, []string{"outcome"}),
		Repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifest_repairs_total",
			Help:      "Manifest repair retries, by result.",
		}, []string{"result"}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_items_total",
			Help:      "Metadata items skipped while building models, by component.",
		}, []string{"component"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events written to reports, by metadata source.",
		}, []string{"source"}),
		Helper: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evtmeta_fetches_total",
			Help:      "Event log metadata lookups, by result.",
		}, []string{"result"}),
	}
	r.registry.MustRegister(r.Providers, r.Repairs, r.Skipped, r.Events, r.Helper)
	return r
}

// Registry returns the registry the counters are registered in.
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the counters to path, atomically.
func (r *Run) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
