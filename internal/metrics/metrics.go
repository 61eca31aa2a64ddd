// Package metrics records probe and component counters for a single run.
//
// aegis is a batch tool, so metrics are not scraped from a listener: they
// are written once at the end of a run in the text exposition format, ready
// for the node_exporter textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder wraps a private registry. A nil *Recorder is valid and records
// nothing, so components never need to check for it.
type Recorder struct {
	registry *prometheus.Registry

	probes            *prometheus.CounterVec
	componentDuration *prometheus.GaugeVec
	componentFailures *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aegis",
			Name:      "probes_total",
			Help:      "Probes executed, by component and outcome.",
		}, []string{"component", "outcome"}),
		componentDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "aegis",
			Name:      "component_duration_seconds",
			Help:      "Wall time of the last run of each component.",
		}, []string{"component"}),
		componentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aegis",
			Name:      "component_failures_total",
			Help:      "Components that aborted with a validation, resolution or configuration error.",
		}, []string{"component"}),
	}
	r.registry.MustRegister(r.probes, r.componentDuration, r.componentFailures)
	return r
}

// Probe counts one probe outcome ("open", "closed", "present", "ok", ...).
func (r *Recorder) Probe(component, outcome string) {
	if r == nil {
		return
	}
	r.probes.WithLabelValues(component, outcome).Inc()
}

// Component records the duration of a component run and whether it failed.
func (r *Recorder) Component(component string, seconds float64, failed bool) {
	if r == nil {
		return
	}
	r.componentDuration.WithLabelValues(component).Set(seconds)
	if failed {
		r.componentFailures.WithLabelValues(component).Inc()
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
