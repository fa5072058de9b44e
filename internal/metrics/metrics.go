// Package metrics exposes termguard's Prometheus counters on a private
// registry. All recording methods are safe on a nil *Registry so components
// can run without metrics wired.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every termguard metric.
type Registry struct {
	registry *prometheus.Registry

	ProbePositiveTotal     *prometheus.CounterVec
	VerdictsTotal          *prometheus.CounterVec
	PolicyFailuresTotal    *prometheus.CounterVec
	DecryptFailuresTotal   *prometheus.CounterVec
	IntegrityFailuresTotal *prometheus.CounterVec
	KeyRotationsTotal      prometheus.Counter
}

// NewRegistry creates a registry with all metrics registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	f := promauto.With(r.registry)

	r.ProbePositiveTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termguard_probe_positive_total",
			Help: "Total number of positive threat detections by category",
		},
		[]string{"category"},
	)
	r.VerdictsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termguard_verdicts_total",
			Help: "Total number of security policy verdicts by result",
		},
		[]string{"result"},
	)
	r.PolicyFailuresTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termguard_policy_failures_total",
			Help: "Total number of critical policy failures by kind",
		},
		[]string{"kind"},
	)
	r.DecryptFailuresTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termguard_decrypt_failures_total",
			Help: "Total number of failed decryptions by reason",
		},
		[]string{"reason"},
	)
	r.IntegrityFailuresTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termguard_integrity_failures_total",
			Help: "Total number of attestation requests without a token, by category",
		},
		[]string{"category"},
	)
	r.KeyRotationsTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "termguard_key_rotations_total",
			Help: "Total number of encryption key rotations",
		},
	)
	return r
}

// Gatherer exposes the underlying registry for exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// RecordProbePositive counts a positive detection in category.
func (r *Registry) RecordProbePositive(category string) {
	if r == nil {
		return
	}
	r.ProbePositiveTotal.WithLabelValues(category).Inc()
}

// RecordVerdict counts a policy verdict and each of its failure kinds.
func (r *Registry) RecordVerdict(secure bool, failureKinds []string) {
	if r == nil {
		return
	}
	result := "blocked"
	if secure {
		result = "secure"
	}
	r.VerdictsTotal.WithLabelValues(result).Inc()
	for _, k := range failureKinds {
		r.PolicyFailuresTotal.WithLabelValues(k).Inc()
	}
}

// RecordDecryptFailure counts a decryption failure.
func (r *Registry) RecordDecryptFailure(reason string) {
	if r == nil {
		return
	}
	r.DecryptFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordIntegrityFailure counts an attestation failure.
func (r *Registry) RecordIntegrityFailure(category string) {
	if r == nil {
		return
	}
	r.IntegrityFailuresTotal.WithLabelValues(category).Inc()
}

// RecordKeyRotation counts a key rotation.
func (r *Registry) RecordKeyRotation() {
	if r == nil {
		return
	}
	r.KeyRotationsTotal.Inc()
}

// WriteTextfile writes the current metric values to path in the node
// exporter textfile collector format.
func (r *Registry) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
