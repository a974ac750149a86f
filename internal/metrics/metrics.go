// Package metrics provides Prometheus instrumentation for the signing
// pipeline and the upload transport.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for uploads.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics holds the collectors for one process.
type Metrics struct {
	// SignaturesTotal counts computed request signatures.
	SignaturesTotal prometheus.Counter

	// KeyCacheHitsTotal counts signing-key cache hits.
	KeyCacheHitsTotal prometheus.Counter

	// KeyCacheMissesTotal counts signing-key cache misses (fresh derivations).
	KeyCacheMissesTotal prometheus.Counter

	// UploadsTotal counts finished uploads by outcome.
	UploadsTotal *prometheus.CounterVec

	// UploadBytesTotal counts payload bytes successfully uploaded.
	UploadBytesTotal prometheus.Counter

	// UploadDuration observes end-to-end upload latency in seconds.
	UploadDuration prometheus.Histogram
}

// New creates and registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SignaturesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ptolemy",
			Subsystem: "sigv4",
			Name:      "signatures_total",
			Help:      "Number of request signatures computed.",
		}),
		KeyCacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ptolemy",
			Subsystem: "sigv4",
			Name:      "key_cache_hits_total",
			Help:      "Number of signing-key cache hits.",
		}),
		KeyCacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ptolemy",
			Subsystem: "sigv4",
			Name:      "key_cache_misses_total",
			Help:      "Number of signing-key derivations due to cache misses.",
		}),
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ptolemy",
			Subsystem: "upload",
			Name:      "uploads_total",
			Help:      "Number of finished uploads by outcome.",
		}, []string{"outcome"}),
		UploadBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ptolemy",
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Payload bytes successfully uploaded.",
		}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ptolemy",
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "End-to-end upload duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}

// SignatureComputed implements sigv4.Observer.
func (m *Metrics) SignatureComputed() {
	m.SignaturesTotal.Inc()
}

// KeyCacheHit implements sigv4.Observer.
func (m *Metrics) KeyCacheHit() {
	m.KeyCacheHitsTotal.Inc()
}

// KeyCacheMiss implements sigv4.Observer.
func (m *Metrics) KeyCacheMiss() {
	m.KeyCacheMissesTotal.Inc()
}
