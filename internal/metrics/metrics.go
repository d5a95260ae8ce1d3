package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives cache and object-store observations.
type Recorder interface {
	RecordRemoteOp(op string, success bool, d time.Duration)
	RecordCacheLookup(cache string, hit bool)
	RecordRedirect()
}

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	remoteOpTotal    *prometheus.CounterVec
	remoteOpDuration *prometheus.HistogramVec
	cacheLookupTotal *prometheus.CounterVec
	redirectTotal    prometheus.Counter
}

// NewPrometheusRecorder creates the collectors and registers them with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		remoteOpTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkgcache_remote_operation_total",
				Help: "Total number of object store operations",
			},
			[]string{"operation", "success"},
		),
		remoteOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pkgcache_remote_operation_duration_seconds",
				Help:    "Duration of object store operations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		cacheLookupTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkgcache_cache_lookup_total",
				Help: "Metadata and object info cache lookups by outcome",
			},
			[]string{"cache", "result"},
		),
		redirectTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pkgcache_download_redirect_total",
				Help: "Downloads answered with a signed object store URL",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(r.remoteOpTotal, r.remoteOpDuration, r.cacheLookupTotal, r.redirectTotal)
	}
	return r
}

func (r *PrometheusRecorder) RecordRemoteOp(op string, success bool, d time.Duration) {
	r.remoteOpTotal.WithLabelValues(op, strconv.FormatBool(success)).Inc()
	r.remoteOpDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (r *PrometheusRecorder) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookupTotal.WithLabelValues(cache, result).Inc()
}

func (r *PrometheusRecorder) RecordRedirect() {
	r.redirectTotal.Inc()
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordRemoteOp(string, bool, time.Duration) {}
func (Nop) RecordCacheLookup(string, bool)             {}
func (Nop) RecordRedirect()                            {}

var (
	_ Recorder = (*PrometheusRecorder)(nil)
	_ Recorder = Nop{}
)
