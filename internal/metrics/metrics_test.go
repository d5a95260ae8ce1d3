package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	r := NewPrometheusRecorder(registry)

	r.RecordRemoteOp("info", true, 20*time.Millisecond)
	r.RecordRemoteOp("info", false, 5*time.Millisecond)
	r.RecordRemoteOp("fetch", true, time.Second)
	r.RecordCacheLookup("metadata", true)
	r.RecordCacheLookup("metadata", false)
	r.RecordCacheLookup("metadata", false)
	r.RecordRedirect()

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"info success", testutil.ToFloat64(r.remoteOpTotal.WithLabelValues("info", "true")), 1},
		{"info failure", testutil.ToFloat64(r.remoteOpTotal.WithLabelValues("info", "false")), 1},
		{"metadata hit", testutil.ToFloat64(r.cacheLookupTotal.WithLabelValues("metadata", "hit")), 1},
		{"metadata miss", testutil.ToFloat64(r.cacheLookupTotal.WithLabelValues("metadata", "miss")), 2},
		{"redirects", testutil.ToFloat64(r.redirectTotal), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(r.remoteOpDuration); n != 2 {
		t.Fatalf("expected 2 latency series, got %d", n)
	}
}
