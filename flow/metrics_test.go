package flow

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistersAndRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.handlerStarted()
	m.handlerFinished("story_writer", "ok", 42*time.Millisecond)
	m.snapshotCommitted()
	m.retryAttempted("generate_single_image")
	m.threadSuspended()
	m.threadResumed()
	m.threadFinished(StatusCompleted)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	want := map[string]bool{
		"storyflow_inflight_handlers": false,
		"storyflow_node_latency_ms":   false,
		"storyflow_snapshots_total":   false,
		"storyflow_retries_total":     false,
		"storyflow_suspended_threads": false,
		"storyflow_threads_total":     false,
	}
	for _, fam := range families {
		if _, ok := want[fam.GetName()]; ok {
			want[fam.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.handlerStarted()
	m.handlerFinished("a", "ok", time.Millisecond)
	m.snapshotCommitted()
	m.retryAttempted("a")
	m.threadSuspended()
	m.threadResumed()
	m.threadFinished(StatusFailed)
}

func TestMetricsIsolatedRegistries(t *testing.T) {
	// Two engines with separate registries must not collide on
	// duplicate registration.
	first := NewMetrics(prometheus.NewRegistry())
	second := NewMetrics(prometheus.NewRegistry())
	first.snapshotCommitted()
	second.snapshotCommitted()
}
