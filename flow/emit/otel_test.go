package emit

import (
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordingEmitter() (*OTelEmitter, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewOTelEmitter(tp.Tracer("storyflow-test")), recorder
}

func TestOTelEmitterSpanAttributes(t *testing.T) {
	em, recorder := recordingEmitter()

	em.Emit(Event{
		ThreadID: "t1",
		Seq:      4,
		Node:     "story_writer",
		Msg:      "node_end",
		Meta:     map[string]interface{}{"duration_ms": int64(120), "unit": "story_writer"},
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "node_end" {
		t.Fatalf("span name = %q", span.Name())
	}

	attrs := map[string]any{}
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["storyflow.thread_id"] != "t1" {
		t.Fatalf("thread attr = %v", attrs["storyflow.thread_id"])
	}
	if attrs["storyflow.seq"] != int64(4) {
		t.Fatalf("seq attr = %v", attrs["storyflow.seq"])
	}
	if attrs["storyflow.node"] != "story_writer" {
		t.Fatalf("node attr = %v", attrs["storyflow.node"])
	}
	if attrs["storyflow.duration_ms"] != int64(120) {
		t.Fatalf("duration attr = %v", attrs["storyflow.duration_ms"])
	}
}

func TestOTelEmitterErrorStatus(t *testing.T) {
	em, recorder := recordingEmitter()

	em.Emit(Event{
		ThreadID: "t1",
		Node:     "generate_single_image",
		Msg:      "node_end",
		Meta:     map[string]interface{}{"error": "provider timeout"},
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d", len(spans))
	}
	span := spans[0]
	if span.Status().Code != codes.Error || span.Status().Description != "provider timeout" {
		t.Fatalf("status = %+v", span.Status())
	}
	if len(span.Events()) == 0 {
		t.Fatal("error not recorded on the span")
	}
}
