package observability

import (
	"context"
	"testing"
	"time"
)

func TestNewTracerProvider(t *testing.T) {
	tp := NewTracerProvider()
	if tp == nil {
		t.Fatal("expected TracerProvider, got nil")
	}
	if !tp.enabled {
		t.Fatal("expected enabled=true")
	}
}

func TestStartSpan(t *testing.T) {
	tp := NewTracerProvider()
	ctx := context.Background()

	newCtx, span := tp.StartSpan(ctx, "test.operation")

	if newCtx == ctx {
		t.Error("expected new context")
	}
	if span == nil {
		t.Fatal("expected span, got nil")
	}

	if localSpan, ok := span.(*LocalSpan); ok {
		if localSpan.name != "test.operation" {
			t.Errorf("expected span name 'test.operation', got %s", localSpan.name)
		}
	} else {
		t.Error("expected *LocalSpan")
	}
}

func TestStartSpanDisabled(t *testing.T) {
	tp := &TracerProvider{enabled: false}
	ctx := context.Background()

	newCtx, span := tp.StartSpan(ctx, "test.operation")

	if newCtx != ctx {
		t.Error("expected same context when disabled")
	}
	if span == nil {
		t.Fatal("expected span even when disabled")
	}
}

func TestLocalSpanSetAttribute(t *testing.T) {
	span := &LocalSpan{name: "test", startTime: time.Now()}

	span.SetAttribute("key1", "value1")
	span.SetAttribute("key2", 42)
	span.SetAttribute("key3", true)

	if len(span.attributes) != 3 {
		t.Errorf("expected 3 attributes, got %d", len(span.attributes))
	}
	if span.attributes["key1"] != "value1" {
		t.Error("expected key1=value1")
	}
}

func TestLocalSpanAddEvent(t *testing.T) {
	span := &LocalSpan{name: "test", startTime: time.Now()}

	span.AddEvent("event1")
	span.AddEvent("event2")

	if len(span.events) != 2 {
		t.Errorf("expected 2 events, got %d", len(span.events))
	}
	if span.events[0] != "event1" || span.events[1] != "event2" {
		t.Error("events not recorded correctly")
	}
}

func TestLocalSpanRecordError(t *testing.T) {
	span := &LocalSpan{name: "test", startTime: time.Now()}

	testErr := context.DeadlineExceeded
	span.RecordError(testErr)

	if span.err != testErr {
		t.Error("error not recorded")
	}
}

func TestStartAppendSpan(t *testing.T) {
	tp := NewTracerProvider()

	_, span := tp.StartAppendSpan(context.Background(), "agg-123")
	if span == nil {
		t.Fatal("expected span")
	}

	localSpan := span.(*LocalSpan)
	if localSpan.name != "eventstore.append" {
		t.Errorf("expected span name 'eventstore.append', got %s", localSpan.name)
	}
	if localSpan.attributes["aggregate.id"] != "agg-123" {
		t.Error("expected aggregate.id=agg-123")
	}
}

func TestStartReplaySpan(t *testing.T) {
	tp := NewTracerProvider()

	_, span := tp.StartReplaySpan(context.Background(), "agg-456", 10)
	if span == nil {
		t.Fatal("expected span")
	}

	localSpan := span.(*LocalSpan)
	if localSpan.name != "eventstore.replay" {
		t.Errorf("expected span name 'eventstore.replay', got %s", localSpan.name)
	}
	if localSpan.attributes["aggregate.id"] != "agg-456" {
		t.Error("expected aggregate.id=agg-456")
	}
	if localSpan.attributes["position"] != uint64(10) {
		t.Error("expected position=10")
	}
}

func TestStartProjectionSpan(t *testing.T) {
	tp := NewTracerProvider()

	_, span := tp.StartProjectionSpan(context.Background(), "graphview")
	if span == nil {
		t.Fatal("expected span")
	}

	localSpan := span.(*LocalSpan)
	if localSpan.name != "projection.graphview" {
		t.Errorf("expected span name 'projection.graphview', got %s", localSpan.name)
	}
	if localSpan.attributes["projection"] != "graphview" {
		t.Error("expected projection=graphview")
	}
}

func TestStartStorageSpan(t *testing.T) {
	tp := NewTracerProvider()

	_, span := tp.StartStorageSpan(context.Background(), "put")
	if span == nil {
		t.Fatal("expected span")
	}

	localSpan := span.(*LocalSpan)
	if localSpan.name != "storage.put" {
		t.Errorf("expected span name 'storage.put', got %s", localSpan.name)
	}
	if localSpan.attributes["storage.operation"] != "put" {
		t.Error("expected storage.operation=put")
	}
}

func TestRecordErrorNilSpan(t *testing.T) {
	// Should not panic
	RecordError(nil, context.Canceled)
}

func TestEndSpanWithError(t *testing.T) {
	span := &LocalSpan{name: "test", startTime: time.Now()}
	testErr := context.DeadlineExceeded

	EndSpan(span, testErr)

	if span.err != testErr {
		t.Error("error not recorded before end")
	}
}

func TestEndSpanNil(t *testing.T) {
	// Should not panic
	EndSpan(nil, nil)
}

func TestInitGlobalTracer(t *testing.T) {
	globalTracerProvider = nil

	tp := InitGlobalTracer()
	if tp == nil {
		t.Fatal("expected TracerProvider")
	}

	tp2 := InitGlobalTracer()
	if tp != tp2 {
		t.Error("expected same instance on second call")
	}

	globalTracerProvider = nil
}

func TestSetGlobalTracer(t *testing.T) {
	tp := NewTracerProvider()
	SetGlobalTracer(tp)

	if GetGlobalTracer() != tp {
		t.Error("expected same tracer instance")
	}

	globalTracerProvider = nil
}

func TestSpanFromContext(t *testing.T) {
	tp := NewTracerProvider()

	newCtx, span := tp.StartSpan(context.Background(), "test")

	retrieved, ok := SpanFromContext(newCtx)
	if !ok {
		t.Fatal("expected to retrieve span from context")
	}
	if retrieved != span {
		t.Error("expected same span instance")
	}
}

func TestSpanFromContextNotFound(t *testing.T) {
	span, ok := SpanFromContext(context.Background())
	if ok {
		t.Error("expected no span in empty context")
	}
	if span != nil {
		t.Error("expected nil span")
	}
}

func TestTracingAppendWorkflow(t *testing.T) {
	tp := NewTracerProvider()
	ctx := context.Background()

	ctx, appendSpan := tp.StartAppendSpan(ctx, "agg-789")
	appendSpan.SetAttribute("events", 3)
	appendSpan.AddEvent("append.started")

	_, storageSpan := tp.StartStorageSpan(ctx, "put")
	storageSpan.AddEvent("payload.stored")
	EndSpan(storageSpan, nil)

	appendSpan.AddEvent("append.committed")
	EndSpan(appendSpan, nil)
}

func TestTracingErrorHandling(t *testing.T) {
	tp := NewTracerProvider()

	_, span := tp.StartSpan(context.Background(), "failing.operation")

	testErr := context.DeadlineExceeded
	span.RecordError(testErr)
	span.AddEvent("operation.failed")

	EndSpan(span, testErr)

	localSpan := span.(*LocalSpan)
	if localSpan.err != testErr {
		t.Error("error should be recorded in span")
	}
}

func TestGlobalTracerThreadSafety(t *testing.T) {
	globalTracerProvider = nil

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			if GetGlobalTracer() == nil {
				t.Error("unexpected nil tracer")
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	globalTracerProvider = nil
}
