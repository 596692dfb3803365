package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithAggregateID(t *testing.T) {
	ctx := context.Background()
	ctx = WithAggregateID(ctx, "9f2c1a9e-1111-4222-8333-444455556666")

	lc := GetContext(ctx)
	if lc.AggregateID != "9f2c1a9e-1111-4222-8333-444455556666" {
		t.Errorf("unexpected aggregate id %s", lc.AggregateID)
	}
}

func TestWithCorrelationID(t *testing.T) {
	ctx := context.Background()
	ctx = WithCorrelationID(ctx, "corr-456")

	lc := GetContext(ctx)
	if lc.CorrelationID != "corr-456" {
		t.Errorf("expected corr-456, got %s", lc.CorrelationID)
	}
}

func TestWithStreamAndSubject(t *testing.T) {
	ctx := context.Background()
	ctx = WithStream(ctx, "CHRONICLE-EVENTS")
	ctx = WithSubject(ctx, "events.abc")

	lc := GetContext(ctx)
	if lc.Stream != "CHRONICLE-EVENTS" {
		t.Errorf("expected CHRONICLE-EVENTS, got %s", lc.Stream)
	}
	if lc.Subject != "events.abc" {
		t.Errorf("expected events.abc, got %s", lc.Subject)
	}
}

func TestWithProjection(t *testing.T) {
	ctx := context.Background()
	ctx = WithProjection(ctx, "graphview")

	lc := GetContext(ctx)
	if lc.Projection != "graphview" {
		t.Errorf("expected graphview, got %s", lc.Projection)
	}
}

func TestMultipleContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithAggregateID(ctx, "agg-1")
	ctx = WithCorrelationID(ctx, "corr-1")
	ctx = WithStream(ctx, "stream-1")
	ctx = WithProjection(ctx, "proj-1")

	lc := GetContext(ctx)

	if lc.AggregateID != "agg-1" {
		t.Error("expected agg-1")
	}
	if lc.CorrelationID != "corr-1" {
		t.Error("expected corr-1")
	}
	if lc.Stream != "stream-1" {
		t.Error("expected stream-1")
	}
	if lc.Projection != "proj-1" {
		t.Error("expected proj-1")
	}
}

func TestOverwriteContextValue(t *testing.T) {
	ctx := context.Background()
	ctx = WithAggregateID(ctx, "agg-1")
	ctx = WithAggregateID(ctx, "agg-2")

	lc := GetContext(ctx)
	if lc.AggregateID != "agg-2" {
		t.Errorf("expected agg-2, got %s", lc.AggregateID)
	}
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()
	lc := GetContext(ctx)

	if lc.AggregateID != "" || lc.CorrelationID != "" || lc.Stream != "" {
		t.Error("expected empty context")
	}
}

func TestInfoContext(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	slog.SetDefault(slog.New(handler))

	ctx := context.Background()
	ctx = WithAggregateID(ctx, "agg-1")
	ctx = WithCorrelationID(ctx, "corr-1")

	InfoContext(ctx, "events appended", slog.Int("count", 3))

	output := buf.String()
	if !strings.Contains(output, "agg-1") {
		t.Error("expected agg-1 in log output")
	}
	if !strings.Contains(output, "corr-1") {
		t.Error("expected corr-1 in log output")
	}
	if !strings.Contains(output, "events appended") {
		t.Error("expected message in log output")
	}
}

func TestWarnContext(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	slog.SetDefault(slog.New(handler))

	ctx := context.Background()
	ctx = WithStream(ctx, "CHRONICLE-EVENTS")

	WarnContext(ctx, "slow subscriber", slog.String("reason", "buffer full"))

	output := buf.String()
	if !strings.Contains(output, "CHRONICLE-EVENTS") {
		t.Error("expected stream in log output")
	}
	if !strings.Contains(output, "slow subscriber") {
		t.Error("expected message in log output")
	}
}

func TestErrorContext(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	slog.SetDefault(slog.New(handler))

	ctx := context.Background()
	ctx = WithAggregateID(ctx, "agg-err")
	ctx = WithSubject(ctx, "events.agg-err")

	ErrorContext(ctx, "append failed", slog.String("error", "conflict"))

	output := buf.String()
	if !strings.Contains(output, "agg-err") {
		t.Error("expected agg-err in log output")
	}
	if !strings.Contains(output, "events.agg-err") {
		t.Error("expected subject in log output")
	}
}

func TestDebugContext(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))

	ctx := context.Background()
	ctx = WithProjection(ctx, "graphview")

	DebugContext(ctx, "event applied", slog.Int("sequence", 42))

	output := buf.String()
	if !strings.Contains(output, "graphview") {
		t.Error("expected projection in log output")
	}
}

func TestLogBuilder(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	slog.SetDefault(slog.New(handler))

	ctx := context.Background()
	ctx = WithAggregateID(ctx, "agg-1")

	lb := NewLogBuilder(ctx)
	lb.With("operation", "replay").With("events", 150).Info("replay completed")

	output := buf.String()
	if !strings.Contains(output, "agg-1") {
		t.Error("expected agg-1 in log output")
	}
	if !strings.Contains(output, "replay") {
		t.Error("expected operation in log output")
	}
	if !strings.Contains(output, "150") {
		t.Error("expected count in log output")
	}
}

func TestLogBuilderWithVariousTypes(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	slog.SetDefault(slog.New(handler))

	lb := NewLogBuilder(context.Background()).
		With("string_val", "test").
		With("int_val", 42).
		With("uint64_val", uint64(7)).
		With("float_val", 3.14).
		With("bool_val", true)

	lb.Info("type test")

	output := buf.String()
	if !strings.Contains(output, "test") {
		t.Error("expected string value in log output")
	}
}

func TestContextIsolation(t *testing.T) {
	ctx1 := WithAggregateID(context.Background(), "agg-1")
	ctx2 := WithAggregateID(context.Background(), "agg-2")

	if GetContext(ctx1).AggregateID != "agg-1" {
		t.Error("context1 modified")
	}
	if GetContext(ctx2).AggregateID != "agg-2" {
		t.Error("context2 modified")
	}
}

func TestGetLogAttrsSkipsEmptyFields(t *testing.T) {
	ctx := context.Background()
	ctx = WithAggregateID(ctx, "agg-1")
	ctx = WithCorrelationID(ctx, "corr-1")

	attrs := getLogAttrs(ctx)

	if len(attrs) != 2 {
		t.Errorf("expected 2 attributes, got %d", len(attrs))
	}

	keys := ""
	for _, attr := range attrs {
		keys += attr.Key + ","
	}
	if !strings.Contains(keys, "aggregate.id") {
		t.Error("expected aggregate.id attribute")
	}
	if !strings.Contains(keys, "correlation.id") {
		t.Error("expected correlation.id attribute")
	}
	if strings.Contains(keys, "projection") {
		t.Error("unexpected projection attribute when not set")
	}
}
