package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	if _, err := Setup(context.Background(), Config{Enabled: false}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestSetup_DisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestTraceContext_RoundTrip(t *testing.T) {
	setupRecorder(t)
	ctx, span := StartSpan(context.Background(), "schedule")
	defer span.End()

	tp, _ := TraceContextStrings(ctx)
	if !strings.HasPrefix(tp, "00-") {
		t.Fatalf("expected W3C traceparent, got %q", tp)
	}

	restored := ContextWithTraceContext(context.Background(), tp, "")
	_, child := StartSpan(restored, "publish")
	defer child.End()
	if child.SpanContext().TraceID() != span.SpanContext().TraceID() {
		t.Error("restored context should continue the same trace")
	}
}

func TestContextWithTraceContext_Empty(t *testing.T) {
	ctx := context.Background()
	if got := ContextWithTraceContext(ctx, "", ""); got != ctx {
		t.Error("empty trace context should return ctx unchanged")
	}
}

func TestInjectKafkaHeaders(t *testing.T) {
	setupRecorder(t)
	ctx, span := StartSpan(context.Background(), "relay")
	defer span.End()

	headers := InjectKafkaHeaders(ctx, []kafka.Header{{Key: "event_id", Value: []byte("e1")}})
	if HeaderValue(headers, "event_id") != "e1" {
		t.Error("existing headers must be kept")
	}
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatal("expected traceparent header")
	}

	extracted := ExtractKafkaHeaders(context.Background(), kafka.Message{Headers: headers})
	_, child := StartSpan(extracted, "consume")
	defer child.End()
	if child.SpanContext().TraceID() != span.SpanContext().TraceID() {
		t.Error("extracted context should continue the same trace")
	}
}

func TestRecordError(t *testing.T) {
	rec := setupRecorder(t)
	_, span := StartSpan(context.Background(), "failing")
	want := errors.New("boom")
	if got := RecordError(span, want); got != want {
		t.Errorf("expected same error back, got %v", got)
	}
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 || len(ended[0].Events()) == 0 {
		t.Fatalf("expected one ended span with an error event, got %v", ended)
	}
}
