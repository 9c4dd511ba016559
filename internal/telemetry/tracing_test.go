package telemetry

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

func TestInitTracer_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "gastank-test", "")
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestKafkaHeaders_RoundTrip(t *testing.T) {
	if _, err := InitTracer(context.Background(), "gastank-test", ""); err != nil {
		t.Fatal(err)
	}
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var headers []kafka.Header
	InjectKafkaHeaders(ctx, &headers)
	if len(headers) == 0 {
		t.Fatal("expected traceparent header")
	}

	got := trace.SpanContextFromContext(ExtractKafkaHeaders(context.Background(), headers))
	if got.TraceID() != traceID {
		t.Errorf("TraceID: got %s want %s", got.TraceID(), traceID)
	}
}
