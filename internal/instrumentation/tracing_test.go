package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func TestStartGoogleAPISpan(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := StartGoogleAPISpan(context.Background(), ServiceCalendar, OperationList)
	if GetTraceID(ctx) == "" || GetSpanID(ctx) == "" {
		t.Error("expected span context in ctx")
	}
	SetSpanError(span, errors.New("502"))
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("got %d spans", len(ended))
	}
	s := ended[0]
	if s.Name() != "google.calendar.list" {
		t.Errorf("name = %q", s.Name())
	}
	if s.SpanKind() != trace.SpanKindClient {
		t.Errorf("kind = %v", s.SpanKind())
	}
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v", s.Status())
	}
}

func TestStartToolSpan(t *testing.T) {
	rec := withRecorder(t)

	_, span := StartToolSpan(context.Background(), "calendar_read_events")
	SetSpanSuccess(span)
	span.End()

	s := rec.Ended()[0]
	if s.Name() != "tool.calendar_read_events" || s.SpanKind() != trace.SpanKindServer {
		t.Errorf("span = %s/%v", s.Name(), s.SpanKind())
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v", s.Status())
	}
}

func TestStartSpan_NilErrorIgnored(t *testing.T) {
	rec := withRecorder(t)

	_, span := StartSpan(context.Background(), "linking.link_phone")
	SetSpanError(span, nil)
	span.End()

	if code := rec.Ended()[0].Status().Code; code != codes.Unset {
		t.Errorf("status = %v, want unset", code)
	}
}

func TestTraceIDs_NoSpan(t *testing.T) {
	if GetTraceID(context.Background()) != "" || GetSpanID(context.Background()) != "" {
		t.Error("expected empty ids without a span")
	}
}
