package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"go.opentelemetry.io/otel"
)

func TestSetup(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	t.Run("Disabled", func(t *testing.T) {
		shutdown, err := Setup(domain.TracingConfig{}, &bytes.Buffer{})
		if err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown failed: %v", err)
		}
	})

	t.Run("ExportsSpans", func(t *testing.T) {
		var buf bytes.Buffer
		shutdown, err := Setup(domain.TracingConfig{Enabled: true, ServiceName: "kestrel-test"}, &buf)
		if err != nil {
			t.Fatalf("Setup failed: %v", err)
		}

		_, span := otel.Tracer("telemetry-test").Start(context.Background(), "decision.FraudCheck")
		if !span.SpanContext().TraceID().IsValid() {
			t.Error("expected a valid trace ID once tracing is enabled")
		}
		span.End()

		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown failed: %v", err)
		}

		out := buf.String()
		if !strings.Contains(out, "decision.FraudCheck") {
			t.Errorf("expected exported span, got %q", out)
		}
		if !strings.Contains(out, "kestrel-test") {
			t.Error("expected service name in exported resource")
		}
	})
}
