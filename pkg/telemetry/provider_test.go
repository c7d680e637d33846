package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := Setup(context.Background(), "eventcore-test", "dev", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("no-op setup must not replace the global provider")
	}
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), "eventcore-test", "dev", Options{Endpoint: "http://localhost:4318", Disabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetupCreatesProviderWhenEndpointSet(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	// Non-routable address so nothing is exported.
	shutdown, err := Setup(context.Background(), "eventcore-test", "dev", Options{Endpoint: "http://192.0.2.1:4318", SampleRatio: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if otel.GetTracerProvider() == prev {
		t.Fatalf("expected a global provider to be installed")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}
