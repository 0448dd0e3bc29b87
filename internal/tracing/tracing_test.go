package tracing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"disabled ignores other fields", Config{SampleRate: 7}, nil},
		{"valid http", Config{Enabled: true, ServiceName: "feedrank", SampleRate: 0.5}, nil},
		{"valid grpc", Config{Enabled: true, ServiceName: "feedrank", Exporter: ExporterOTLPGRPC, SampleRate: 1}, nil},
		{"missing service name", Config{Enabled: true, SampleRate: 0.1}, ErrMissingServiceName},
		{"negative sample rate", Config{Enabled: true, ServiceName: "feedrank", SampleRate: -0.1}, ErrInvalidSampleRate},
		{"sample rate above one", Config{Enabled: true, ServiceName: "feedrank", SampleRate: 1.5}, ErrInvalidSampleRate},
		{"unknown exporter", Config{Enabled: true, ServiceName: "feedrank", Exporter: "zipkin"}, ErrUnsupportedExporter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(Config{ServiceName: "feedrank"})
	if err != nil {
		t.Fatalf("expected no error for disabled tracing, got %v", err)
	}
	if provider.Enabled() {
		t.Error("expected tracing to be disabled")
	}
	if provider.Tracer("test") == nil {
		t.Error("expected noop tracer from disabled provider")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	if _, err := NewProvider(Config{Enabled: true, SampleRate: 0.1}); err == nil {
		t.Fatal("expected error for missing service name")
	}
}

func TestNewProvider_Enabled(t *testing.T) {
	tests := []struct {
		name     string
		exporter string
		rate     float64
		endpoint string
	}{
		{"otlp-http with 10% sampling", ExporterOTLPHTTP, 0.1, "localhost:4318"},
		{"otlp-grpc with full sampling", ExporterOTLPGRPC, 1.0, "localhost:4317"},
		{"default exporter with no sampling", "", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(Config{
				ServiceName: "feedrank-test",
				Enabled:     true,
				Environment: "test",
				Exporter:    tt.exporter,
				Endpoint:    tt.endpoint,
				SampleRate:  tt.rate,
				Insecure:    true,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !provider.Enabled() {
				t.Error("expected tracing to be enabled")
			}

			_, span := provider.Tracer("test").Start(context.Background(), "test-span")
			span.End()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(ctx); err != nil {
				t.Errorf("unexpected shutdown error: %v", err)
			}
		})
	}
}
