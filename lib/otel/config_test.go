package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:   "disabled is always valid",
			config: Config{Enabled: false, Exporter: ExporterConfig{Type: "bogus"}},
		},
		{
			name:   "default config",
			config: DefaultConfig(),
		},
		{
			name:    "missing service name",
			config:  Config{Enabled: true, Exporter: ExporterConfig{Type: ExporterStdout}},
			wantErr: "service name is required when OpenTelemetry is enabled",
		},
		{
			name:    "OTLP without endpoint",
			config:  Config{Enabled: true, ServiceName: "test", Exporter: ExporterConfig{Type: ExporterOTLP}},
			wantErr: "OTLP endpoint is required when using OTLP exporter",
		},
		{
			name:    "unsupported exporter",
			config:  Config{Enabled: true, ServiceName: "test", Exporter: ExporterConfig{Type: "zipkin"}},
			wantErr: "unsupported exporter type: zipkin (supported: otlp, stdout, none)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.EqualError(t, err, tt.wantErr)
			}
		})
	}
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	t.Run("disabled", func(t *testing.T) {
		tp, err := Initialize(ctx, DefaultConfig())
		require.NoError(t, err)
		require.NoError(t, tp.Shutdown(ctx))
	})
	t.Run("none exporter", func(t *testing.T) {
		config := DefaultConfig()
		config.Enabled = true
		config.Exporter.Type = ExporterNone
		tp, err := Initialize(ctx, config)
		require.NoError(t, err)
		assert.NotNil(t, tp.provider)
		require.NoError(t, tp.Shutdown(ctx))
	})
	t.Run("OTLP exporter", func(t *testing.T) {
		config := DefaultConfig()
		config.Enabled = true
		config.Exporter.Type = ExporterOTLP
		config.Exporter.OTLP.Insecure = true
		config.Exporter.OTLP.Headers = map[string]string{"x-api-key": "test"}
		tp, err := Initialize(ctx, config)
		require.NoError(t, err)
		_ = tp.Shutdown(ctx)
	})
}

func TestNewTracedHTTPClient(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(previous)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewTracedHTTPClient("test")
	response, err := client.Get(server.URL)
	require.NoError(t, err)
	_ = response.Body.Close()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Name(), "test GET ")
}
