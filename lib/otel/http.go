package otel

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const httpClientTimeout = 30 * time.Second

// NewTracedHTTPClient returns an HTTP client that creates a client span for every outbound request.
// The name identifies the calling component in the span name.
func NewTracedHTTPClient(name string) *http.Client {
	return &http.Client{
		Timeout: httpClientTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return name + " " + r.Method + " " + r.URL.Host
			}),
		),
	}
}

// HandlerWithTracing wraps an inbound handler so a server span is started for every request.
func HandlerWithTracing(handler http.Handler, operation string) http.Handler {
	return otelhttp.NewHandler(handler, operation)
}
