package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johnhce/patient-app/fhirapi"
	"github.com/johnhce/patient-app/healthcheck"
	"github.com/johnhce/patient-app/lib/otel"
	"github.com/johnhce/patient-app/lib/storage"
	"github.com/johnhce/patient-app/smartonfhir"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

// Start wires the services and serves HTTP until the context is cancelled or the process is interrupted.
func Start(ctx context.Context, config Config) error {
	zerolog.SetGlobalLevel(config.LogLevel)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set up dependencies
	store, err := storage.New(config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	smartConfig := config.SMART
	authHTTPClient := otel.NewTracedHTTPClient("smart-on-fhir")
	if smartConfig.Discovery {
		discovered, err := smartonfhir.DiscoverConfiguration(ctx, authHTTPClient, smartConfig.FHIRBaseURL, smartConfig.ClientID)
		if err != nil {
			return fmt.Errorf("failed to discover SMART configuration: %w", err)
		}
		smartConfig = smartConfig.WithDiscoveredEndpoints(discovered)
		log.Info().Msgf("Using discovered SMART endpoints (authorize=%s, token=%s)", smartConfig.AuthorizationURL, smartConfig.TokenURL)
	}
	fhirBaseURL, err := url.Parse(smartConfig.FHIRBaseURL)
	if err != nil {
		return fmt.Errorf("invalid FHIR base URL: %w", err)
	}
	client := smartonfhir.NewClient(smartConfig, store, config.StorageKeys(), authHTTPClient)

	// Register services
	services := []Service{
		smartonfhir.NewService(client, config.StrictMode),
		fhirapi.NewService(client, fhirBaseURL, otel.NewTracedHTTPClient("fhir-api")),
		healthcheck.New(func(ctx context.Context) bool {
			token, err := client.LoadToken(ctx)
			return err == nil && token.Usable()
		}),
	}
	httpHandler := http.NewServeMux()
	for _, service := range services {
		service.RegisterHandlers(httpHandler)
	}

	// Start HTTP server
	listener, err := net.Listen("tcp", config.Public.Address)
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	httpServer := &http.Server{
		Handler:           otel.HandlerWithTracing(httpHandler, "patient-app"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Serve(listener)
	}()
	log.Info().Msgf("Listening on %s, open %s/launch to sign in", listener.Addr(), smartConfig.RedirectURL)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

type Service interface {
	RegisterHandlers(mux *http.ServeMux)
}
