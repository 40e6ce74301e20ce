package main

import (
	"context"

	"github.com/johnhce/patient-app/cmd"
	"github.com/johnhce/patient-app/lib/otel"
	"github.com/rs/zerolog/log"
)

func main() {
	config, err := cmd.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := config.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	ctx := context.Background()
	tracerProvider, err := otel.Initialize(ctx, config.OpenTelemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize OpenTelemetry")
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to shut down OpenTelemetry")
		}
	}()
	log.Info().Msgf("Public interface listens on %s", config.Public.Address)
	log.Info().Msgf("Using FHIR API on %s (client ID %s)", config.SMART.FHIRBaseURL, config.SMART.ClientID)
	if err := cmd.Start(ctx, *config); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
	log.Info().Msg("Goodbye!")
}
