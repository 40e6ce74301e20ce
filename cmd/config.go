package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/johnhce/patient-app/epic"
	"github.com/johnhce/patient-app/lib/otel"
	"github.com/johnhce/patient-app/lib/storage"
	"github.com/johnhce/patient-app/smartonfhir"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

const envPrefix = "PATIENTAPP_"

type Config struct {
	// Public holds the configuration for the interface the browser is redirected to.
	Public InterfaceConfig `koanf:"public"`
	// SMART holds the SMART on FHIR client registration and endpoints.
	SMART smartonfhir.Config `koanf:"smart"`
	// Storage holds the configuration of the code verifier and token response slots.
	Storage    storage.Config `koanf:"storage"`
	LogLevel   zerolog.Level  `koanf:"loglevel"`
	StrictMode bool           `koanf:"strictmode"`
	// OpenTelemetry holds the configuration for observability
	OpenTelemetry otel.Config `koanf:"opentelemetry"`
}

func (c Config) Validate() error {
	if err := c.SMART.Validate(); err != nil {
		return fmt.Errorf("invalid SMART on FHIR configuration: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage configuration: %w", err)
	}
	if err := c.OpenTelemetry.Validate(); err != nil {
		return fmt.Errorf("invalid OpenTelemetry configuration: %w", err)
	}
	if c.Public.Address == "" {
		return errors.New("public address is not configured")
	}
	return nil
}

// StorageKeys returns the storage slots for the authorization flow.
func (c Config) StorageKeys() smartonfhir.StorageKeys {
	return smartonfhir.StorageKeys{
		CodeVerifier:  c.Storage.CodeVerifierKey,
		TokenResponse: c.Storage.TokenResponseKey,
	}
}

// InterfaceConfig holds the configuration for an HTTP interface.
type InterfaceConfig struct {
	// Address holds the address to listen on.
	Address string `koanf:"address"`
}

// LoadConfig loads the configuration from the environment.
func LoadConfig() (*Config, error) {
	result := DefaultConfig()
	err := loadConfigInto(&result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func loadConfigInto(target any) error {
	k := koanf.New(".")
	err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key string, value string) (string, interface{}) {
		key = strings.Replace(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "_", ".", -1)
		if len(value) == 0 {
			return key, nil
		}
		sliceValues := splitWithEscaping(value, ",", "\\")
		for i, s := range sliceValues {
			sliceValues[i] = strings.TrimSpace(s)
		}
		var parsedValue any = sliceValues
		if len(sliceValues) == 1 {
			parsedValue = sliceValues[0]
		}
		return key, parsedValue
	}), nil)
	if err != nil {
		return err
	}
	return k.Unmarshal("", target)
}

func splitWithEscaping(s, separator, escape string) []string {
	s = strings.ReplaceAll(s, escape+separator, "\x00")
	tokens := strings.Split(s, separator)
	for i, token := range tokens {
		tokens[i] = strings.ReplaceAll(token, "\x00", separator)
	}
	return tokens
}

// DefaultConfig returns the configuration for Epic's sandbox, listening on the registered redirect address.
func DefaultConfig() Config {
	return Config{
		LogLevel:   zerolog.InfoLevel,
		StrictMode: true,
		Public: InterfaceConfig{
			Address: redirectAddress(epic.RedirectURL),
		},
		SMART: smartonfhir.DefaultConfig(),
		Storage: storage.Config{
			Type:             storage.TypeMemory,
			CodeVerifierKey:  epic.CodeVerifierStorageKey,
			TokenResponseKey: epic.TokenResponseStorageKey,
		},
		OpenTelemetry: otel.DefaultConfig(),
	}
}

func redirectAddress(redirectURL string) string {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return ""
	}
	return u.Host
}
