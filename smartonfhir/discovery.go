package smartonfhir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/zitadel/oidc/v3/pkg/oidc"
)

const smartConfigurationPath = ".well-known/smart-configuration"

// DiscoverConfiguration fetches the SMART App Launch configuration published by the FHIR server.
// See https://hl7.org/fhir/smart-app-launch/conformance.html
func DiscoverConfiguration(ctx context.Context, httpClient *http.Client, fhirBaseURL string, clientID string) (*oidc.DiscoveryConfiguration, error) {
	baseURL, err := url.Parse(fhirBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid FHIR base URL: %w", err)
	}
	configURL := baseURL.JoinPath(smartConfigurationPath)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, configURL.String(), nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")
	// Epic uses this header to select the client's FHIR version and endpoints
	request.Header.Set("Epic-Client-ID", clientID)

	response, err := httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch SMART configuration (url=%s): %w", configURL, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unable to fetch SMART configuration (url=%s, status=%d)", configURL, response.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(response.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("unable to read SMART configuration (url=%s): %w", configURL, err)
	}
	var result oidc.DiscoveryConfiguration
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("invalid SMART configuration (url=%s): %w", configURL, err)
	}
	if result.AuthorizationEndpoint == "" {
		return nil, errors.New("authorization endpoint not found in SMART configuration")
	}
	if result.TokenEndpoint == "" {
		return nil, errors.New("token endpoint not found in SMART configuration")
	}
	if len(result.CodeChallengeMethodsSupported) > 0 && !slices.Contains(result.CodeChallengeMethodsSupported, oidc.CodeChallengeMethodS256) {
		log.Warn().Msgf("FHIR server does not advertise PKCE S256 support (url=%s)", configURL)
	}
	return &result, nil
}

// WithDiscoveredEndpoints returns a copy of the configuration that uses the discovered authorization and token endpoints.
func (c Config) WithDiscoveredEndpoints(discovered *oidc.DiscoveryConfiguration) Config {
	c.AuthorizationURL = discovered.AuthorizationEndpoint
	c.TokenURL = discovered.TokenEndpoint
	return c
}
