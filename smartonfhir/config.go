package smartonfhir

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/johnhce/patient-app/epic"
)

// DefaultScope requests an OpenID Connect identity, the patient launch context and read access to the resources the app shows.
const DefaultScope = "openid fhirUser launch/patient patient/Patient.read patient/Observation.read"

type Config struct {
	ClientID         string `koanf:"clientid"`
	FHIRBaseURL      string `koanf:"fhirbaseurl"`
	AuthorizationURL string `koanf:"authorizationurl"`
	TokenURL         string `koanf:"tokenurl"`
	RedirectURL      string `koanf:"redirecturl"`
	// Scope is a space-separated list of OAuth2 scopes.
	Scope string `koanf:"scope"`
	// Discovery enables fetching the authorization and token endpoints from the FHIR server's
	// .well-known/smart-configuration, instead of using AuthorizationURL and TokenURL.
	Discovery bool `koanf:"discovery"`
	// StateTTL specifies how long an authorization request may take before its state is rejected.
	StateTTL time.Duration `koanf:"statettl"`
}

func DefaultConfig() Config {
	return Config{
		ClientID:         epic.ClientID,
		FHIRBaseURL:      epic.FHIRBaseURL,
		AuthorizationURL: epic.AuthorizationURL,
		TokenURL:         epic.TokenURL,
		RedirectURL:      epic.RedirectURL,
		Scope:            DefaultScope,
		StateTTL:         10 * time.Minute,
	}
}

func (c Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("smart.clientid is required")
	}
	for name, value := range map[string]string{
		"fhirbaseurl":      c.FHIRBaseURL,
		"authorizationurl": c.AuthorizationURL,
		"tokenurl":         c.TokenURL,
		"redirecturl":      c.RedirectURL,
	} {
		if err := validateHTTPURL(value); err != nil {
			return fmt.Errorf("smart.%s: %w", name, err)
		}
	}
	if len(strings.Fields(c.Scope)) == 0 {
		return errors.New("smart.scope is required")
	}
	if c.StateTTL <= 0 {
		return errors.New("smart.statettl must be positive")
	}
	return nil
}

// CallbackPath returns the path of the redirect URL, which is where the authorization server sends the user agent back to.
func (c Config) CallbackPath() string {
	parsed, err := url.Parse(c.RedirectURL)
	if err != nil || parsed.Path == "" {
		return "/"
	}
	return parsed.Path
}

func validateHTTPURL(value string) error {
	if value == "" {
		return errors.New("URL is required")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("URL must be absolute: %s", value)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL must start with http:// or https://: %s", value)
	}
	return nil
}
