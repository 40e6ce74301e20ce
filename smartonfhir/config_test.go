package smartonfhir

import (
	"testing"
	"time"

	"github.com/johnhce/patient-app/epic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, epic.ClientID, config.ClientID)
	assert.Equal(t, epic.FHIRBaseURL, config.FHIRBaseURL)
	assert.Equal(t, epic.AuthorizationURL, config.AuthorizationURL)
	assert.Equal(t, epic.TokenURL, config.TokenURL)
	assert.Equal(t, epic.RedirectURL, config.RedirectURL)
	require.NoError(t, config.Validate())
}

func TestConfig_Validate(t *testing.T) {
	t.Run("missing client ID", func(t *testing.T) {
		config := DefaultConfig()
		config.ClientID = ""
		require.EqualError(t, config.Validate(), "smart.clientid is required")
	})
	t.Run("relative token URL", func(t *testing.T) {
		config := DefaultConfig()
		config.TokenURL = "/oauth2/token"
		require.EqualError(t, config.Validate(), "smart.tokenurl: URL must be absolute: /oauth2/token")
	})
	t.Run("non-HTTP FHIR base URL", func(t *testing.T) {
		config := DefaultConfig()
		config.FHIRBaseURL = "ftp://example.com/fhir"
		require.EqualError(t, config.Validate(), "smart.fhirbaseurl: URL must start with http:// or https://: ftp://example.com/fhir")
	})
	t.Run("empty redirect URL", func(t *testing.T) {
		config := DefaultConfig()
		config.RedirectURL = ""
		require.EqualError(t, config.Validate(), "smart.redirecturl: URL is required")
	})
	t.Run("empty scope", func(t *testing.T) {
		config := DefaultConfig()
		config.Scope = "  "
		require.EqualError(t, config.Validate(), "smart.scope is required")
	})
	t.Run("zero state TTL", func(t *testing.T) {
		config := DefaultConfig()
		config.StateTTL = 0 * time.Second
		require.EqualError(t, config.Validate(), "smart.statettl must be positive")
	})
}

func TestConfig_CallbackPath(t *testing.T) {
	assert.Equal(t, "/", Config{RedirectURL: "http://localhost:5173"}.CallbackPath())
	assert.Equal(t, "/", Config{RedirectURL: "http://localhost:5173/"}.CallbackPath())
	assert.Equal(t, "/callback", Config{RedirectURL: "http://localhost:5173/callback"}.CallbackPath())
}
