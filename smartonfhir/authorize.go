package smartonfhir

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// AuthorizationURL starts a new authorization request: it generates and stores a PKCE code verifier,
// registers a new state and returns the URL the user agent must be redirected to.
// The launch parameter is only set for EHR launches, for standalone launches it must be empty.
func (c *Client) AuthorizationURL(ctx context.Context, launch string) (string, error) {
	verifier := oauth2.GenerateVerifier()
	if err := c.store.Put(ctx, c.keys.CodeVerifier, []byte(verifier)); err != nil {
		return "", fmt.Errorf("unable to store code verifier: %w", err)
	}

	state := uuid.NewString()
	c.statesMux.Lock()
	c.states.DeleteExpired()
	c.states.Set(state, struct{}{}, ttlcache.DefaultTTL)
	c.statesMux.Unlock()

	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(verifier),
		// Epic requires the FHIR base URL as audience
		oauth2.SetAuthURLParam("aud", c.config.FHIRBaseURL),
	}
	if launch != "" {
		opts = append(opts, oauth2.SetAuthURLParam("launch", launch))
	}
	log.Debug().Msgf("Starting SMART on FHIR authorization (client_id=%s, redirect_uri=%s)", c.config.ClientID, c.config.RedirectURL)
	return c.oauth2Config.AuthCodeURL(state, opts...), nil
}

// consumeState reports whether the state was issued and not expired. A state can only be consumed once.
func (c *Client) consumeState(state string) bool {
	if state == "" {
		return false
	}
	c.statesMux.Lock()
	defer c.statesMux.Unlock()
	if c.states.Get(state) == nil {
		return false
	}
	c.states.Delete(state)
	return true
}
