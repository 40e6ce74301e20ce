package smartonfhir

import (
	"context"
	"errors"
	"fmt"

	"github.com/johnhce/patient-app/lib/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Exchange completes the authorization: it exchanges the authorization code for tokens using the stored code verifier,
// and stores the token response. The code verifier is removed afterward, since it can't be used again.
func (c *Client) Exchange(ctx context.Context, code string, state string) (*TokenResponse, error) {
	if code == "" {
		return nil, errors.New("missing authorization code")
	}
	if !c.consumeState(state) {
		return nil, ErrInvalidState
	}
	verifier, err := c.store.Get(ctx, c.keys.CodeVerifier)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errors.New("no code verifier stored, authorization must be started first")
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load code verifier: %w", err)
	}

	token, err := c.oauth2Config.Exchange(c.oauth2Context(ctx), code, oauth2.VerifierOption(string(verifier)))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	result := tokenResponseFrom(token)
	if err := c.storeToken(ctx, result); err != nil {
		return nil, err
	}
	if err := c.store.Delete(ctx, c.keys.CodeVerifier); err != nil {
		log.Warn().Err(err).Msg("Unable to remove code verifier after token exchange")
	}
	log.Info().Msgf("SMART on FHIR authorization succeeded (patient=%s, scope=%s)", result.Patient, result.Scope)
	return &result, nil
}
