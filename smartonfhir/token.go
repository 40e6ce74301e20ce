package smartonfhir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/johnhce/patient-app/lib/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// TokenResponse is the token endpoint's response as it is stored. Besides the OAuth2 fields,
// it contains the SMART launch context parameters.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Patient      string    `json:"patient,omitempty"`
	Encounter    string    `json:"encounter,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// OAuth2Token converts the response to a token usable by golang.org/x/oauth2.
func (t TokenResponse) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
		ExpiresIn:    t.ExpiresIn,
	}
}

// Usable reports whether the access token is still valid, or can be refreshed using the refresh token.
func (t TokenResponse) Usable() bool {
	return t.RefreshToken != "" || t.OAuth2Token().Valid()
}

var idTokenAlgorithms = []jose.SignatureAlgorithm{jose.RS256, jose.RS384, jose.RS512, jose.ES256, jose.ES384, jose.PS256}

// FHIRUser returns the fhirUser claim of the ID token, e.g. Practitioner/123.
// The ID token's signature is not verified, so the result must only be used for display purposes.
func (t TokenResponse) FHIRUser() (string, error) {
	if t.IDToken == "" {
		return "", errors.New("no ID token in token response")
	}
	token, err := jwt.ParseSigned(t.IDToken, idTokenAlgorithms)
	if err != nil {
		return "", fmt.Errorf("invalid ID token: %w", err)
	}
	var claims struct {
		FHIRUser string `json:"fhirUser"`
	}
	if err := token.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return "", fmt.Errorf("invalid ID token claims: %w", err)
	}
	return claims.FHIRUser, nil
}

func tokenResponseFrom(token *oauth2.Token) TokenResponse {
	return TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.Type(),
		ExpiresIn:    token.ExpiresIn,
		Scope:        extraString(token, "scope"),
		RefreshToken: token.RefreshToken,
		IDToken:      extraString(token, "id_token"),
		Patient:      extraString(token, "patient"),
		Encounter:    extraString(token, "encounter"),
		Expiry:       token.Expiry,
	}
}

func extraString(token *oauth2.Token, key string) string {
	value, _ := token.Extra(key).(string)
	return value
}

// LoadToken returns the stored token response, or ErrNotAuthorized if there is none.
func (c *Client) LoadToken(ctx context.Context) (*TokenResponse, error) {
	data, err := c.store.Get(ctx, c.keys.TokenResponse)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: no token response stored", ErrNotAuthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load token response: %w", err)
	}
	var result TokenResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("stored token response is invalid: %w", err)
	}
	return &result, nil
}

// PatientID returns the ID of the patient in the launch context of the stored token response.
func (c *Client) PatientID(ctx context.Context) (string, error) {
	token, err := c.LoadToken(ctx)
	if err != nil {
		return "", err
	}
	if token.Patient == "" {
		return "", errors.New("token response does not contain a patient launch context")
	}
	return token.Patient, nil
}

func (c *Client) storeToken(ctx context.Context, token TokenResponse) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, c.keys.TokenResponse, data); err != nil {
		return fmt.Errorf("unable to store token response: %w", err)
	}
	return nil
}

// TokenSource returns a token source for the stored token response. When the access token expires,
// it is refreshed using the refresh token and the refreshed response is stored.
func (c *Client) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	stored, err := c.LoadToken(ctx)
	if err != nil {
		return nil, err
	}
	return &persistingTokenSource{
		ctx:     ctx,
		client:  c,
		base:    c.oauth2Config.TokenSource(c.oauth2Context(ctx), stored.OAuth2Token()),
		current: *stored,
		mux:     &sync.Mutex{},
	}, nil
}

var _ oauth2.TokenSource = &persistingTokenSource{}

type persistingTokenSource struct {
	ctx     context.Context
	client  *Client
	base    oauth2.TokenSource
	current TokenResponse
	mux     *sync.Mutex
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := p.base.Token()
	p.mux.Lock()
	defer p.mux.Unlock()
	if err != nil {
		// The session lapsed: the user needs to sign in again
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) || !p.current.Usable() {
			return nil, fmt.Errorf("%w: %w", ErrNotAuthorized, err)
		}
		return nil, err
	}
	if token.AccessToken == p.current.AccessToken {
		return token, nil
	}
	log.Debug().Msg("Access token refreshed")
	refreshed := tokenResponseFrom(token)
	// Refresh responses don't necessarily repeat the launch context
	if refreshed.Patient == "" {
		refreshed.Patient = p.current.Patient
	}
	if refreshed.Encounter == "" {
		refreshed.Encounter = p.current.Encounter
	}
	if refreshed.IDToken == "" {
		refreshed.IDToken = p.current.IDToken
	}
	if refreshed.Scope == "" {
		refreshed.Scope = p.current.Scope
	}
	if err := p.client.storeToken(p.ctx, refreshed); err != nil {
		return nil, err
	}
	p.current = refreshed
	return token, nil
}
