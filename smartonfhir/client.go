package smartonfhir

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/jellydator/ttlcache/v3"
	"github.com/johnhce/patient-app/lib/storage"
	"golang.org/x/oauth2"
)

var (
	// ErrNotAuthorized is returned when no token response has been stored yet, or the stored access token
	// expired and can't be refreshed.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInvalidState is returned when the authorization response carries a state that wasn't issued, or has expired.
	ErrInvalidState = errors.New("invalid state parameter")
)

// StorageKeys names the storage slots used by the authorization flow.
type StorageKeys struct {
	CodeVerifier  string
	TokenResponse string
}

// Client performs the SMART on FHIR authorization code flow with PKCE as a public client.
type Client struct {
	config       Config
	oauth2Config *oauth2.Config
	store        storage.Store
	keys         StorageKeys
	httpClient   *http.Client
	states       *ttlcache.Cache[string, struct{}]
	statesMux    *sync.Mutex
}

func NewClient(config Config, store storage.Store, keys StorageKeys, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		config: config,
		oauth2Config: &oauth2.Config{
			ClientID: config.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:  config.AuthorizationURL,
				TokenURL: config.TokenURL,
				// Public client: client_id goes in the request body, there is no secret
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: config.RedirectURL,
			Scopes:      strings.Fields(config.Scope),
		},
		store:      store,
		keys:       keys,
		httpClient: httpClient,
		states: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](config.StateTTL),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
		statesMux: &sync.Mutex{},
	}
}

// Config returns the configuration the client was created with.
func (c *Client) Config() Config {
	return c.config
}

// Logout removes the stored code verifier and token response.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.store.Delete(ctx, c.keys.CodeVerifier); err != nil {
		return err
	}
	return c.store.Delete(ctx, c.keys.TokenResponse)
}

// oauth2Context makes golang.org/x/oauth2 use the client's HTTP client for token requests.
func (c *Client) oauth2Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}
