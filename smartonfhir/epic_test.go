package smartonfhir

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/johnhce/patient-app/lib/storage"
	"github.com/zitadel/oidc/v3/pkg/oidc"
)

var testKeys = StorageKeys{
	CodeVerifier:  "smart_code_verifier",
	TokenResponse: "smart_token_response",
}

// fakeEpic emulates the authorization and token endpoints of Epic's authorization server.
type fakeEpic struct {
	server *httptest.Server
	mux    sync.Mutex

	authorizeQuery url.Values
	tokenForm      url.Values
	tokenRequests  int
	// tokenResponse is returned by the token endpoint, when empty a default response is returned.
	tokenResponse string
	tokenStatus   int
}

func newFakeEpic(t *testing.T) *fakeEpic {
	f := &fakeEpic{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth2/authorize", func(w http.ResponseWriter, r *http.Request) {
		f.mux.Lock()
		f.authorizeQuery = r.URL.Query()
		f.mux.Unlock()
		http.Redirect(w, r, r.URL.Query().Get("redirect_uri")+"?code=test-code&state="+url.QueryEscape(r.URL.Query().Get("state")), http.StatusFound)
	})
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mux.Lock()
		defer f.mux.Unlock()
		f.tokenForm = r.PostForm
		f.tokenRequests++
		if f.tokenStatus != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		// Verify PKCE when the challenge was captured by the authorization endpoint
		if f.authorizeQuery != nil && r.PostForm.Get("grant_type") == "authorization_code" {
			if oidc.NewSHACodeChallenge(r.PostForm.Get("code_verifier")) != f.authorizeQuery.Get("code_challenge") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"PKCE verification failed"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if f.tokenResponse != "" {
			_, _ = w.Write([]byte(f.tokenResponse))
			return
		}
		_, _ = w.Write([]byte(`{
			"access_token": "test-access-token",
			"token_type": "Bearer",
			"expires_in": 3600,
			"scope": "openid fhirUser launch/patient patient/Patient.read",
			"refresh_token": "test-refresh-token",
			"patient": "erXuFYUfucBZaryVksYEcMg3"
		}`))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeEpic) config(redirectURL string) Config {
	config := DefaultConfig()
	config.AuthorizationURL = f.server.URL + "/oauth2/authorize"
	config.TokenURL = f.server.URL + "/oauth2/token"
	config.FHIRBaseURL = f.server.URL + "/api/FHIR/R4"
	if redirectURL != "" {
		config.RedirectURL = redirectURL
	}
	return config
}

func (f *fakeEpic) client(redirectURL string) (*Client, storage.Store) {
	store := storage.NewMemoryStore(0)
	return NewClient(f.config(redirectURL), store, testKeys, f.server.Client()), store
}
