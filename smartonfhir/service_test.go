package smartonfhir

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService(t *testing.T) {
	epicServer := newFakeEpic(t)
	httpMux := http.NewServeMux()
	appServer := httptest.NewServer(httpMux)
	defer appServer.Close()
	httpMux.HandleFunc("GET "+LandingPath, func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte("landing"))
	})
	client, store := epicServer.client(appServer.URL)
	service := NewService(client, false)
	service.RegisterHandlers(httpMux)

	httpClient := appServer.Client()

	t.Run("status before authorization", func(t *testing.T) {
		response, err := httpClient.Get(appServer.URL)
		require.NoError(t, err)
		body := readBody(t, response)
		assert.Equal(t, http.StatusOK, response.StatusCode)
		assert.Contains(t, body, "Not authorized")
	})
	t.Run("launch, authorize and exchange", func(t *testing.T) {
		response, err := httpClient.Get(appServer.URL + "/launch?launch=abc")
		require.NoError(t, err)
		body := readBody(t, response)

		// followed redirects: app -> Epic authorize -> app callback -> landing page
		assert.Equal(t, http.StatusOK, response.StatusCode)
		assert.Equal(t, "landing", body)
		assert.Equal(t, "abc", epicServer.authorizeQuery.Get("launch"))
		assert.Equal(t, appServer.URL, epicServer.authorizeQuery.Get("redirect_uri"))
		token, err := client.LoadToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "test-access-token", token.AccessToken)
	})
	t.Run("status after authorization", func(t *testing.T) {
		response, err := httpClient.Get(appServer.URL)
		require.NoError(t, err)
		body := readBody(t, response)
		assert.Contains(t, body, "Authorized")
		assert.Contains(t, body, "erXuFYUfucBZaryVksYEcMg3")
	})
	t.Run("callback with unknown state", func(t *testing.T) {
		response, err := httpClient.Get(appServer.URL + "/?code=abc&state=unknown")
		require.NoError(t, err)
		body := readBody(t, response)
		assert.Equal(t, http.StatusBadRequest, response.StatusCode)
		assert.Contains(t, body, "SMART on FHIR authorization failed (id=")
		assert.Contains(t, body, "invalid state parameter")
		assert.Equal(t, "no-store", response.Header.Get("Cache-Control"))
		assert.Equal(t, "no-referrer", response.Header.Get("Referrer-Policy"))
	})
	t.Run("callback with error", func(t *testing.T) {
		response, err := httpClient.Get(appServer.URL + "/?error=access_denied&error_description=User+cancelled")
		require.NoError(t, err)
		body := readBody(t, response)
		assert.Equal(t, http.StatusBadRequest, response.StatusCode)
		assert.Contains(t, body, "access_denied (User cancelled)")
	})
	t.Run("other paths are not handled by the callback", func(t *testing.T) {
		response, err := httpClient.Get(appServer.URL + "/unknown")
		require.NoError(t, err)
		_ = readBody(t, response)
		assert.Equal(t, http.StatusNotFound, response.StatusCode)
	})
	t.Run("logout", func(t *testing.T) {
		response, err := httpClient.Get(appServer.URL + "/logout")
		require.NoError(t, err)
		body := readBody(t, response)
		assert.Contains(t, body, "Not authorized")
		_, err = store.Get(context.Background(), testKeys.TokenResponse)
		require.Error(t, err)
	})
}

func TestService_SendError(t *testing.T) {
	t.Run("strict mode hides details", func(t *testing.T) {
		service := NewService(nil, true)
		recorder := httptest.NewRecorder()
		service.SendError(context.Background(), assert.AnError, recorder, http.StatusBadGateway)
		assert.Equal(t, http.StatusBadGateway, recorder.Code)
		assert.True(t, strings.HasPrefix(recorder.Body.String(), "SMART on FHIR authorization failed (id="))
		assert.NotContains(t, recorder.Body.String(), assert.AnError.Error())
	})
	t.Run("non-strict mode shows details", func(t *testing.T) {
		service := NewService(nil, false)
		recorder := httptest.NewRecorder()
		service.SendError(context.Background(), assert.AnError, recorder, http.StatusBadGateway)
		assert.Contains(t, recorder.Body.String(), assert.AnError.Error())
	})
}

func readBody(t *testing.T, response *http.Response) string {
	defer response.Body.Close()
	data, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	return string(data)
}
