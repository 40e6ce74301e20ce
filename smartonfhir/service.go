package smartonfhir

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/google/uuid"
	"github.com/johnhce/patient-app/lib/httpserv"
	"github.com/rs/zerolog/log"
)

// LandingPath is where the user agent is sent after a successful authorization.
const LandingPath = "/patient"

type Service struct {
	client     *Client
	strictMode bool
}

func NewService(client *Client, strictMode bool) *Service {
	return &Service{
		client:     client,
		strictMode: strictMode,
	}
}

func (s *Service) RegisterHandlers(mux *http.ServeMux) {
	callbackPath := s.client.Config().CallbackPath()
	if callbackPath == "/" {
		// only match the root, not every path
		callbackPath = "/{$}"
	}
	httpserv.RegisterRoutes(mux,
		httpserv.Route{
			Method:     http.MethodGet,
			Path:       "/launch",
			Handler:    s.handleLaunch,
			Middleware: httpserv.NoStore,
		},
		httpserv.Route{
			Method:     http.MethodGet,
			Path:       callbackPath,
			Handler:    s.handleCallback,
			Middleware: httpserv.Chain(httpserv.NoStore, httpserv.NoReferrer),
		},
		httpserv.Route{
			Method:  http.MethodGet,
			Path:    "/logout",
			Handler: s.handleLogout,
		},
	)
}

func (s *Service) handleLaunch(response http.ResponseWriter, request *http.Request) {
	authURL, err := s.client.AuthorizationURL(request.Context(), request.URL.Query().Get("launch"))
	if err != nil {
		s.SendError(request.Context(), err, response, http.StatusInternalServerError)
		return
	}
	http.Redirect(response, request, authURL, http.StatusFound)
}

func (s *Service) handleCallback(response http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		s.SendError(request.Context(), fmt.Errorf("authorization server returned error: %s (%s)", errCode, query.Get("error_description")), response, http.StatusBadRequest)
		return
	}
	code := query.Get("code")
	if code == "" {
		// Not an authorization response, show the current status
		s.renderStatus(request.Context(), response)
		return
	}
	_, err := s.client.Exchange(request.Context(), code, query.Get("state"))
	if errors.Is(err, ErrInvalidState) {
		s.SendError(request.Context(), err, response, http.StatusBadRequest)
		return
	}
	if err != nil {
		s.SendError(request.Context(), err, response, http.StatusBadGateway)
		return
	}
	http.Redirect(response, request, LandingPath, http.StatusFound)
}

func (s *Service) handleLogout(response http.ResponseWriter, request *http.Request) {
	if err := s.client.Logout(request.Context()); err != nil {
		s.SendError(request.Context(), err, response, http.StatusInternalServerError)
		return
	}
	log.Info().Msg("Stored SMART on FHIR tokens removed")
	http.Redirect(response, request, "/", http.StatusFound)
}

var statusTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><title>Patient app</title></head>
<body>
{{if .Authorized}}
<p>Authorized{{if .FHIRUser}} as {{.FHIRUser}}{{end}}{{if .Patient}} for patient {{.Patient}}{{end}}.</p>
<p><a href="/patient">Patient</a> | <a href="/observations">Observations</a> | <a href="/logout">Log out</a></p>
{{else}}
<p>Not authorized. <a href="/launch">Sign in with Epic</a></p>
{{end}}
</body>
</html>`))

type statusModel struct {
	Authorized bool
	FHIRUser   string
	Patient    string
}

func (s *Service) renderStatus(ctx context.Context, response http.ResponseWriter) {
	var model statusModel
	token, err := s.client.LoadToken(ctx)
	if err != nil && !errors.Is(err, ErrNotAuthorized) {
		s.SendError(ctx, err, response, http.StatusInternalServerError)
		return
	}
	if token != nil {
		model.Authorized = true
		model.Patient = token.Patient
		model.FHIRUser, _ = token.FHIRUser()
	}
	response.Header().Set("Content-Type", "text/html; charset=utf-8")
	response.WriteHeader(http.StatusOK)
	if err := statusTemplate.Execute(response, model); err != nil {
		log.Warn().Err(err).Msg("Failed to render status page")
	}
}

// SendError logs the error under a generated ID and writes it to the response.
// In strict mode, the error details are only logged.
func (s *Service) SendError(ctx context.Context, err error, response http.ResponseWriter, httpStatusCode int) {
	errorID := uuid.NewString()
	log.Error().Err(err).Str("error_id", errorID).Msg("SMART on FHIR authorization failed")
	msg := "SMART on FHIR authorization failed (id=" + errorID + ")"
	if !s.strictMode {
		msg += ": " + err.Error()
	}
	http.Error(response, msg, httpStatusCode)
}
