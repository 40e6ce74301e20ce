package healthcheck

import (
	"context"
	"encoding/json"
	"net/http"
)

// AuthorizationChecker reports whether a stored access token is valid, or can be refreshed.
type AuthorizationChecker func(ctx context.Context) bool

func New(authorized AuthorizationChecker) *Service {
	return &Service{authorized: authorized}
}

type Service struct {
	authorized AuthorizationChecker
}

func (s Service) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealthCheck)
}

func (s Service) handleHealthCheck(writer http.ResponseWriter, request *http.Request) {
	authorized := s.authorized != nil && s.authorized(request.Context())
	writer.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(writer).Encode(map[string]interface{}{
		"status":     "up",
		"authorized": authorized,
	})
}
