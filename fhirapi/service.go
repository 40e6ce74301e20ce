package fhirapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/johnhce/patient-app/lib/httpserv"
	"github.com/johnhce/patient-app/lib/to"
	"github.com/johnhce/patient-app/smartonfhir"
	"github.com/rs/zerolog/log"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
	"golang.org/x/oauth2"
)

const defaultObservationCategory = "vital-signs"

// Authorizer provides the access token and launch context obtained through the SMART on FHIR authorization.
type Authorizer interface {
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)
	PatientID(ctx context.Context) (string, error)
}

// Service exposes the launch context's FHIR data.
type Service struct {
	authorizer  Authorizer
	fhirBaseURL *url.URL
	httpClient  *http.Client
}

func NewService(authorizer Authorizer, fhirBaseURL *url.URL, httpClient *http.Client) *Service {
	return &Service{
		authorizer:  authorizer,
		fhirBaseURL: fhirBaseURL,
		httpClient:  httpClient,
	}
}

func (s *Service) RegisterHandlers(mux *http.ServeMux) {
	httpserv.RegisterRoutes(mux,
		httpserv.Route{
			Method:     http.MethodGet,
			Path:       "/patient",
			Handler:    s.handleGetPatient,
			Middleware: httpserv.NoStore,
		},
		httpserv.Route{
			Method:     http.MethodGet,
			Path:       "/observations",
			Handler:    s.handleSearchObservations,
			Middleware: httpserv.NoStore,
		},
	)
}

func (s *Service) handleGetPatient(response http.ResponseWriter, request *http.Request) {
	client, patientID, err := s.client(request.Context())
	if err != nil {
		s.sendError(response, err)
		return
	}
	patient, err := client.ReadPatient(request.Context(), patientID)
	if err != nil {
		s.sendError(response, err)
		return
	}
	s.sendResource(response, patient)
}

func (s *Service) handleSearchObservations(response http.ResponseWriter, request *http.Request) {
	category := request.URL.Query().Get("category")
	if category == "" {
		category = defaultObservationCategory
	}
	client, patientID, err := s.client(request.Context())
	if err != nil {
		s.sendError(response, err)
		return
	}
	bundle, err := client.SearchObservations(request.Context(), patientID, category)
	if err != nil {
		s.sendError(response, err)
		return
	}
	// Epic adds OperationOutcome entries with warnings to search results, only return the observations
	observations, err := Observations(bundle)
	if err != nil {
		s.sendError(response, err)
		return
	}
	result := fhir.Bundle{
		Type:  fhir.BundleTypeSearchset,
		Total: to.Ptr(len(observations)),
	}
	for _, observation := range observations {
		data, err := json.Marshal(observation)
		if err != nil {
			s.sendError(response, err)
			return
		}
		result.Entry = append(result.Entry, fhir.BundleEntry{Resource: data})
	}
	s.sendResource(response, result)
}

func (s *Service) client(ctx context.Context) (*Client, string, error) {
	patientID, err := s.authorizer.PatientID(ctx)
	if err != nil {
		return nil, "", err
	}
	tokenSource, err := s.authorizer.TokenSource(ctx)
	if err != nil {
		return nil, "", err
	}
	return NewClient(s.fhirBaseURL, tokenSource, s.httpClient), patientID, nil
}

func (s *Service) sendResource(response http.ResponseWriter, resource any) {
	data, err := json.Marshal(resource)
	if err != nil {
		s.sendError(response, err)
		return
	}
	response.Header().Set("Content-Type", fhirclient.FhirJsonMediaType)
	response.WriteHeader(http.StatusOK)
	_, _ = response.Write(data)
}

func (s *Service) sendError(response http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	issueType := fhir.IssueTypeException
	diagnostics := "The system tried to read data from the FHIR API, but an error occurred."
	var operationOutcome fhirclient.OperationOutcomeError
	var retrieveErr *oauth2.RetrieveError
	switch {
	case errors.Is(err, smartonfhir.ErrNotAuthorized),
		errors.Is(err, ErrUnauthorized),
		errors.As(err, &retrieveErr),
		errors.As(err, &operationOutcome) && operationOutcome.HttpStatusCode == http.StatusUnauthorized:
		status = http.StatusUnauthorized
		issueType = fhir.IssueTypeSecurity
		diagnostics = "Not authorized, sign in at /launch first."
	case errors.As(err, &operationOutcome) && operationOutcome.HttpStatusCode == http.StatusNotFound:
		status = http.StatusNotFound
		issueType = fhir.IssueTypeNotFound
		diagnostics = "The requested resource was not found."
	}
	log.Warn().Err(err).Msgf("FHIR API request failed (status=%d)", status)
	data, _ := json.Marshal(fhir.OperationOutcome{
		Issue: []fhir.OperationOutcomeIssue{
			{
				Severity:    fhir.IssueSeverityError,
				Code:        issueType,
				Diagnostics: to.Ptr(diagnostics),
			},
		},
	})
	response.Header().Set("Content-Type", fhirclient.FhirJsonMediaType)
	response.WriteHeader(status)
	_, _ = response.Write(data)
}
