package fhirapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/rs/zerolog/log"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
	"golang.org/x/oauth2"
)

// ErrUnauthorized is returned when the FHIR server rejects the access token, e.g. because it was revoked.
var ErrUnauthorized = errors.New("FHIR server rejected the access token")

// Config returns the FHIR client configuration for Epic's FHIR API.
func Config() *fhirclient.Config {
	config := fhirclient.DefaultConfig()
	// Epic doesn't support POST-based search for every resource type
	config.UsePostSearch = false
	config.DefaultOptions = []fhirclient.Option{
		fhirclient.RequestHeaders(map[string][]string{
			"Cache-Control": {"no-cache"},
		}),
	}
	config.Non2xxStatusHandler = func(response *http.Response, responseBody []byte) {
		log.Debug().Msgf("Non-2xx status code from FHIR server (%s %s, status=%d), content: %s", response.Request.Method, sanitizeRequestURL(response.Request.URL), response.StatusCode, string(responseBody))
	}
	return &config
}

// Client reads the launch context's resources from the FHIR API, authorizing requests with the given token source.
type Client struct {
	fhirClient fhirclient.Client
}

func NewClient(fhirBaseURL *url.URL, tokenSource oauth2.TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	authorizedClient := &http.Client{
		Timeout: httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: tokenSource,
			Base:   httpClient.Transport,
		},
	}
	return &Client{
		fhirClient: fhirclient.New(fhirBaseURL, authorizedClient, Config()),
	}
}

func (c *Client) ReadPatient(ctx context.Context, patientID string) (*fhir.Patient, error) {
	var patient fhir.Patient
	var status int
	if err := c.fhirClient.ReadWithContext(ctx, "Patient/"+patientID, &patient, fhirclient.ResponseStatusCode(&status)); err != nil {
		return nil, fmt.Errorf("unable to read patient: %w", upstreamError(err, status))
	}
	return &patient, nil
}

// SearchObservations searches the patient's observations in the given category (e.g. vital-signs, laboratory).
func (c *Client) SearchObservations(ctx context.Context, patientID string, category string) (*fhir.Bundle, error) {
	query := url.Values{
		"patient": []string{patientID},
	}
	if category != "" {
		query.Set("category", category)
	}
	var bundle fhir.Bundle
	var status int
	if err := c.fhirClient.SearchWithContext(ctx, "Observation", query, &bundle, fhirclient.ResponseStatusCode(&status)); err != nil {
		return nil, fmt.Errorf("unable to search observations: %w", upstreamError(err, status))
	}
	return &bundle, nil
}

// upstreamError marks errors caused by the FHIR server rejecting the access token.
// Epic answers 401 without a body, so the status code is the only indication.
func upstreamError(err error, status int) error {
	if status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return err
}

// Observations extracts the Observation resources from a search result. Other entries (e.g. OperationOutcome) are skipped.
func Observations(bundle *fhir.Bundle) ([]fhir.Observation, error) {
	var result []fhir.Observation
	for _, entry := range bundle.Entry {
		if len(entry.Resource) == 0 {
			continue
		}
		var typed struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(entry.Resource, &typed); err != nil {
			return nil, fmt.Errorf("invalid bundle entry: %w", err)
		}
		if typed.ResourceType != "Observation" {
			continue
		}
		var observation fhir.Observation
		if err := json.Unmarshal(entry.Resource, &observation); err != nil {
			return nil, fmt.Errorf("invalid Observation: %w", err)
		}
		result = append(result, observation)
	}
	return result, nil
}

func sanitizeRequestURL(requestURL *url.URL) *url.URL {
	// Query might contain PII (e.g., social security number), so do not log it.
	requestURLWithoutQuery := *requestURL
	requestURLWithoutQuery.RawQuery = ""
	return &requestURLWithoutQuery
}
