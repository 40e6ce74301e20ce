// Package epic holds the compiled-in SMART on FHIR settings for the Epic on FHIR sandbox.
package epic

const (
	// ClientID identifies this application to Epic's authorization server.
	ClientID = "cdbff829-50e8-4dca-a3dc-bfd4b231a132"
	// FHIRBaseURL is the root of the FHIR R4 API.
	FHIRBaseURL = "https://fhir.epic.com/interconnect-fhir-oauth/api/FHIR/R4"
	// AuthorizationURL is where the user agent is sent to authenticate and consent.
	AuthorizationURL = "https://fhir.epic.com/interconnect-fhir-oauth/oauth2/authorize"
	// TokenURL exchanges authorization codes and refresh tokens for access tokens.
	TokenURL = "https://fhir.epic.com/interconnect-fhir-oauth/oauth2/token"
	// RedirectURL must match the redirect URI registered for ClientID exactly.
	RedirectURL = "http://localhost:5173"
	// CodeVerifierStorageKey names the slot holding the PKCE code verifier until the code is exchanged.
	CodeVerifierStorageKey = "smart_code_verifier"
	// TokenResponseStorageKey names the slot holding the token response.
	TokenResponseStorageKey = "smart_token_response"
)
