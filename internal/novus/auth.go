package novus

import (
	"context"
	"log/slog"
)

// authPath is the NOVUS token endpoint; it takes HTTP Basic credentials
// and returns the bearer token in the response body.
const authPath = "/api/auth"

// Credentials holds the system-level NOVUS account used for provisioning.
type Credentials struct {
	Username string
	Password string
}

// Configured reports whether both parts of the credential pair are set.
func (c Credentials) Configured() bool {
	return c.Username != "" && c.Password != ""
}

// Authenticator obtains short-lived bearer tokens from NOVUS using
// system-level credentials supplied at construction.
type Authenticator struct {
	client *Client
	creds  Credentials
	logger *slog.Logger
}

// NewAuthenticator returns an Authenticator bound to the given client
// and credentials.
func NewAuthenticator(client *Client, creds Credentials, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{client: client, creds: creds, logger: logger}
}

// Authenticate obtains a bearer token. Missing credentials fail
// immediately with an AuthError, before any network call.
func (a *Authenticator) Authenticate(ctx context.Context) (string, error) {
	if !a.creds.Configured() {
		return "", &AuthError{Message: "NOVUS credentials are not configured"}
	}

	body, err := a.client.GetWithBasicAuth(ctx, authPath, BasicAuth(a.creds), nil)
	if err != nil {
		return "", &AuthError{Message: "NOVUS authentication failed", Err: err}
	}

	token := tokenFromBody(body)
	if token == "" {
		return "", &ResponseError{
			Message: "NOVUS auth response did not contain a token",
			Detail:  safeDetail(body),
		}
	}

	a.logger.InfoContext(ctx, "successfully authenticated with NOVUS")
	return token, nil
}

// tokenFromBody extracts the bearer token from the auth response. The
// endpoint returns the token either as a bare JSON string or as an
// object with a "token" field.
func tokenFromBody(body any) string {
	switch v := body.(type) {
	case string:
		return v
	case map[string]any:
		if tok, ok := v["token"].(string); ok {
			return tok
		}
	}
	return ""
}

func safeDetail(body any) map[string]any {
	if m, ok := body.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
