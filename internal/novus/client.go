// Package novus integrates with the NOVUS access-control system: a thin
// authenticated HTTP client, system-credential authentication, and the
// ordered provisioning sequence (guest user, QR card, credential) that
// runs when a guest request is approved.
package novus

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Conservative timeouts: 10s to establish a connection, 30s for the
// whole request including reading the response.
const (
	connectTimeout = 10 * time.Second
	readTimeout    = 30 * time.Second
)

// bodyPreviewLimit bounds how much of a malformed response body is
// carried in a ResponseError.
const bodyPreviewLimit = 500

// BasicAuth holds HTTP Basic credentials for the provider auth endpoint.
type BasicAuth struct {
	Username string
	Password string
}

// Client is a thin HTTP wrapper around the NOVUS REST API. Every failure
// mode maps to a typed error so callers never inspect raw responses.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// NewClient returns a Client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Timeout: readTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
				TLSHandshakeTimeout: connectTimeout,
			},
		},
		logger: logger,
	}
}

type callOptions struct {
	token string
	basic *BasicAuth
	body  any
	query url.Values
}

// Get executes a bearer-authenticated GET request.
func (c *Client) Get(ctx context.Context, path, token string, query url.Values) (any, error) {
	return c.do(ctx, http.MethodGet, path, callOptions{token: token, query: query})
}

// GetWithBasicAuth executes a GET request with HTTP Basic credentials.
func (c *Client) GetWithBasicAuth(ctx context.Context, path string, auth BasicAuth, query url.Values) (any, error) {
	return c.do(ctx, http.MethodGet, path, callOptions{basic: &auth, query: query})
}

// Post executes a bearer-authenticated POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path, token string, body any) (any, error) {
	return c.do(ctx, http.MethodPost, path, callOptions{token: token, body: body})
}

// do executes an HTTP request against NOVUS and returns the decoded JSON
// body. The method and path are logged at info level; tokens, basic
// credentials and bodies never are.
func (c *Client) do(ctx context.Context, method, path string, opts callOptions) (any, error) {
	fullURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(opts.query) > 0 {
		fullURL += "?" + opts.query.Encode()
	}

	var reqBody io.Reader
	if opts.body != nil {
		encoded, err := json.Marshal(opts.body)
		if err != nil {
			return nil, &ResponseError{Message: "failed to encode NOVUS request body: " + err.Error()}
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, &ConnectionError{URL: fullURL, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	// Bypass the ngrok free tier interstitial page.
	req.Header.Set("ngrok-skip-browser-warning", "true")

	// Bearer token or Basic credentials, never both.
	switch {
	case opts.token != "":
		req.Header.Set("Authorization", "Bearer "+opts.token)
	case opts.basic != nil:
		req.SetBasicAuth(opts.basic.Username, opts.basic.Password)
	}

	c.logger.InfoContext(ctx, "NOVUS request", slog.String("method", method), slog.String("path", path))

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &ConnectionError{URL: fullURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{URL: fullURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Detail:     safeJSONObject(raw),
		}
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, &ResponseError{
			Message:    "NOVUS " + method + " " + path + " returned non-JSON body",
			StatusCode: resp.StatusCode,
			Preview:    bodyPreview(raw),
		}
	}
	return body, nil
}

// safeJSONObject decodes raw as a JSON object; anything else (invalid
// JSON, array, scalar) becomes an empty detail map.
func safeJSONObject(raw []byte) map[string]any {
	var detail map[string]any
	if err := json.Unmarshal(raw, &detail); err != nil || detail == nil {
		return map[string]any{}
	}
	return detail
}

func bodyPreview(raw []byte) string {
	if len(raw) == 0 {
		return "(empty)"
	}
	if len(raw) > bodyPreviewLimit {
		raw = raw[:bodyPreviewLimit]
	}
	return string(raw)
}
