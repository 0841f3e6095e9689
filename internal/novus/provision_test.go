package novus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokenSource struct {
	token string
	err   error
	calls int
}

func (s *staticTokenSource) Authenticate(_ context.Context) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

// providerStub replays canned JSON per path and records call order and
// request payloads.
type providerStub struct {
	t         *testing.T
	responses map[string]providerResponse
	order     []string
	payloads  map[string]map[string]any
}

type providerResponse struct {
	status int
	body   string
}

func newProviderStub(t *testing.T) *providerStub {
	return &providerStub{
		t: t,
		responses: map[string]providerResponse{
			usersPath:       {status: 200, body: `{"id": 501}`},
			cardsPath:       {status: 200, body: `{"id": 900001, "number": "900001"}`},
			credentialsPath: {status: 200, body: `{"id": 77}`},
		},
		payloads: map[string]map[string]any{},
	}
}

func (p *providerStub) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.order = append(p.order, r.URL.Path)

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			p.payloads[r.URL.Path] = payload
		}

		resp, ok := p.responses[r.URL.Path]
		if !ok {
			p.t.Errorf("unexpected provider call: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}))
}

func newTestService(t *testing.T, stub *providerStub) (*ProvisionService, func()) {
	t.Helper()
	srv := stub.server()
	svc := NewProvisionService(NewClient(srv.URL, nil), &staticTokenSource{token: "tok"}, 0, nil)
	return svc, srv.Close
}

func TestProvision_FullSequence(t *testing.T) {
	t.Parallel()

	stub := newProviderStub(t)
	svc, done := newTestService(t, stub)
	defer done()

	result, err := svc.Provision(context.Background(), Guest{
		FirstName: "Ana",
		LastName:  "Guest",
		Email:     "a@x.com",
		Remark:    "visiting lab",
	})
	require.NoError(t, err)

	assert.Equal(t, "501", result.UserID)
	assert.Equal(t, "900001", result.CardID)
	assert.Equal(t, "77", result.CredentialID)
	assert.Equal(t, "900001", result.CardNumber)

	require.Equal(t, []string{usersPath, cardsPath, credentialsPath}, stub.order)

	userPayload := stub.payloads[usersPath]
	assert.Equal(t, "Ana", userPayload["firstName"])
	assert.Equal(t, "Guest", userPayload["lastName"])
	assert.Equal(t, "a@x.com", userPayload["email"])
	assert.Equal(t, "visiting lab", userPayload["remark"])
	assert.Equal(t, "Guest", userPayload["type"])

	cardPayload := stub.payloads[cardsPath]
	assert.Equal(t, "QRCode", cardPayload["type"])
	number, ok := cardPayload["number"].(string)
	require.True(t, ok)
	assert.Len(t, number, 6)

	credPayload := stub.payloads[credentialsPath]
	assert.Equal(t, float64(DefaultAccessLevel), credPayload["accessLevel"])
	assert.Equal(t, float64(501), credPayload["userId"])
	assert.Equal(t, []any{float64(900001)}, credPayload["cards"])
	assert.Equal(t, []any{float64(900001)}, credPayload["qrCodes"])

	expiration, ok := credPayload["expirationDate"].(string)
	require.True(t, ok)
	parsed, err := time.Parse(time.RFC3339, expiration)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(credentialValidity), parsed, time.Minute)
}

func TestProvision_CardNumberFromResponseIsAuthoritative(t *testing.T) {
	t.Parallel()

	stub := newProviderStub(t)
	stub.responses[cardsPath] = providerResponse{status: 200, body: `{"id": 12, "number": "000042"}`}
	svc, done := newTestService(t, stub)
	defer done()

	result, err := svc.Provision(context.Background(), Guest{FirstName: "A", LastName: "B", Email: "a@b.c"})
	require.NoError(t, err)

	sent, _ := stub.payloads[cardsPath]["number"].(string)
	assert.NotEqual(t, sent, "", "a candidate number must have been sent")
	assert.Equal(t, "000042", result.CardNumber, "response number wins over the candidate")
	assert.Equal(t, "12", result.CardID)
}

func TestProvision_AuthFailureAbortsBeforeAnyCall(t *testing.T) {
	t.Parallel()

	stub := newProviderStub(t)
	srv := stub.server()
	defer srv.Close()

	authErr := &AuthError{Message: "NOVUS credentials are not configured"}
	svc := NewProvisionService(NewClient(srv.URL, nil), &staticTokenSource{err: authErr}, 0, nil)

	_, err := svc.Provision(context.Background(), Guest{FirstName: "A", LastName: "B", Email: "a@b.c"})
	require.ErrorAs(t, err, &authErr)
	assert.Empty(t, stub.order)
}

func TestProvision_MissingUserIDIsResponseError(t *testing.T) {
	t.Parallel()

	stub := newProviderStub(t)
	stub.responses[usersPath] = providerResponse{status: 200, body: `{"name": "no id here"}`}
	svc, done := newTestService(t, stub)
	defer done()

	_, err := svc.Provision(context.Background(), Guest{FirstName: "A", LastName: "B", Email: "a@b.c"})

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, []string{usersPath}, stub.order, "sequence must stop at the first failure")
}

func TestProvision_CardFailureAbortsSequence(t *testing.T) {
	t.Parallel()

	stub := newProviderStub(t)
	stub.responses[cardsPath] = providerResponse{status: 500, body: `{"message": "card store down"}`}
	svc, done := newTestService(t, stub)
	defer done()

	_, err := svc.Provision(context.Background(), Guest{FirstName: "A", LastName: "B", Email: "a@b.c"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, []string{usersPath, cardsPath}, stub.order,
		"credential creation must not be attempted after card failure")
}

func TestProvision_MissingCredentialIDIsResponseError(t *testing.T) {
	t.Parallel()

	stub := newProviderStub(t)
	stub.responses[credentialsPath] = providerResponse{status: 200, body: `{}`}
	svc, done := newTestService(t, stub)
	defer done()

	_, err := svc.Provision(context.Background(), Guest{FirstName: "A", LastName: "B", Email: "a@b.c"})

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
}

func TestGenerateCardNumber(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		n := generateCardNumber()
		require.Len(t, n, 6)
		for _, r := range n {
			assert.True(t, r >= '0' && r <= '9', "card number must be numeric, got %q", n)
		}
		seen[n] = true
	}
	// Weak uniqueness sanity check only; the provider-returned value is
	// authoritative, so collisions here are tolerable.
	assert.Greater(t, len(seen), 50)
}

func TestJSONInt(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{float64(42), 42, true},
		{"42", 42, true},
		{"abc", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, tc := range cases {
		got, ok := jsonInt(tc.in)
		assert.Equal(t, tc.ok, ok)
		if ok {
			assert.Equal(t, tc.want, got)
		}
	}
}
