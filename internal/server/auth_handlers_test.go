package server

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Nihad1903/azmiu-guest-web/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	t.Parallel()

	s, app := newTestServer(t, &stubProvisioner{})
	user := createTestUser(t, s.db, "manager1", "correct-horse", models.RoleManager)

	t.Run("success", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/login", "",
			strings.NewReader(`{"username":"manager1","password":"correct-horse"}`))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Token        string      `json:"token"`
			RefreshToken string      `json:"refresh_token"`
			User         models.User `json:"user"`
		}
		decodeBody(t, resp, &body)
		assert.NotEmpty(t, body.Token)
		assert.NotEmpty(t, body.RefreshToken)
		assert.Equal(t, user.ID, body.User.ID)
		assert.Empty(t, body.User.Password, "password hash must never be serialized")
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/login", "",
			strings.NewReader(`{"username":"manager1","password":"nope"}`))
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown user", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/login", "",
			strings.NewReader(`{"username":"ghost","password":"pw"}`))
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/login", "",
			strings.NewReader(`{not json`))
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestTokenAuth_Basic(t *testing.T) {
	t.Parallel()

	s, app := newTestServer(t, &stubProvisioner{})
	createTestUser(t, s.db, "manager1", "correct-horse", models.RoleManager)

	t.Run("valid basic credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/", nil)
		req.Header.Set("Authorization",
			"Basic "+base64.StdEncoding.EncodeToString([]byte("manager1:correct-horse")))
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Token string `json:"token"`
		}
		decodeBody(t, resp, &body)
		assert.NotEmpty(t, body.Token)
	})

	t.Run("missing header", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet, "/api/auth/", "", nil)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbled base64", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/", nil)
		req.Header.Set("Authorization", "Basic %%%%")
		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	s, app := newTestServer(t, &stubProvisioner{})
	user := createTestUser(t, s.db, "manager1", "pw", models.RoleManager)

	refresh, err := s.generateToken(user, "refresh", refreshTokenTTL)
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/refresh", "",
			strings.NewReader(`{"refresh_token":"`+refresh+`"}`))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Token string `json:"token"`
		}
		decodeBody(t, resp, &body)
		require.NotEmpty(t, body.Token)

		// The minted access token must be usable on protected routes.
		authed := doJSON(t, app, http.MethodGet, "/api/users/me", body.Token, nil)
		defer func() { _ = authed.Body.Close() }()
		assert.Equal(t, http.StatusOK, authed.StatusCode)
	})

	t.Run("access token rejected as refresh", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/refresh", "",
			strings.NewReader(`{"refresh_token":"`+tokenFor(t, s, user)+`"}`))
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("missing token", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/refresh", "",
			strings.NewReader(`{}`))
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetMyProfile(t *testing.T) {
	t.Parallel()

	s, app := newTestServer(t, &stubProvisioner{})
	user := createTestUser(t, s.db, "manager1", "pw", models.RoleManager)

	resp := doJSON(t, app, http.MethodGet, "/api/users/me", tokenFor(t, s, user), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.User
	decodeBody(t, resp, &got)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, models.RoleManager, got.Role)
	assert.Empty(t, got.Password)
}

func TestRefreshTokenCannotAccessProtectedRoutes(t *testing.T) {
	t.Parallel()

	s, app := newTestServer(t, &stubProvisioner{})
	user := createTestUser(t, s.db, "manager1", "pw", models.RoleManager)

	refresh, err := s.generateToken(user, "refresh", refreshTokenTTL)
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodGet, "/api/users/me", refresh, nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
