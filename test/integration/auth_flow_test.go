//go:build integration

package integration

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-portal-client/internal/model"
	"go-portal-client/pkg/apierror"
)

func TestLoginThenProtectedCall(t *testing.T) {
	backend := newFakeBackend(t, 15*time.Minute)
	server := httptest.NewServer(backend.router())
	t.Cleanup(server.Close)

	env := newPortalEnv(t, server.URL, tempSessionFile(t))
	ctx := context.Background()

	result, err := env.client.Login(ctx, model.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	assert.Equal(t, "admin", result.User.Username)
	assert.True(t, env.client.IsAuthenticated())

	profile, err := env.client.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.org", profile.Email)
	assert.Equal(t, int64(0), backend.refreshCalls.Load())
}

func TestLogin_BadCredentialsNormalized(t *testing.T) {
	backend := newFakeBackend(t, 15*time.Minute)
	server := httptest.NewServer(backend.router())
	t.Cleanup(server.Close)

	env := newPortalEnv(t, server.URL, tempSessionFile(t))

	_, err := env.client.Login(context.Background(), model.LoginRequest{Username: "admin", Password: "wrong"})
	require.Error(t, err)

	apiErr := apierror.From(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, "Invalid username or password", apiErr.Message)
	assert.False(t, env.client.IsAuthenticated())
}

func TestExpiredAccessTokenRefreshedTransparently(t *testing.T) {
	// login hands out an already-expired access token alongside a valid
	// refresh token
	backend := newFakeBackend(t, -time.Minute)
	server := httptest.NewServer(backend.router())
	t.Cleanup(server.Close)

	env := newPortalEnv(t, server.URL, tempSessionFile(t))
	ctx := context.Background()

	_, err := env.client.Login(ctx, model.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	created, err := env.client.Districts.Create(ctx, map[string]string{"name": "North"})
	require.NoError(t, err)
	assert.Equal(t, "North", created.Name)
	assert.Equal(t, int64(1), backend.refreshCalls.Load(), "one refresh, then the original call replayed")

	// the renewed access token is reused afterwards without further refreshes
	page, err := env.client.Districts.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Count)
	assert.Equal(t, int64(1), backend.refreshCalls.Load())
}

func TestResourceCRUDRoundTrip(t *testing.T) {
	backend := newFakeBackend(t, 15*time.Minute)
	server := httptest.NewServer(backend.router())
	t.Cleanup(server.Close)

	env := newPortalEnv(t, server.URL, tempSessionFile(t))
	ctx := context.Background()

	_, err := env.client.Login(ctx, model.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	created, err := env.client.Districts.Create(ctx, map[string]string{"name": "East"})
	require.NoError(t, err)

	page, err := env.client.Districts.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "East", page.Results[0].Name)

	require.NoError(t, env.client.Districts.Delete(ctx, created.ID))

	page, err = env.client.Districts.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, page.Results)
}

func TestCreateValidationErrorCarriesFieldDetail(t *testing.T) {
	backend := newFakeBackend(t, 15*time.Minute)
	server := httptest.NewServer(backend.router())
	t.Cleanup(server.Close)

	env := newPortalEnv(t, server.URL, tempSessionFile(t))
	ctx := context.Background()

	_, err := env.client.Login(ctx, model.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	_, err = env.client.Districts.Create(ctx, map[string]string{"name": ""})
	require.Error(t, err)

	apiErr := apierror.From(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, "name: This field is required.", apiErr.Message)
	assert.True(t, apierror.IsValidation(err))
}

func TestLogoutClearsLocalAndCallsServer(t *testing.T) {
	backend := newFakeBackend(t, 15*time.Minute)
	server := httptest.NewServer(backend.router())
	t.Cleanup(server.Close)

	env := newPortalEnv(t, server.URL, tempSessionFile(t))
	ctx := context.Background()

	_, err := env.client.Login(ctx, model.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	require.NoError(t, env.client.Logout(ctx))
	assert.False(t, env.client.IsAuthenticated())
	assert.Nil(t, env.client.CurrentUser())
	assert.Equal(t, int64(1), backend.logoutCalls.Load())
}

func TestSessionSurvivesRestart(t *testing.T) {
	backend := newFakeBackend(t, time.Hour)
	server := httptest.NewServer(backend.router())
	t.Cleanup(server.Close)

	sessionFile := tempSessionFile(t)
	first := newPortalEnv(t, server.URL, sessionFile)

	_, err := first.client.Login(context.Background(), model.LoginRequest{Username: "amira", Password: "amira123"})
	require.NoError(t, err)

	// a fresh bootstrap against the same session file picks the session up
	second := newPortalEnv(t, server.URL, sessionFile)
	assert.True(t, second.client.IsAuthenticated())
	require.NotNil(t, second.client.CurrentUser())
	assert.Equal(t, "amira", second.client.CurrentUser().Username)
}

func TestExpiredSessionAtStartupIsCleared(t *testing.T) {
	backend := newFakeBackend(t, -time.Minute)
	server := httptest.NewServer(backend.router())
	t.Cleanup(server.Close)

	sessionFile := tempSessionFile(t)
	first := newPortalEnv(t, server.URL, sessionFile)

	_, err := first.client.Login(context.Background(), model.LoginRequest{Username: "amira", Password: "amira123"})
	require.NoError(t, err)

	// restart: the persisted access token is expired, so startup degrades to
	// signed out and clears the stale state
	second := newPortalEnv(t, server.URL, sessionFile)
	assert.False(t, second.client.IsAuthenticated())
	assert.Nil(t, second.client.CurrentUser())
}
