package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-portal-client/internal/model"
	"go-portal-client/pkg/apierror"
)

// authBackend fakes the token endpoints: protected paths accept only the
// current access token, and each refresh mints a fresh one.
type authBackend struct {
	t *testing.T

	mu             sync.Mutex
	currentAccess  string
	refreshStatus  int
	refreshDelay   time.Duration
	protectedCalls atomic.Int64
	refreshCalls   atomic.Int64
}

func newAuthBackend(t *testing.T, initialAccess string) *authBackend {
	return &authBackend{t: t, currentAccess: initialAccess, refreshStatus: http.StatusOK}
}

func (b *authBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		time.Sleep(b.refreshDelay)

		b.mu.Lock()
		defer b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if b.refreshStatus != http.StatusOK {
			w.WriteHeader(b.refreshStatus)
			_, _ = w.Write([]byte(`{"detail": "refresh token expired"}`))
			return
		}

		b.currentAccess = signedToken(b.t, time.Now().Add(2*time.Hour))
		_ = json.NewEncoder(w).Encode(map[string]string{"access": b.currentAccess})
	})

	mux.HandleFunc("/api/members/", func(w http.ResponseWriter, r *http.Request) {
		b.protectedCalls.Add(1)

		b.mu.Lock()
		valid := "Bearer " + b.currentAccess
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != valid {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail": "token expired"}`))
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	return mux
}

func TestDoWithAuthRetry_RefreshAndReplay(t *testing.T) {
	stale := signedToken(t, time.Now().Add(time.Hour))
	backend := newAuthBackend(t, "rotated-away")
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	c, sess := newTestClient(t, server.URL)
	require.NoError(t, sess.SetSession(stale, "refresh-token", &model.User{ID: 1, Username: "amira"}))

	var out map[string]string
	err := c.DoWithAuthRetry(context.Background(), Request{Method: http.MethodGet, Endpoint: "/api/members/"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, int64(2), backend.protectedCalls.Load(), "original call replayed exactly once")
	assert.Equal(t, int64(1), backend.refreshCalls.Load())
	// only the access token was overwritten
	assert.Equal(t, "refresh-token", sess.RefreshToken())
	assert.NotEqual(t, stale, sess.AccessToken())
}

func TestDoWithAuthRetry_RefreshFailureClearsSession(t *testing.T) {
	backend := newAuthBackend(t, "rotated-away")
	backend.refreshStatus = http.StatusUnauthorized
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	c, sess := newTestClient(t, server.URL)
	require.NoError(t, sess.SetSession(signedToken(t, time.Now().Add(time.Hour)), "refresh-token", &model.User{ID: 1}))

	err := c.DoWithAuthRetry(context.Background(), Request{Method: http.MethodGet, Endpoint: "/api/members/"}, nil)
	require.Error(t, err)

	// the refresh's own error is what propagates
	apiErr := apierror.From(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, "refresh token expired", apiErr.Message)

	assert.False(t, c.IsAuthenticated())
	assert.Empty(t, sess.AccessToken())
	assert.Empty(t, sess.RefreshToken())
	assert.Equal(t, int64(1), backend.protectedCalls.Load(), "no replay after failed refresh")
}

func TestDoWithAuthRetry_NoRefreshTokenPropagates401(t *testing.T) {
	backend := newAuthBackend(t, "rotated-away")
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	c, sess := newTestClient(t, server.URL)
	require.NoError(t, sess.SetSession(signedToken(t, time.Now().Add(time.Hour)), "", &model.User{ID: 1}))

	err := c.DoWithAuthRetry(context.Background(), Request{Method: http.MethodGet, Endpoint: "/api/members/"}, nil)
	require.Error(t, err)

	assert.True(t, apierror.IsAuth(err))
	assert.Equal(t, int64(0), backend.refreshCalls.Load())
	assert.Equal(t, int64(1), backend.protectedCalls.Load())
}

func TestDoWithAuthRetry_SecondUnauthorizedNotRetried(t *testing.T) {
	backend := newAuthBackend(t, "rotated-away")
	handler := backend.handler()
	// rotate the valid token again right after each refresh so the replayed
	// call is rejected too
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
		if strings.HasPrefix(r.URL.Path, "/api/token/refresh/") {
			backend.mu.Lock()
			backend.currentAccess = "rotated-again"
			backend.mu.Unlock()
		}
	}))
	t.Cleanup(server.Close)

	c, sess := newTestClient(t, server.URL)
	require.NoError(t, sess.SetSession(signedToken(t, time.Now().Add(time.Hour)), "refresh-token", &model.User{ID: 1}))

	err := c.DoWithAuthRetry(context.Background(), Request{Method: http.MethodGet, Endpoint: "/api/members/"}, nil)
	require.Error(t, err)
	assert.True(t, apierror.IsAuth(err))
	assert.Equal(t, int64(1), backend.refreshCalls.Load(), "at most one refresh per call")
	assert.Equal(t, int64(2), backend.protectedCalls.Load(), "replay happens once, then stops")
}

func TestDoWithAuthRetry_ConcurrentRefreshesDeduplicated(t *testing.T) {
	backend := newAuthBackend(t, "rotated-away")
	backend.refreshDelay = 150 * time.Millisecond
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	c, sess := newTestClient(t, server.URL)
	require.NoError(t, sess.SetSession(signedToken(t, time.Now().Add(time.Hour)), "refresh-token", &model.User{ID: 1}))

	const workers = 5
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = c.DoWithAuthRetry(context.Background(), Request{Method: http.MethodGet, Endpoint: "/api/members/"}, nil)
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "worker %d", i)
	}
	assert.Equal(t, int64(1), backend.refreshCalls.Load(), "concurrent 401s share one refresh")
}

func TestDoWithAuthRetry_RefreshSurvivesCallerCancellation(t *testing.T) {
	backend := newAuthBackend(t, "rotated-away")
	backend.refreshDelay = 150 * time.Millisecond
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	c, sess := newTestClient(t, server.URL)
	require.NoError(t, sess.SetSession(signedToken(t, time.Now().Add(time.Hour)), "refresh-token", &model.User{ID: 1}))

	// the caller gives up while the refresh is still in flight
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.DoWithAuthRetry(ctx, Request{Method: http.MethodGet, Endpoint: "/api/members/"}, nil)
	require.Error(t, err)
	assert.True(t, apierror.IsNetwork(err), "only the replay fails, on the caller's dead context")

	// the detached refresh completed and the renewed session survives
	assert.True(t, c.IsAuthenticated())
	assert.Equal(t, "refresh-token", sess.RefreshToken())
	assert.Equal(t, int64(1), backend.refreshCalls.Load())
}

func TestLogin_PersistsSessionAtomically(t *testing.T) {
	access := signedToken(t, time.Now().Add(time.Hour))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/login/", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(model.LoginResult{
			Access:  access,
			Refresh: "refresh-token",
			User:    model.User{ID: 9, Username: "amira", Role: model.RoleAdmin},
		})
	}))
	t.Cleanup(server.Close)

	c, sess := newTestClient(t, server.URL)

	result, err := c.Login(context.Background(), model.LoginRequest{Username: "amira", Password: "s3cret"})
	require.NoError(t, err)

	assert.Equal(t, "amira", result.User.Username)
	assert.True(t, c.IsAuthenticated())
	assert.Equal(t, access, sess.AccessToken())
	assert.Equal(t, "refresh-token", sess.RefreshToken())
	require.NotNil(t, c.CurrentUser())
	assert.Equal(t, int64(9), c.CurrentUser().ID)
}

func TestLogin_RejectsEmptyCredentialsWithoutNetworkCall(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	t.Cleanup(server.Close)

	c, _ := newTestClient(t, server.URL)

	_, err := c.Login(context.Background(), model.LoginRequest{Username: "amira"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Zero(t, calls)
}

func TestLogout_AlwaysClearsLocally(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	c, sess := newTestClient(t, server.URL)
	authenticate(t, sess)
	require.True(t, c.IsAuthenticated())

	require.NoError(t, c.Logout(context.Background()))
	assert.False(t, c.IsAuthenticated())
	assert.Nil(t, c.CurrentUser())
}

func TestLogout_ClearsEvenWhenServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c, sess := newTestClient(t, server.URL)
	authenticate(t, sess)

	require.NoError(t, c.Logout(context.Background()))
	assert.False(t, c.IsAuthenticated())
}

func TestRefresh_WithoutTokenFailsClosed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no network call expected")
	}))
	t.Cleanup(server.Close)

	c, _ := newTestClient(t, server.URL)

	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apierror.IsAuth(err))
}

func TestIsAuthenticated_ExpiredTokenIsFalse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(server.Close)

	c, sess := newTestClient(t, server.URL)
	require.NoError(t, sess.SetSession(signedToken(t, time.Now().Add(-time.Minute)), "refresh", &model.User{ID: 1}))

	assert.False(t, c.IsAuthenticated())
}
