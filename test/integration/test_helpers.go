//go:build integration

package integration

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"go-portal-client/internal/access"
	"go-portal-client/internal/client"
	"go-portal-client/internal/config"
	"go-portal-client/internal/logger"
	"go-portal-client/internal/model"
	"go-portal-client/internal/session"
)

const (
	testSecret = "integration-secret"
	signInPath = "/auth/signin"
)

type backendUser struct {
	password string
	user     model.User
}

// fakeBackend is an in-memory rendition of the portal API: HS256 token pairs,
// bearer-gated routes, role-gated user listing, and one CRUD collection.
type fakeBackend struct {
	t         *testing.T
	accessTTL time.Duration

	mu        sync.Mutex
	users     map[string]backendUser
	districts map[int64]model.District
	nextID    int64

	refreshCalls atomic.Int64
	logoutCalls  atomic.Int64
}

func newFakeBackend(t *testing.T, accessTTL time.Duration) *fakeBackend {
	return &fakeBackend{
		t:         t,
		accessTTL: accessTTL,
		users: map[string]backendUser{
			"admin": {password: "admin123", user: model.User{ID: 1, Username: "admin", Email: "admin@example.org", IsActive: true, Role: model.RoleAdmin}},
			"amira": {password: "amira123", user: model.User{ID: 2, Username: "amira", Email: "amira@example.org", IsActive: true, Role: model.RoleUser}},
		},
		districts: map[int64]model.District{},
		nextID:    100,
	}
}

func (b *fakeBackend) router() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/login/", b.login)
	r.Post("/api/token/refresh/", b.refresh)
	r.Post("/api/logout/", b.logout)

	r.Group(func(protected chi.Router) {
		protected.Use(b.requireAuth)

		protected.Get("/api/profile/", b.profile)
		protected.Get("/api/districts/", b.listDistricts)
		protected.Post("/api/districts/", b.createDistrict)
		protected.Delete("/api/districts/{id}/", b.deleteDistrict)
		protected.With(b.requireAdmin).Get("/users/", b.listUsers)
	})

	return r
}

func (b *fakeBackend) signToken(user model.User, typ string, ttl time.Duration) string {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      strconv.FormatInt(user.ID, 10),
		"username": user.Username,
		"role":     user.Role,
		"typ":      typ,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	})

	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(b.t, err)

	return signed
}

func (b *fakeBackend) parseToken(tokenString string, expectedType string) (jwt.MapClaims, bool) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, false
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}

	if typ, _ := claims["typ"].(string); typ != expectedType {
		return nil, false
	}

	return claims, true
}

func (b *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "invalid JSON body"})
		return
	}

	b.mu.Lock()
	account, exists := b.users[payload.Username]
	b.mu.Unlock()
	if !exists || account.password != payload.Password {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Invalid username or password"})
		return
	}

	writeJSON(w, http.StatusOK, model.LoginResult{
		Access:  b.signToken(account.user, "access", b.accessTTL),
		Refresh: b.signToken(account.user, "refresh", 24*time.Hour),
		User:    account.user,
	})
}

func (b *fakeBackend) refresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)

	var payload struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "invalid JSON body"})
		return
	}

	claims, ok := b.parseToken(payload.Refresh, "refresh")
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "refresh token is invalid"})
		return
	}

	username, _ := claims["username"].(string)
	b.mu.Lock()
	account, exists := b.users[username]
	b.mu.Unlock()
	if !exists {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "user not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access": b.signToken(account.user, "access", time.Hour)})
}

func (b *fakeBackend) logout(w http.ResponseWriter, r *http.Request) {
	b.logoutCalls.Add(1)
	writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

func (b *fakeBackend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "missing or invalid authorization header"})
			return
		}

		if _, ok := b.parseToken(strings.TrimSpace(header[7:]), "access"); !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "invalid or expired token"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (b *fakeBackend) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		claims, ok := b.parseToken(strings.TrimSpace(header[7:]), "access")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "invalid or expired token"})
			return
		}

		if role, _ := claims["role"].(string); role != model.RoleAdmin {
			writeJSON(w, http.StatusForbidden, map[string]any{"detail": "insufficient permissions"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (b *fakeBackend) profile(w http.ResponseWriter, r *http.Request) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	claims, _ := b.parseToken(strings.TrimSpace(header[7:]), "access")
	username, _ := claims["username"].(string)

	b.mu.Lock()
	account := b.users[username]
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, account.user)
}

func (b *fakeBackend) listDistricts(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	results := make([]model.District, 0, len(b.districts))
	for _, district := range b.districts {
		results = append(results, district)
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, model.Page[model.District]{Count: int64(len(results)), Results: results})
}

func (b *fakeBackend) createDistrict(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"name": []string{"This field is required."}})
		return
	}

	b.mu.Lock()
	b.nextID++
	district := model.District{ID: b.nextID, Name: payload.Name, CreatedAt: time.Now().UTC()}
	b.districts[district.ID] = district
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, district)
}

func (b *fakeBackend) deleteDistrict(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "invalid id"})
		return
	}

	b.mu.Lock()
	_, exists := b.districts[id]
	delete(b.districts, id)
	b.mu.Unlock()

	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "district not found"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (b *fakeBackend) listUsers(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	results := make([]model.User, 0, len(b.users))
	for _, account := range b.users {
		results = append(results, account.user)
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, model.Page[model.User]{Count: int64(len(results)), Results: results})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// portalEnv bundles a client plus the pieces needed to assert on session and
// guard behavior, backed by a real session file so restarts can be simulated.
type portalEnv struct {
	cfg     *config.Config
	client  *client.Client
	session *session.Manager
	guard   *access.Guard
}

func newPortalEnv(t *testing.T, baseURL string, sessionFile string, adminEmails ...string) *portalEnv {
	t.Helper()

	cfg := &config.Config{
		BaseURL:        baseURL,
		RequestTimeout: 5 * time.Second,
		SessionFile:    sessionFile,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		SignInPath:     signInPath,
		AdminEmails:    adminEmails,
	}
	require.NoError(t, cfg.Validate())

	sess := session.NewManager(session.NewFileStore(cfg.SessionFile), cfg.AdminEmails, cfg.AdminUsernames)
	sess.Initialize()

	log := slog.New(logger.NewPrettyHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	apiClient, err := client.New(cfg, sess, log)
	require.NoError(t, err)

	return &portalEnv{
		cfg:     cfg,
		client:  apiClient,
		session: sess,
		guard:   access.NewGuard(sess, cfg.SignInPath),
	}
}

func tempSessionFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "session.json")
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
