package session

import (
	"strings"
	"sync"
	"time"

	"go-portal-client/internal/model"
)

type Status int

const (
	StatusInitializing Status = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Manager is the single source of truth for "who is logged in". It wraps a
// Store and drives the Initializing -> {Authenticated, Unauthenticated}
// state machine. Safe for concurrent use.
type Manager struct {
	store Store
	now   func() time.Time

	mu             sync.RWMutex
	status         Status
	state          State
	adminEmails    map[string]struct{}
	adminUsernames map[string]struct{}
}

func NewManager(store Store, adminEmails []string, adminUsernames []string) *Manager {
	m := &Manager{
		store:          store,
		now:            time.Now,
		status:         StatusInitializing,
		adminEmails:    map[string]struct{}{},
		adminUsernames: map[string]struct{}{},
	}

	for _, email := range adminEmails {
		m.adminEmails[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	}
	for _, username := range adminUsernames {
		m.adminUsernames[strings.ToLower(strings.TrimSpace(username))] = struct{}{}
	}

	return m
}

// Initialize inspects the persisted state exactly once. A valid unexpired
// access token plus a user record means authenticated; anything else clears
// the store so stale state is never left dangling. Subsequent calls return
// the current status without touching the store again.
func (m *Manager) Initialize() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusInitializing {
		return m.status
	}

	state := m.store.Load()
	if TokenValid(state.AccessToken, m.now()) && state.User != nil {
		m.state = state
		m.status = StatusAuthenticated
		return m.status
	}

	_ = m.store.Clear()
	m.state = State{}
	m.status = StatusUnauthenticated
	return m.status
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Authenticated reports whether a well-formed, unexpired access token is
// held. Fails closed on any decode problem.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status == StatusAuthenticated && TokenValid(m.state.AccessToken, m.now())
}

func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.AccessToken
}

func (m *Manager) RefreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.RefreshToken
}

// CurrentUser returns the persisted user record, or nil when absent.
func (m *Manager) CurrentUser() *model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state.User == nil {
		return nil
	}

	user := *m.state.User
	return &user
}

// SetSession persists a full token pair plus user record as one unit and
// moves to Authenticated. This is the only path from Unauthenticated back to
// Authenticated.
func (m *Manager) SetSession(access string, refresh string, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := State{AccessToken: access, RefreshToken: refresh, User: user}
	if user != nil && model.KnownRole(user.Role) {
		state.CachedRole = user.Role
	}

	if err := m.store.Save(state); err != nil {
		return err
	}

	m.state = state
	m.status = StatusAuthenticated
	return nil
}

// SetAccessToken overwrites only the access token, leaving the refresh token
// and user record untouched. Used after a successful refresh.
func (m *Manager) SetAccessToken(access string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.state
	state.AccessToken = access

	if err := m.store.Save(state); err != nil {
		return err
	}

	m.state = state
	return nil
}

// Clear wipes persisted and in-memory state and moves to Unauthenticated.
// The in-memory transition happens even if the store removal fails.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.store.Clear()
	m.state = State{}
	m.status = StatusUnauthenticated
	return err
}

// Role derives the current user's role. Order: explicit role on the record,
// previously cached role, admin allow-list match, least-privileged fallback.
// The derivation is cached so repeated calls are deterministic for the
// session. This drives UI affordances only; the server authorizes every
// request on its own.
func (m *Manager) Role() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.User != nil && model.KnownRole(m.state.User.Role) {
		return m.state.User.Role
	}

	if model.KnownRole(m.state.CachedRole) {
		return m.state.CachedRole
	}

	role := model.RoleUser
	if m.state.User != nil && m.isAllowListedLocked(m.state.User) {
		role = model.RoleAdmin
	}

	if m.status == StatusAuthenticated {
		state := m.state
		state.CachedRole = role
		if err := m.store.Save(state); err == nil {
			m.state = state
		}
	}

	return role
}

// HasRole reports whether the derived role is in the given set. An empty set
// allows any authenticated role.
func (m *Manager) HasRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}

	current := m.Role()
	for _, role := range roles {
		if strings.EqualFold(strings.TrimSpace(role), current) {
			return true
		}
	}

	return false
}

func (m *Manager) isAllowListedLocked(user *model.User) bool {
	if _, ok := m.adminEmails[strings.ToLower(strings.TrimSpace(user.Email))]; ok {
		return true
	}

	_, ok := m.adminUsernames[strings.ToLower(strings.TrimSpace(user.Username))]
	return ok
}
