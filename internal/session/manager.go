package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/metrics"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/store"
)

var (
	// ErrNotLoggedIn is returned by Restore when no token is stored.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrSessionExpired is returned by Restore when the stored token was
	// rejected.
	ErrSessionExpired = errors.New("session expired")
)

// refreshMargin is how close to expiry a restored token gets refreshed.
const refreshMargin = 5 * time.Minute

// CompanyDirectory is the company cache as seen by the session.
type CompanyDirectory interface {
	CompanyNames
	Refresh(ctx context.Context) error
	Clear()
}

// ManagerConfig holds the collaborators of a Manager.
type ManagerConfig struct {
	API       *client.Client
	Store     store.Store
	Companies CompanyDirectory
	// OnTeardown runs after the session was torn down by a 401.
	OnTeardown func(reason string)
}

// Manager owns one login session. It is the only writer of the token, the
// persisted session keys and the resolver.
type Manager struct {
	api        *client.Client
	st         store.Store
	companies  CompanyDirectory
	resolver   *Resolver
	onTeardown func(string)

	mu      sync.RWMutex
	userID  string
	profile *models.UserInfo
}

// NewManager creates a manager and installs its 401 handler on the client.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		api:        cfg.API,
		st:         cfg.Store,
		companies:  cfg.Companies,
		resolver:   NewResolver(cfg.Store, cfg.Companies),
		onTeardown: cfg.OnTeardown,
	}
	cfg.API.SetUnauthorizedHandler(func() { m.Teardown("unauthorized") })
	return m
}

// Resolver returns the session resolver.
func (m *Manager) Resolver() *Resolver {
	return m.resolver
}

// API returns the backend client bound to this session.
func (m *Manager) API() *client.Client {
	return m.api
}

// UserID returns the logged-in user id.
func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// LoggedIn reports whether a token is held.
func (m *Manager) LoggedIn() bool {
	return m.api.AuthToken() != ""
}

// Login authenticates with username and password and bootstraps the
// session context.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	creds, err := m.api.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return m.start(ctx, creds)
}

// LoginOAuth completes a provider login with the callback code.
func (m *Manager) LoginOAuth(ctx context.Context, provider, code string) error {
	if _, ok := client.LookupOAuthProvider(provider); !ok {
		return fmt.Errorf("unknown login provider %q", provider)
	}
	creds, err := m.api.LoginOAuth(ctx, provider, code)
	if err != nil {
		return err
	}
	return m.start(ctx, creds)
}

func (m *Manager) start(ctx context.Context, creds *client.Credentials) error {
	// A new login never inherits the context of a previous one.
	if err := m.st.Delete(ctx, store.KeyContext, store.KeyCursor); err != nil {
		logging.Warn("clear previous context failed", logging.Err(err))
	}
	if err := m.saveCredentials(ctx, creds); err != nil {
		return err
	}
	m.bootstrap(ctx)
	return nil
}

func (m *Manager) saveCredentials(ctx context.Context, creds *client.Credentials) error {
	if err := store.SetJSON(ctx, m.st, store.KeyToken, creds.Token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	if creds.UserID != "" {
		if err := store.SetJSON(ctx, m.st, store.KeyUserID, creds.UserID); err != nil {
			return fmt.Errorf("persist user id: %w", err)
		}
		m.mu.Lock()
		m.userID = creds.UserID
		m.mu.Unlock()
	}
	return nil
}

// Restore resumes a persisted session: the stored token is validated (and
// refreshed when close to expiry) before the context is resolved again.
func (m *Manager) Restore(ctx context.Context) error {
	token, err := store.GetString(ctx, m.st, store.KeyToken)
	if errors.Is(err, store.ErrNotFound) || token == "" {
		return ErrNotLoggedIn
	}
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	m.api.SetAuthToken(token)

	ok, err := m.api.ValidateToken(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionExpired
	}

	// A refresh the backend rejects ends the session through the 401
	// handler. Any other failure keeps the validated token until it
	// actually expires.
	if creds, refreshed, err := m.api.RefreshIfExpiring(ctx, refreshMargin); err != nil {
		if client.IsUnauthorized(err) {
			return ErrSessionExpired
		}
		logging.Warn("token refresh failed, keeping current token", logging.Err(err))
	} else if refreshed {
		if creds.UserID == "" {
			creds.UserID, _ = store.GetString(ctx, m.st, store.KeyUserID)
		}
		if err := m.saveCredentials(ctx, creds); err != nil {
			return err
		}
	}

	if userID, err := store.GetString(ctx, m.st, store.KeyUserID); err == nil {
		m.mu.Lock()
		m.userID = userID
		m.mu.Unlock()
	}
	m.bootstrap(ctx)
	return nil
}

// bootstrap resolves the session context: roles, then profile and
// companies. A role fetch failure leaves the resolver pending with the
// error recorded.
func (m *Manager) bootstrap(ctx context.Context) {
	m.resolver.Begin(ctx)

	if m.companies != nil {
		if err := m.companies.Refresh(ctx); err != nil {
			logging.Warn("company list unavailable", logging.Err(err))
		}
	}

	roles, err := m.api.GetUserRoles(ctx)
	if err != nil {
		if !m.LoggedIn() {
			return
		}
		logging.Warn("role fetch failed", logging.Err(err))
		m.resolver.RolesFailed(err)
		return
	}
	if err := store.SetJSON(ctx, m.st, store.KeyRoles, roles); err != nil {
		logging.Warn("persist roles failed", logging.Err(err))
	}
	if err := m.resolver.SetRoles(ctx, roles); err != nil {
		logging.Warn("persist context failed", logging.Err(err))
	}

	if _, err := m.Profile(ctx); err != nil && m.LoggedIn() {
		logging.Warn("profile fetch failed", logging.Err(err))
	}
}

// RetryRoles fetches the role list again after a failure.
func (m *Manager) RetryRoles(ctx context.Context) error {
	roles, err := m.api.GetUserRoles(ctx)
	if err != nil {
		m.resolver.RolesFailed(err)
		return err
	}
	if err := store.SetJSON(ctx, m.st, store.KeyRoles, roles); err != nil {
		logging.Warn("persist roles failed", logging.Err(err))
	}
	return m.resolver.SetRoles(ctx, roles)
}

// Roles returns the role records of the user.
func (m *Manager) Roles() []models.RoleRecord {
	return m.resolver.Records()
}

// Select chooses a selector option.
func (m *Manager) Select(ctx context.Context, optionID string) (Role, error) {
	role, err := m.resolver.Select(ctx, optionID)
	if err != nil {
		return nil, err
	}
	// The library cursor belongs to the previous company.
	if err := m.st.Delete(ctx, store.KeyCursor); err != nil {
		logging.Warn("remove library cursor failed", logging.Err(err))
	}
	return role, nil
}

// Profile returns the user profile: cached in memory, then from the store,
// then from the backend.
func (m *Manager) Profile(ctx context.Context) (*models.UserInfo, error) {
	m.mu.RLock()
	if m.profile != nil {
		p := *m.profile
		m.mu.RUnlock()
		return &p, nil
	}
	userID := m.userID
	m.mu.RUnlock()

	var cached models.UserInfo
	if err := store.GetJSON(ctx, m.st, store.KeyUserInfo, &cached); err == nil && cached.UserID == userID {
		m.setProfile(&cached)
		return &cached, nil
	}

	if userID == "" {
		return nil, ErrNotLoggedIn
	}
	info, err := m.api.GetUserInfo(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := store.SetJSON(ctx, m.st, store.KeyUserInfo, info); err != nil {
		logging.Warn("persist profile failed", logging.Err(err))
	}
	m.setProfile(info)
	return info, nil
}

func (m *Manager) setProfile(p *models.UserInfo) {
	cp := *p
	m.mu.Lock()
	m.profile = &cp
	m.mu.Unlock()
}

// Logout ends the session and clears every persisted session key.
func (m *Manager) Logout(ctx context.Context) error {
	metrics.RecordTeardown("logout")
	return m.clear(ctx)
}

// Teardown ends the session after the backend rejected the token. It runs
// from the client's 401 handler, so it uses its own context.
func (m *Manager) Teardown(reason string) {
	metrics.RecordTeardown(reason)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.clear(ctx); err != nil {
		logging.Error("session teardown failed", logging.Err(err))
	}
	logging.Info("session torn down", logging.String("reason", reason))
	if m.onTeardown != nil {
		m.onTeardown(reason)
	}
}

func (m *Manager) clear(ctx context.Context) error {
	m.api.SetAuthToken("")
	m.mu.Lock()
	m.userID = ""
	m.profile = nil
	m.mu.Unlock()
	if m.companies != nil {
		m.companies.Clear()
	}
	if err := m.resolver.Reset(ctx); err != nil {
		logging.Warn("reset resolver failed", logging.Err(err))
	}
	return store.ClearSession(ctx, m.st)
}
