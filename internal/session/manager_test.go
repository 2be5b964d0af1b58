package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/store"
)

type fakeBackend struct {
	roles     []models.RoleRecord
	rejectAll atomic.Bool
	// token is the accepted bearer token; "tok-1" when empty.
	token         string
	refreshStatus int
}

func (b *fakeBackend) accepted() string {
	if b.token != "" {
		return b.token
	}
	return "tok-1"
}

func (b *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("login form: %v", err)
		}
		if r.FormValue("grant_type") != "password" || r.FormValue("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Incorrect username or password"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1", "user_id": "u1"})
	})
	authed := func(fn http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if b.rejectAll.Load() || r.Header.Get("Authorization") != "Bearer "+b.accepted() {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fn(w, r)
		}
	}
	mux.HandleFunc("/validate_token", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	mux.HandleFunc("/user_role/get_user_roles", authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(b.roles)
	}))
	mux.HandleFunc("/login/refresh", authed(func(w http.ResponseWriter, r *http.Request) {
		if b.refreshStatus != 0 {
			w.WriteHeader(b.refreshStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": b.accepted(), "user_id": "u1"})
	}))
	mux.HandleFunc("/user/get_by_id", authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.UserInfo{UserID: r.URL.Query().Get("user_id"), Name: "Ada"})
	}))
	return mux
}

func newTestManager(t *testing.T, b *fakeBackend) (*Manager, *store.Memory, *atomic.Int32) {
	t.Helper()
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)

	st := store.NewMemory()
	var teardowns atomic.Int32
	m := NewManager(ManagerConfig{
		API:        client.New(client.Config{BaseURL: srv.URL}),
		Store:      st,
		OnTeardown: func(string) { teardowns.Add(1) },
	})
	return m, st, &teardowns
}

func TestManagerLogin(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{roles: []models.RoleRecord{rec("", models.RoleUser)}}
	m, st, _ := newTestManager(t, b)

	if err := m.Login(ctx, "ada", "wrong"); !client.IsUnauthorized(err) {
		t.Fatalf("Login(wrong) err = %v, want unauthorized", err)
	}
	if err := m.Login(ctx, "ada", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if tok, _ := store.GetString(ctx, st, store.KeyToken); tok != "tok-1" {
		t.Errorf("persisted token = %q", tok)
	}
	if m.UserID() != "u1" {
		t.Errorf("UserID = %q", m.UserID())
	}
	if _, ok := m.Resolver().Selected().(UserRole); !ok || m.Resolver().State() != Resolved {
		t.Errorf("resolver = %v / %v, want user / resolved", m.Resolver().State(), m.Resolver().Selected())
	}
	p, err := m.Profile(ctx)
	if err != nil || p.Name != "Ada" {
		t.Errorf("Profile = %+v, %v", p, err)
	}
}

func TestManagerRestore(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{roles: []models.RoleRecord{rec("c1", models.RoleAdmin), rec("c2", models.RoleAdmin)}}
	m, st, _ := newTestManager(t, b)

	if err := m.Restore(ctx); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("Restore without token err = %v", err)
	}

	store.SetJSON(ctx, st, store.KeyToken, "tok-1")
	store.SetJSON(ctx, st, store.KeyUserID, "u1")
	store.SetJSON(ctx, st, store.KeyContext, Encode(CompanyRole{CompanyID: "c2", Level: models.RoleAdmin}))

	if err := m.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := m.Resolver().Selected(); got == nil || got.Company() != "c2" {
		t.Errorf("Selected = %v, want c2", got)
	}
}

func TestManagerRestoreRejectedToken(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{}
	m, st, teardowns := newTestManager(t, b)
	store.SetJSON(ctx, st, store.KeyToken, "stale")

	if err := m.Restore(ctx); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Restore err = %v, want ErrSessionExpired", err)
	}
	if _, err := st.Get(ctx, store.KeyToken); !errors.Is(err, store.ErrNotFound) {
		t.Error("rejected token left in storage")
	}
	if teardowns.Load() != 1 {
		t.Errorf("teardowns = %d, want 1", teardowns.Load())
	}
}

func expiringToken(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestRestoreRefreshFailures(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantErr       error
		wantLoggedIn  bool
		wantTeardowns int32
	}{
		{"server error keeps token", http.StatusInternalServerError, nil, true, 0},
		{"rejected refresh ends session", http.StatusUnauthorized, ErrSessionExpired, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tok := expiringToken(t)
			b := &fakeBackend{
				roles:         []models.RoleRecord{rec("", models.RoleUser)},
				token:         tok,
				refreshStatus: tt.status,
			}
			m, st, teardowns := newTestManager(t, b)
			store.SetJSON(ctx, st, store.KeyToken, tok)
			store.SetJSON(ctx, st, store.KeyUserID, "u1")

			err := m.Restore(ctx)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Restore err = %v, want %v", err, tt.wantErr)
			}
			if m.LoggedIn() != tt.wantLoggedIn {
				t.Errorf("LoggedIn = %v, want %v", m.LoggedIn(), tt.wantLoggedIn)
			}
			if teardowns.Load() != tt.wantTeardowns {
				t.Errorf("teardowns = %d, want %d", teardowns.Load(), tt.wantTeardowns)
			}
			if tt.wantLoggedIn && m.Resolver().State() != Resolved {
				t.Errorf("resolver state = %v, want resolved", m.Resolver().State())
			}
		})
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{roles: []models.RoleRecord{rec("", models.RoleUser)}}
	m, st, teardowns := newTestManager(t, b)

	if err := m.Login(ctx, "ada", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	store.SetJSON(ctx, st, store.KeyCompanies, []models.Company{{CompanyID: "c1"}})
	store.SetJSON(ctx, st, store.KeyCursor, map[string]string{"current": "x"})

	b.rejectAll.Store(true)
	if _, err := m.API().GetUserRoles(ctx); !client.IsUnauthorized(err) {
		t.Fatalf("GetUserRoles err = %v, want unauthorized", err)
	}

	if keys := st.Keys(); len(keys) != 0 {
		t.Errorf("persisted keys after 401: %v", keys)
	}
	if m.API().AuthToken() != "" || m.LoggedIn() {
		t.Error("token still held after 401")
	}
	if m.Resolver().State() != Uninitialized {
		t.Errorf("resolver state = %v, want uninitialized", m.Resolver().State())
	}
	if teardowns.Load() != 1 {
		t.Errorf("teardowns = %d, want 1", teardowns.Load())
	}
}

func TestManagerLogout(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{roles: []models.RoleRecord{rec("", models.RoleUser)}}
	m, st, teardowns := newTestManager(t, b)

	m.Login(ctx, "ada", "secret")
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if keys := st.Keys(); len(keys) != 0 {
		t.Errorf("persisted keys after logout: %v", keys)
	}
	if teardowns.Load() != 0 {
		t.Error("logout must not report a teardown")
	}
}
