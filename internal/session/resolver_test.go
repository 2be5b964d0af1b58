package session

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/store"
)

type names map[string]string

func (n names) Name(id string) (string, bool) {
	v, ok := n[id]
	return v, ok
}

func rec(companyID string, kind models.RoleKind) models.RoleRecord {
	if companyID == "" {
		return models.RoleRecord{Role: kind}
	}
	return models.RoleRecord{CompanyID: &companyID, Role: kind}
}

func newTestResolver(t *testing.T) (*Resolver, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	r := NewResolver(st, names{"c1": "Bean There", "c2": "Brew Lab"})
	r.Begin(context.Background())
	return r, st
}

func TestAutoSelection(t *testing.T) {
	tests := []struct {
		name      string
		roles     []models.RoleRecord
		wantState State
		wantRole  Role
		persisted string // sentinel or company id, "" when nothing persisted
	}{
		{
			name:      "single user role",
			roles:     []models.RoleRecord{rec("", models.RoleUser)},
			wantState: Resolved,
			wantRole:  UserRole{},
			persisted: SentinelUser,
		},
		{
			name:      "super admin and user",
			roles:     []models.RoleRecord{rec("", models.RoleSuperAdmin), rec("", models.RoleUser)},
			wantState: Resolved,
			wantRole:  UserRole{},
			persisted: SentinelUser,
		},
		{
			name: "super admin, user and company admin",
			roles: []models.RoleRecord{
				rec("c1", models.RoleAdmin), rec("", models.RoleSuperAdmin), rec("", models.RoleUser),
			},
			wantState: Resolved,
			wantRole:  UserRole{},
			persisted: SentinelUser,
		},
		{
			name:      "two company roles",
			roles:     []models.RoleRecord{rec("c1", models.RoleAdmin), rec("c2", models.RoleModerator)},
			wantState: AwaitingChoice,
		},
		{
			name:      "company role and user",
			roles:     []models.RoleRecord{rec("c1", models.RoleAdmin), rec("", models.RoleUser)},
			wantState: AwaitingChoice,
		},
		{
			name:      "super admin alone",
			roles:     []models.RoleRecord{rec("", models.RoleSuperAdmin)},
			wantState: Resolved,
		},
		{
			name:      "super admin with company role",
			roles:     []models.RoleRecord{rec("", models.RoleSuperAdmin), rec("c1", models.RoleAdmin)},
			wantState: Resolved,
		},
		{
			name:      "no roles",
			roles:     []models.RoleRecord{},
			wantState: Resolved,
		},
		{
			name:      "admin record without company is ignored",
			roles:     []models.RoleRecord{rec("", models.RoleAdmin)},
			wantState: Resolved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r, st := newTestResolver(t)

			if err := r.SetRoles(ctx, tt.roles); err != nil {
				t.Fatalf("SetRoles: %v", err)
			}
			if got := r.State(); got != tt.wantState {
				t.Errorf("State = %v, want %v", got, tt.wantState)
			}
			if got := r.Selected(); !SameRole(got, tt.wantRole) {
				t.Errorf("Selected = %v, want %v", got, tt.wantRole)
			}

			var p Persisted
			err := store.GetJSON(ctx, st, store.KeyContext, &p)
			if tt.persisted == "" {
				if !errors.Is(err, store.ErrNotFound) {
					t.Errorf("unexpected persisted context %+v", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("persisted context: %v", err)
			}
			if p.CompanyID != tt.persisted || p.Role.Company() != tt.persisted {
				t.Errorf("persisted = %+v, want sentinel %q", p, tt.persisted)
			}
		})
	}
}

func TestSelectorOptions(t *testing.T) {
	ctx := context.Background()

	t.Run("company roles only", func(t *testing.T) {
		r, _ := newTestResolver(t)
		r.SetRoles(ctx, []models.RoleRecord{rec("c1", models.RoleAdmin), rec("c2", models.RoleModerator)})

		opts := r.Options()
		if len(opts) != 2 {
			t.Fatalf("Options = %d entries, want 2: %+v", len(opts), opts)
		}
		for _, o := range opts {
			if o.ID == SentinelUser || o.ID == SentinelSuperAdmin {
				t.Errorf("unexpected non-company option %q", o.ID)
			}
		}
		if opts[0].CompanyName != "Bean There" || opts[1].CompanyName != "Brew Lab" {
			t.Errorf("names = %q, %q", opts[0].CompanyName, opts[1].CompanyName)
		}
	})

	t.Run("with user role", func(t *testing.T) {
		r, _ := newTestResolver(t)
		r.SetRoles(ctx, []models.RoleRecord{rec("c1", models.RoleAdmin), rec("", models.RoleUser)})

		opts := r.Options()
		if len(opts) != 2 || opts[0].ID != SentinelUser || opts[0].CompanyName != "Pure user" {
			t.Errorf("Options = %+v", opts)
		}
	})

	t.Run("unknown company shows loading", func(t *testing.T) {
		r, _ := newTestResolver(t)
		r.SetRoles(ctx, []models.RoleRecord{rec("c9", models.RoleAdmin)})

		avail := r.Available()
		if len(avail) != 1 || avail[0].CompanyName != LoadingName {
			t.Errorf("Available = %+v", avail)
		}
	})
}

func TestSelectFromSelector(t *testing.T) {
	ctx := context.Background()
	r, st := newTestResolver(t)
	r.SetRoles(ctx, []models.RoleRecord{rec("c1", models.RoleAdmin), rec("c2", models.RoleModerator)})

	if _, err := r.Select(ctx, "c3:"+string(models.RoleAdmin)); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("Select(unknown) err = %v, want ErrUnknownOption", err)
	}

	role, err := r.Select(ctx, "c2:"+string(models.RoleModerator))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	want := CompanyRole{CompanyID: "c2", Level: models.RoleModerator}
	if role != want || r.State() != Resolved {
		t.Errorf("role = %v state = %v", role, r.State())
	}

	var p Persisted
	if err := store.GetJSON(ctx, st, store.KeyContext, &p); err != nil || p.CompanyID != "c2" {
		t.Errorf("persisted = %+v, %v", p, err)
	}
}

func TestSwitchOverridesAutoSelection(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver(t)
	r.SetRoles(ctx, []models.RoleRecord{rec("", models.RoleSuperAdmin), rec("", models.RoleUser)})

	if err := r.Switch(ctx, SuperAdminRole{}); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	r.CompaniesChanged(ctx)
	if _, ok := r.Selected().(SuperAdminRole); !ok {
		t.Errorf("Selected = %v after CompaniesChanged, want superadmin", r.Selected())
	}
	if err := r.Switch(ctx, CompanyRole{CompanyID: "c1", Level: models.RoleAdmin}); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("Switch to unheld role err = %v", err)
	}
}

func TestRestorePersistedContext(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	store.SetJSON(ctx, st, store.KeyContext, Encode(CompanyRole{CompanyID: "c1", Level: models.RoleAdmin}))

	r := NewResolver(st, nil)
	r.Begin(ctx)
	if r.State() != Resolved {
		t.Fatalf("State = %v, want resolved", r.State())
	}

	// The role is still held: kept.
	r.SetRoles(ctx, []models.RoleRecord{rec("c1", models.RoleAdmin), rec("c2", models.RoleAdmin)})
	if got := r.Selected(); got.Company() != "c1" {
		t.Errorf("Selected = %v, want c1", got)
	}

	// Restored context the user lost: dropped and resolved again.
	r.Begin(ctx)
	r.SetRoles(ctx, []models.RoleRecord{rec("c2", models.RoleAdmin), rec("c3", models.RoleAdmin)})
	if r.State() != AwaitingChoice || r.Selected() != nil {
		t.Errorf("state = %v selected = %v, want awaiting choice", r.State(), r.Selected())
	}
	if _, err := st.Get(ctx, store.KeyContext); !errors.Is(err, store.ErrNotFound) {
		t.Error("stale context should be deleted")
	}
}

func TestRestoreDiscardsBrokenContext(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	store.SetJSON(ctx, st, store.KeyContext, Persisted{CompanyID: "c1", Role: rec("c1", models.RoleUser)})

	r := NewResolver(st, nil)
	r.Begin(ctx)
	if r.State() != Resolving {
		t.Errorf("State = %v, want resolving", r.State())
	}
}

type readOnlyStore struct {
	*store.Memory
}

func (readOnlyStore) Delete(context.Context, ...string) error {
	return errors.New("read-only")
}

func TestFailedContextRemovalIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logging.UseLogger(zap.New(core))
	t.Cleanup(func() { logging.UseLogger(zap.NewNop()) })

	ctx := context.Background()
	st := readOnlyStore{store.NewMemory()}
	store.SetJSON(ctx, st, store.KeyContext, Persisted{CompanyID: "c1", Role: rec("c1", models.RoleUser)})

	r := NewResolver(st, nil)
	r.Begin(ctx)
	if r.State() != Resolving {
		t.Errorf("State = %v, want resolving", r.State())
	}
	if n := logs.FilterMessage("remove persisted session context failed").Len(); n != 1 {
		t.Errorf("warnings = %v", logs.All())
	}
}

func TestRolesFailed(t *testing.T) {
	r, _ := newTestResolver(t)
	r.RolesFailed(errors.New("boom"))

	if r.State() != Resolving || r.Selected() != nil {
		t.Errorf("state = %v selected = %v", r.State(), r.Selected())
	}
	if r.Err() == nil {
		t.Error("Err should be set")
	}
	if got := r.Guard(RouteResolved); got != PathSelector {
		t.Errorf("Guard = %q, want %q", got, PathSelector)
	}
}

func TestGuard(t *testing.T) {
	ctx := context.Background()

	type check struct {
		route Route
		want  string
	}
	tests := []struct {
		name   string
		setup  func(r *Resolver)
		checks []check
	}{
		{
			name:  "logged out",
			setup: func(r *Resolver) { r.Reset(ctx) },
			checks: []check{
				{RoutePublic, ""},
				{RouteSelector, PathLogin},
				{RouteResolved, PathLogin},
				{RouteCompany, PathLogin},
			},
		},
		{
			name: "awaiting choice",
			setup: func(r *Resolver) {
				r.SetRoles(ctx, []models.RoleRecord{rec("c1", models.RoleAdmin), rec("c2", models.RoleAdmin)})
			},
			checks: []check{
				{RouteSelector, ""},
				{RouteResolved, PathSelector},
				{RouteCompany, PathSelector},
			},
		},
		{
			name: "company context",
			setup: func(r *Resolver) {
				r.SetRoles(ctx, []models.RoleRecord{rec("c1", models.RoleAdmin), rec("c2", models.RoleAdmin)})
				r.Select(ctx, "c1:"+string(models.RoleAdmin))
			},
			checks: []check{
				{RouteSelector, PathLanding},
				{RouteResolved, ""},
				{RouteCompany, ""},
			},
		},
		{
			name:  "user context",
			setup: func(r *Resolver) { r.SetRoles(ctx, []models.RoleRecord{rec("", models.RoleUser)}) },
			checks: []check{
				{RouteSelector, PathLanding},
				{RouteResolved, ""},
				{RouteCompany, PathLanding},
			},
		},
		{
			name:  "super admin default content",
			setup: func(r *Resolver) { r.SetRoles(ctx, []models.RoleRecord{rec("", models.RoleSuperAdmin)}) },
			checks: []check{
				{RouteSelector, PathLanding},
				{RouteCompany, ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestResolver(t)
			tt.setup(r)
			for _, c := range tt.checks {
				if got := r.Guard(c.route); got != c.want {
					t.Errorf("Guard(%d) = %q, want %q", c.route, got, c.want)
				}
			}
		})
	}
}

func TestActiveCompany(t *testing.T) {
	ctx := context.Background()

	r, _ := newTestResolver(t)
	r.SetRoles(ctx, []models.RoleRecord{rec("c1", models.RoleAdmin), rec("c2", models.RoleAdmin)})
	if _, err := r.ActiveCompany(""); !errors.Is(err, ErrNoContext) {
		t.Errorf("ActiveCompany before selection err = %v", err)
	}
	r.Select(ctx, "c1:"+string(models.RoleAdmin))
	if id, err := r.ActiveCompany(""); err != nil || id != "c1" {
		t.Errorf("ActiveCompany = %q, %v", id, err)
	}
	if _, err := r.ActiveCompany("c2"); err == nil {
		t.Error("company admin must not reach another company")
	}

	sa, _ := newTestResolver(t)
	sa.SetRoles(ctx, []models.RoleRecord{rec("", models.RoleSuperAdmin)})
	if id, err := sa.ActiveCompany("c7"); err != nil || id != "c7" {
		t.Errorf("super admin ActiveCompany = %q, %v", id, err)
	}
}

func TestEncodeDecode(t *testing.T) {
	roles := []Role{UserRole{}, SuperAdminRole{}, CompanyRole{CompanyID: "c1", Level: models.RoleModerator}}
	for _, role := range roles {
		got, err := Decode(Encode(role))
		if err != nil || !SameRole(got, role) {
			t.Errorf("Decode(Encode(%v)) = %v, %v", role, got, err)
		}
	}
}
