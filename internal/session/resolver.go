// Package session resolves and owns the (company, role) context a portal
// session runs under.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/metrics"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/store"
)

var (
	// ErrNoContext is returned by operations that need a resolved context.
	ErrNoContext = errors.New("no session context selected")
	// ErrUnknownOption is returned when selecting a context the user does
	// not hold.
	ErrUnknownOption = errors.New("unknown session option")
)

// State is the resolver state.
type State int

const (
	Uninitialized State = iota
	Resolving
	AwaitingChoice
	Resolved
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Resolving:
		return "resolving"
	case AwaitingChoice:
		return "awaiting_choice"
	case Resolved:
		return "resolved"
	}
	return "unknown"
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LoadingName is shown for companies missing from the cache.
const LoadingName = "Loading…"

// CompanyNames looks up company names for the selector.
type CompanyNames interface {
	Name(companyID string) (string, bool)
}

// Option is one entry of the selector screen.
type Option struct {
	ID          string          `json:"id"`
	CompanyID   string          `json:"company_id"`
	CompanyName string          `json:"company_name"`
	Role        Role            `json:"-"`
	RoleKind    models.RoleKind `json:"role"`
}

// OptionID returns the selector id of a role.
func OptionID(r Role) string {
	switch r := r.(type) {
	case UserRole:
		return SentinelUser
	case SuperAdminRole:
		return SentinelSuperAdmin
	case CompanyRole:
		return r.CompanyID + ":" + string(r.Level)
	}
	return ""
}

func newOption(r Role, name string) Option {
	return Option{
		ID:          OptionID(r),
		CompanyID:   Encode(r).CompanyID,
		CompanyName: name,
		Role:        r,
		RoleKind:    r.Kind(),
	}
}

// Resolver is the session context state machine:
//
//	Uninitialized → Resolving → AwaitingChoice → Resolved
//	                          ↘ Resolved
//
// It persists the selected context in the store under store.KeyContext.
type Resolver struct {
	st    store.Store
	names CompanyNames

	mu       sync.RWMutex
	state    State
	loaded   bool
	records  []models.RoleRecord
	roles    []Role
	selected Role
	err      error
}

// NewResolver creates a resolver in the Uninitialized state.
func NewResolver(st store.Store, names CompanyNames) *Resolver {
	return &Resolver{st: st, names: names}
}

// Begin starts resolution after authentication. A context persisted by a
// previous run is restored directly.
func (r *Resolver) Begin(ctx context.Context) {
	var restored Role
	var p Persisted
	if err := store.GetJSON(ctx, r.st, store.KeyContext, &p); err == nil {
		role, err := Decode(p)
		if err != nil {
			logging.Warn("discarding persisted session context", logging.Err(err))
			r.forget(ctx)
		} else {
			restored = role
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = nil
	r.loaded = false
	r.records = nil
	r.roles = nil
	if restored != nil {
		r.selected = restored
		r.state = Resolved
		metrics.RecordResolution("restored")
		return
	}
	r.selected = nil
	r.state = Resolving
}

// SetRoles installs the user's role records and runs automatic selection.
func (r *Resolver) SetRoles(ctx context.Context, records []models.RoleRecord) error {
	roles := make([]Role, 0, len(records))
	for _, rec := range records {
		role, err := FromRecord(rec)
		if err != nil {
			logging.Warn("ignoring role record", logging.Err(err))
			continue
		}
		roles = append(roles, role)
	}

	r.mu.Lock()
	if r.state == Uninitialized {
		r.state = Resolving
	}
	r.loaded = true
	r.records = records
	r.roles = roles
	r.err = nil

	var drop bool
	if r.selected != nil && !r.holdsLocked(r.selected) {
		logging.Info("selected context no longer held, resolving again",
			logging.String("context", r.selected.String()))
		r.selected = nil
		r.state = Resolving
		drop = true
	}
	auto := r.evaluateLocked()
	r.mu.Unlock()

	if drop {
		r.forget(ctx)
	}
	if auto != nil {
		return r.persist(ctx, auto)
	}
	return nil
}

// RolesFailed records a failed role fetch. Resolution stays pending; no
// role is assumed.
func (r *Resolver) RolesFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	if r.state == Uninitialized {
		r.state = Resolving
	}
	metrics.RecordResolution("failed")
}

// CompaniesChanged re-runs evaluation after the company cache changed.
// Names are joined on read, so only a pending decision can be affected.
func (r *Resolver) CompaniesChanged(ctx context.Context) error {
	r.mu.Lock()
	auto := r.evaluateLocked()
	r.mu.Unlock()
	if auto != nil {
		return r.persist(ctx, auto)
	}
	return nil
}

// evaluateLocked runs automatic selection. It returns the role that was
// auto-selected and still needs persisting, if any.
func (r *Resolver) evaluateLocked() Role {
	if r.state != Resolving || r.selected != nil || !r.loaded {
		return nil
	}

	hasUser, hasSuper := false, false
	companies := 0
	for _, role := range r.roles {
		switch role.(type) {
		case UserRole:
			hasUser = true
		case SuperAdminRole:
			hasSuper = true
		case CompanyRole:
			companies++
		}
	}

	switch {
	case len(r.roles) == 1 && hasUser:
		r.selected = UserRole{}
		r.state = Resolved
		metrics.RecordResolution("auto_user")
		return r.selected
	case hasSuper && hasUser:
		r.selected = UserRole{}
		r.state = Resolved
		metrics.RecordResolution("auto_user")
		return r.selected
	case companies > 0 && !hasSuper:
		r.state = AwaitingChoice
		metrics.RecordResolution("choice_required")
	default:
		r.state = Resolved
		metrics.RecordResolution("default")
	}
	return nil
}

func (r *Resolver) holdsLocked(role Role) bool {
	for _, held := range r.roles {
		if SameRole(held, role) {
			return true
		}
	}
	return false
}

// Available returns the company-scoped options joined with company names.
func (r *Resolver) Available() []Option {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.availableLocked()
}

func (r *Resolver) availableLocked() []Option {
	var opts []Option
	for _, role := range r.roles {
		cr, ok := role.(CompanyRole)
		if !ok {
			continue
		}
		name := LoadingName
		if r.names != nil {
			if n, ok := r.names.Name(cr.CompanyID); ok {
				name = n
			}
		}
		opts = append(opts, newOption(cr, name))
	}
	return opts
}

// Options returns every selectable context: "Pure user" and "Super admin"
// when held, then one entry per company role.
func (r *Resolver) Options() []Option {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var opts []Option
	hasUser, hasSuper := false, false
	for _, role := range r.roles {
		switch role.(type) {
		case UserRole:
			hasUser = true
		case SuperAdminRole:
			hasSuper = true
		}
	}
	if hasUser {
		opts = append(opts, newOption(UserRole{}, "Pure user"))
	}
	if hasSuper {
		opts = append(opts, newOption(SuperAdminRole{}, "Super admin"))
	}
	return append(opts, r.availableLocked()...)
}

// Select chooses the option with the given id, from the selector or as a
// later switch.
func (r *Resolver) Select(ctx context.Context, optionID string) (Role, error) {
	r.mu.RLock()
	var role Role
	for _, held := range r.roles {
		if OptionID(held) == optionID {
			role = held
			break
		}
	}
	r.mu.RUnlock()
	if role == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOption, optionID)
	}
	return role, r.Switch(ctx, role)
}

// Switch makes role the session context. Automatic selection is not run:
// an explicit choice always wins.
func (r *Resolver) Switch(ctx context.Context, role Role) error {
	r.mu.Lock()
	if r.state == Uninitialized {
		r.mu.Unlock()
		return ErrNoContext
	}
	if !r.holdsLocked(role) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOption, role)
	}
	outcome := "selected"
	if r.state == Resolved {
		outcome = "switched"
	}
	r.selected = role
	r.state = Resolved
	r.mu.Unlock()

	metrics.RecordResolution(outcome)
	return r.persist(ctx, role)
}

// forget removes the persisted context. Failures are logged; the stale
// entry is rechecked against the role list on the next restore.
func (r *Resolver) forget(ctx context.Context) {
	if err := r.st.Delete(ctx, store.KeyContext); err != nil {
		logging.Warn("remove persisted session context failed", logging.Err(err))
	}
}

func (r *Resolver) persist(ctx context.Context, role Role) error {
	if err := store.SetJSON(ctx, r.st, store.KeyContext, Encode(role)); err != nil {
		return fmt.Errorf("persist session context: %w", err)
	}
	return nil
}

// Reset returns to Uninitialized and forgets the persisted context.
func (r *Resolver) Reset(ctx context.Context) error {
	r.mu.Lock()
	r.state = Uninitialized
	r.loaded = false
	r.records = nil
	r.roles = nil
	r.selected = nil
	r.err = nil
	r.mu.Unlock()
	return r.st.Delete(ctx, store.KeyContext)
}

// State returns the current state.
func (r *Resolver) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Selected returns the selected context, or nil.
func (r *Resolver) Selected() Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

// Err returns the last role fetch error.
func (r *Resolver) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Records returns the raw role records.
func (r *Resolver) Records() []models.RoleRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.RoleRecord(nil), r.records...)
}

// Holds reports whether the user holds a role of the given kind.
func (r *Resolver) Holds(kind models.RoleKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, role := range r.roles {
		if role.Kind() == kind {
			return true
		}
	}
	return false
}

// ActiveCompany returns the company the session operates on. Company roles
// use their own company; a super admin may name one explicitly.
func (r *Resolver) ActiveCompany(explicit string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch sel := r.selected.(type) {
	case CompanyRole:
		if explicit != "" && explicit != sel.CompanyID {
			return "", fmt.Errorf("%w: context is bound to company %s", ErrUnknownOption, sel.CompanyID)
		}
		return sel.CompanyID, nil
	case SuperAdminRole:
		if explicit != "" {
			return explicit, nil
		}
	}
	if explicit != "" && r.selected == nil && r.state == Resolved {
		for _, role := range r.roles {
			if _, ok := role.(SuperAdminRole); ok {
				return explicit, nil
			}
		}
	}
	return "", ErrNoContext
}

// Snapshot is a read-only view of the resolver.
type Snapshot struct {
	State    State    `json:"state"`
	Selected *Option  `json:"selected,omitempty"`
	Options  []Option `json:"options"`
	Error    string   `json:"error,omitempty"`
}

// Snapshot returns the current state for display.
func (r *Resolver) Snapshot() Snapshot {
	opts := r.Options()
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{State: r.state, Options: opts}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	if r.selected != nil {
		name := ""
		for _, o := range opts {
			if o.ID == OptionID(r.selected) {
				name = o.CompanyName
			}
		}
		o := newOption(r.selected, name)
		s.Selected = &o
	}
	return s
}
