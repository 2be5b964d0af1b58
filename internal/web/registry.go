package web

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/companies"
	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/media"
	"github.com/coffeestaff/portal/internal/notify"
	"github.com/coffeestaff/portal/internal/session"
	"github.com/coffeestaff/portal/internal/store"
)

// portal is the server side of one browser session.
type portal struct {
	id        string
	api       *client.Client
	st        store.Store
	manager   *session.Manager
	companies *companies.Cache
	rights    *companies.Rights
	notes     *notify.Broadcaster
	lister    media.ObjectLister

	mu   sync.Mutex
	libs map[string]*media.Library

	lastSeen atomic.Int64
}

func newPortal(ctx context.Context, id string, opts Options) *portal {
	api := client.New(client.Config{
		BaseURL: opts.BackendURL,
		Timeout: opts.APITimeout,
	})
	st := store.NewScoped(opts.State, "session:"+id+":")
	cache := companies.NewCache(api, st, 0)
	p := &portal{
		id:        id,
		api:       api,
		st:        st,
		companies: cache,
		rights:    companies.NewRights(api),
		notes:     notify.NewBroadcaster(),
		lister:    opts.Lister,
		libs:      make(map[string]*media.Library),
	}
	p.manager = session.NewManager(session.ManagerConfig{
		API:        api,
		Store:      st,
		Companies:  cache,
		OnTeardown: p.tornDown,
	})
	p.touch()

	// A session persisted before a restart resumes here.
	if err := p.manager.Restore(ctx); err != nil &&
		!errors.Is(err, session.ErrNotLoggedIn) && !errors.Is(err, session.ErrSessionExpired) {
		logging.Warn("restore browser session failed", logging.String("session", id), logging.Err(err))
	}
	return p
}

func (p *portal) touch() {
	p.lastSeen.Store(time.Now().UnixNano())
}

func (p *portal) idle() time.Duration {
	return time.Since(time.Unix(0, p.lastSeen.Load()))
}

// tornDown runs after the backend rejected the token.
func (p *portal) tornDown(reason string) {
	p.closeLibraries()
	p.notes.Notify(notify.Notification{
		Level:   notify.LevelWarning,
		Op:      "session",
		Message: "Session expired, please log in again",
	})
}

// library returns the library of companyID, loading it on first use.
func (p *portal) library(ctx context.Context, companyID string) (*media.Library, error) {
	p.mu.Lock()
	lib, ok := p.libs[companyID]
	p.mu.Unlock()
	if ok {
		return lib, nil
	}

	lib = media.New(media.Config{
		API:       p.api,
		CompanyID: companyID,
		Lister:    p.lister,
		Store:     p.st,
		Notifier:  p.notes,
	})
	if err := lib.Load(ctx); err != nil {
		lib.Close()
		return nil, fmt.Errorf("load library of company %s: %w", companyID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.libs[companyID]; ok {
		lib.Close()
		return existing, nil
	}
	p.libs[companyID] = lib
	return lib, nil
}

func (p *portal) closeLibraries() {
	p.mu.Lock()
	libs := p.libs
	p.libs = make(map[string]*media.Library)
	p.mu.Unlock()
	for _, lib := range libs {
		lib.Close()
	}
}

// registry maps browser session ids to their portal state.
type registry struct {
	opts Options

	mu      sync.Mutex
	portals map[string]*portal
}

func newRegistry(opts Options) *registry {
	return &registry{opts: opts, portals: make(map[string]*portal)}
}

func (r *registry) get(ctx context.Context, id string) *portal {
	r.mu.Lock()
	p, ok := r.portals[id]
	r.mu.Unlock()
	if ok {
		p.touch()
		return p
	}

	p = newPortal(ctx, id, r.opts)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.portals[id]; ok {
		p.closeLibraries()
		existing.touch()
		return existing
	}
	r.portals[id] = p
	return p
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.portals)
}

func (r *registry) sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	var stale []*portal
	for id, p := range r.portals {
		if p.idle() > maxIdle {
			stale = append(stale, p)
			delete(r.portals, id)
		}
	}
	r.mu.Unlock()
	for _, p := range stale {
		p.closeLibraries()
	}
	if len(stale) > 0 {
		logging.Debug("swept idle browser sessions", logging.Int("count", len(stale)))
	}
	return len(stale)
}

func (r *registry) closeAll() {
	r.mu.Lock()
	portals := r.portals
	r.portals = make(map[string]*portal)
	r.mu.Unlock()
	for _, p := range portals {
		p.closeLibraries()
	}
}

func (r *registry) drop(id string) {
	r.mu.Lock()
	p, ok := r.portals[id]
	delete(r.portals, id)
	r.mu.Unlock()
	if ok {
		p.closeLibraries()
	}
}
