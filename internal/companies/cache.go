// Package companies caches the company list and implements company
// editing and rights delegation.
package companies

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/protocol"
	"github.com/coffeestaff/portal/internal/store"
)

// DefaultTTL is how long a fetched company list is served without asking
// the backend again.
const DefaultTTL = time.Hour

// Cache is a read-through cache of companies keyed by id. The last good
// list is persisted and served when the backend is unreachable.
type Cache struct {
	api    *client.Client
	st     store.Store
	ttl    time.Duration
	caller client.Caller

	mu        sync.RWMutex
	byID      map[string]models.Company
	order     []string
	fetchedAt time.Time

	now func() time.Time
}

// NewCache creates a cache. ttl <= 0 selects DefaultTTL.
func NewCache(api *client.Client, st store.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		api:  api,
		st:   st,
		ttl:  ttl,
		byID: make(map[string]models.Company),
		now:  time.Now,
	}
}

// Name returns the cached name of a company.
func (c *Cache) Name(companyID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	co, ok := c.byID[companyID]
	if !ok {
		return "", false
	}
	return co.CompanyName, true
}

// Clear drops the in-memory copy. The persisted copy belongs to the
// session and is removed with it.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]models.Company)
	c.order = nil
	c.fetchedAt = time.Time{}
}

func (c *Cache) set(list []models.Company, at time.Time) {
	byID := make(map[string]models.Company, len(list))
	order := make([]string, 0, len(list))
	for _, co := range list {
		if _, dup := byID[co.CompanyID]; !dup {
			order = append(order, co.CompanyID)
		}
		byID[co.CompanyID] = co
	}
	c.mu.Lock()
	c.byID = byID
	c.order = order
	c.fetchedAt = at
	c.mu.Unlock()
}

func (c *Cache) snapshot() []models.Company {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]models.Company, 0, len(c.order))
	for _, id := range c.order {
		list = append(list, c.byID[id])
	}
	return list
}

func (c *Cache) fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl
}

// seed loads the persisted list into memory when memory is empty.
func (c *Cache) seed(ctx context.Context) bool {
	c.mu.RLock()
	empty := len(c.order) == 0
	c.mu.RUnlock()
	if !empty {
		return true
	}
	var list []models.Company
	savedAt, err := store.GetJSONAge(ctx, c.st, store.KeyCompanies, &list)
	if err != nil {
		return false
	}
	c.set(list, savedAt)
	return true
}

// Refresh reloads the list from the backend. On failure the persisted
// copy (if any) is loaded so names stay available, and the error is
// returned.
func (c *Cache) Refresh(ctx context.Context) error {
	list, err := client.Call(ctx, &c.caller, func(ctx context.Context) ([]models.Company, error) {
		return c.api.ListCompanies(ctx)
	})
	if err != nil {
		if errors.Is(err, client.ErrSuperseded) {
			return err
		}
		if c.seed(ctx) {
			logging.Warn("company list fetch failed, serving cached copy", logging.Err(err))
		}
		return err
	}

	c.set(list, c.now())
	if err := store.SetJSON(ctx, c.st, store.KeyCompanies, list); err != nil {
		logging.Warn("persist company list failed", logging.Err(err))
	}
	return nil
}

// List returns the companies, fetching them when the cached copy is older
// than the TTL. A failed fetch falls back to the cached copy; the error is
// only returned when nothing is cached.
func (c *Cache) List(ctx context.Context) ([]models.Company, error) {
	if !c.fresh() {
		c.seed(ctx)
	}
	if c.fresh() {
		return c.snapshot(), nil
	}
	if err := c.Refresh(ctx); err != nil {
		list := c.snapshot()
		if len(list) == 0 {
			return nil, err
		}
		return list, nil
	}
	return c.snapshot(), nil
}

// Sorted returns the companies ordered by their display order, then name.
func Sorted(list []models.Company) []models.Company {
	out := append([]models.Company(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OrderNumber != out[j].OrderNumber {
			return out[i].OrderNumber < out[j].OrderNumber
		}
		return out[i].CompanyName < out[j].CompanyName
	})
	return out
}

// Get returns one company from the backend and updates the cache.
func (c *Cache) Get(ctx context.Context, companyID string) (*models.Company, error) {
	co, err := c.api.GetCompany(ctx, companyID)
	if err != nil {
		c.mu.RLock()
		cached, ok := c.byID[companyID]
		c.mu.RUnlock()
		if ok && client.KindOf(err) == client.KindNetwork {
			return &cached, nil
		}
		return nil, err
	}
	c.put(ctx, *co)
	return co, nil
}

func (c *Cache) put(ctx context.Context, co models.Company) {
	c.mu.Lock()
	if _, ok := c.byID[co.CompanyID]; !ok {
		c.order = append(c.order, co.CompanyID)
	}
	c.byID[co.CompanyID] = co
	c.mu.Unlock()
	if err := store.SetJSON(ctx, c.st, store.KeyCompanies, c.snapshot()); err != nil {
		logging.Warn("persist company list failed", logging.Err(err))
	}
}

// Patch holds the editable company fields.
type Patch struct {
	CompanyName string
	Address     string
	Phone       string
}

// Update validates and saves the editable fields of a company.
func (c *Cache) Update(ctx context.Context, companyID string, p Patch) (*models.Company, error) {
	phone, err := NormalizePhone(p.Phone)
	if err != nil {
		return nil, err
	}
	if err := requireName(p.CompanyName); err != nil {
		return nil, err
	}
	co, err := c.api.UpdateCompany(ctx, companyID, protocol.CompanyUpdateRequest{
		CompanyName: p.CompanyName,
		Address:     p.Address,
		Phone:       phone,
	})
	if err != nil {
		return nil, err
	}
	if co.CompanyID == "" {
		co.CompanyID = companyID
	}
	c.put(ctx, *co)
	return co, nil
}

// Create validates and registers a new company.
func (c *Cache) Create(ctx context.Context, req protocol.CompanyCreateRequest) (*models.Company, error) {
	if err := requireName(req.CompanyName); err != nil {
		return nil, err
	}
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	req.Phone = phone
	if err := ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	co, err := c.api.CreateCompany(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create company: %w", err)
	}
	if co.CompanyID != "" {
		c.put(ctx, *co)
	}
	return co, nil
}
