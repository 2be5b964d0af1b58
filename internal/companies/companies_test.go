package companies

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/protocol"
	"github.com/coffeestaff/portal/internal/store"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"+7 999 123 45 67", "+79991234567", true},
		{"89991234567", "89991234567", true},
		{"", "", true},
		{"+1 999 123 45 67", "", false},
		{"8999123456", "", false},
		{"8-999-123-45-67", "", false},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	for _, ok := range []string{"", "a@b.co", "barista@coffee.shop"} {
		if err := ValidateEmail(ok); err != nil {
			t.Errorf("ValidateEmail(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"a@b", "no at.com", "a b@c.d"} {
		var ve *ValidationError
		if err := ValidateEmail(bad); !errors.As(err, &ve) || ve.Field != "email" {
			t.Errorf("ValidateEmail(%q) = %v", bad, err)
		}
	}
}

type fakeAPI struct {
	companies []models.Company
	fail      atomic.Bool
	lists     atomic.Int32
	requests  []string
}

func (f *fakeAPI) server(t *testing.T) *client.Client {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests = append(f.requests, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		if f.fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		switch r.URL.Path {
		case "/company/get_all":
			f.lists.Add(1)
			json.NewEncoder(w).Encode(protocol.CompaniesListResponse{Companies: f.companies})
		case "/company/update_by_id":
			var req protocol.CompanyUpdateRequest
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(models.Company{
				CompanyID: r.URL.Query().Get("company_id"), CompanyName: req.CompanyName, Phone: req.Phone,
			})
		default:
			w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(ts.Close)
	return client.New(client.Config{BaseURL: ts.URL, AuthToken: "tok"})
}

func TestCacheTTLAndFallback(t *testing.T) {
	ctx := context.Background()
	f := &fakeAPI{companies: []models.Company{{CompanyID: "c1", CompanyName: "Bean There"}}}
	st := store.NewMemory()
	c := NewCache(f.server(t), st, time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }

	list, err := c.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %v, %v", list, err)
	}
	c.List(ctx)
	if f.lists.Load() != 1 {
		t.Errorf("fetches within TTL = %d, want 1", f.lists.Load())
	}
	if name, ok := c.Name("c1"); !ok || name != "Bean There" {
		t.Errorf("Name = %q, %v", name, ok)
	}

	// Expired and backend down: the persisted copy is served.
	now = now.Add(2 * time.Hour)
	f.fail.Store(true)
	c.Clear()
	list, err = c.List(ctx)
	if err != nil || len(list) != 1 || list[0].CompanyName != "Bean There" {
		t.Errorf("fallback List = %v, %v", list, err)
	}

	// Nothing cached at all: the error surfaces.
	store.ClearSession(ctx, st)
	c.Clear()
	if _, err := c.List(ctx); client.KindOf(err) != client.KindServer {
		t.Errorf("List err = %v, want server error", err)
	}
}

func TestUpdateValidatesBeforeSending(t *testing.T) {
	ctx := context.Background()
	f := &fakeAPI{}
	c := NewCache(f.server(t), store.NewMemory(), 0)

	_, err := c.Update(ctx, "c1", Patch{CompanyName: "X", Phone: "12345"})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "phone" {
		t.Fatalf("Update err = %v, want phone validation error", err)
	}
	if len(f.requests) != 0 {
		t.Errorf("invalid update reached the backend: %v", f.requests)
	}

	co, err := c.Update(ctx, "c1", Patch{CompanyName: "Brew Lab", Phone: "+7 999 000 11 22"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if co.Phone != "+79990001122" {
		t.Errorf("phone sent = %q", co.Phone)
	}
	if name, _ := c.Name("c1"); name != "Brew Lab" {
		t.Errorf("cache not updated, name = %q", name)
	}
}

func TestDelegate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		d    Delegation
		want string
	}{
		{Delegation{Grant, models.RoleAdmin, "u2", "c1"}, "POST /user_role/grant_admin_privilege?company_id=c1&promo_user_id=u2"},
		{Delegation{Revoke, models.RoleAdmin, "u2", "c1"}, "POST /user_role/revoke_admin_privilege?company_id=c1&demo_user_id=u2"},
		{Delegation{Grant, models.RoleModerator, "u2", "c1"}, "POST /role/delegate?"},
	}
	for _, tt := range tests {
		f := &fakeAPI{}
		r := NewRights(f.server(t))
		if err := r.Delegate(ctx, tt.d); err != nil {
			t.Fatalf("Delegate(%+v): %v", tt.d, err)
		}
		if len(f.requests) != 1 || f.requests[0] != tt.want {
			t.Errorf("Delegate(%+v) requests = %v, want %q", tt.d, f.requests, tt.want)
		}
	}

	bad := []Delegation{
		{"promote", models.RoleAdmin, "u2", "c1"},
		{Grant, "PORTAL_ROLE_BARISTA", "u2", "c1"},
		{Grant, models.RoleAdmin, "", "c1"},
		{Grant, models.RoleModerator, "u2", ""},
	}
	for _, d := range bad {
		var ve *ValidationError
		if err := NewRights(nil).Delegate(ctx, d); !errors.As(err, &ve) {
			t.Errorf("Delegate(%+v) err = %v, want validation error", d, err)
		}
	}
}
