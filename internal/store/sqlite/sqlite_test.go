package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/coffeestaff/portal/internal/store"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "state.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}
	if err := store.SetJSON(ctx, s, store.KeyToken, "tok"); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	if err := store.SetJSON(ctx, s, store.KeyToken, "tok2"); err != nil {
		t.Fatalf("SetJSON overwrite: %v", err)
	}
	s.Close()

	// Values survive reopening.
	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := store.GetString(ctx, s, store.KeyToken)
	if err != nil || got != "tok2" {
		t.Fatalf("GetString = %q, %v; want tok2", got, err)
	}

	if err := store.ClearSession(ctx, s); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if _, err := s.Get(ctx, store.KeyToken); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("token still present after ClearSession")
	}
}
