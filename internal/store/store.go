// Package store persists client-side portal state (token, profile, role
// and company caches, the selected session context) in a small key-value
// store. Values are wrapped in a versioned envelope so that entries written
// by an incompatible release are discarded instead of misread.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coffeestaff/portal/internal/logging"
)

// ErrNotFound is returned when a key is absent (or was discarded).
var ErrNotFound = errors.New("store: key not found")

// Version is the cache-format version. It is part of every key and of
// every stored envelope.
const Version = 2

// Persisted keys.
var (
	KeyToken     = versioned("authToken")
	KeyUserID    = versioned("userId")
	KeyUserInfo  = versioned("userInfo")
	KeyRoles     = versioned("userRoles")
	KeyCompanies = versioned("cachedCompanies")
	KeyContext   = versioned("sessionContext")
	KeyCursor    = versioned("libraryCursor")
)

// SessionKeys lists every key that belongs to a login session. All of them
// are removed on logout and on a 401 teardown.
func SessionKeys() []string {
	return []string{KeyToken, KeyUserID, KeyUserInfo, KeyRoles, KeyCompanies, KeyContext, KeyCursor}
}

func versioned(name string) string {
	return fmt.Sprintf("%s_v%d", name, Version)
}

// Store is a byte-oriented key-value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

type envelope struct {
	V       int             `json:"v"`
	SavedAt time.Time       `json:"saved_at"`
	Data    json.RawMessage `json:"data"`
}

// SetJSON stores v under key inside a versioned envelope.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	env, err := json.Marshal(envelope{V: Version, SavedAt: time.Now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, env)
}

// GetJSON decodes the value under key into v. Entries with a different
// envelope version, or that cannot be decoded, are deleted and reported
// as ErrNotFound.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	_, err := GetJSONAge(ctx, s, key, v)
	return err
}

// GetJSONAge is GetJSON that also returns when the entry was written.
func GetJSONAge(ctx context.Context, s Store, key string, v any) (time.Time, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.V != Version {
		discard(ctx, s, key)
		return time.Time{}, ErrNotFound
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		discard(ctx, s, key)
		return time.Time{}, ErrNotFound
	}
	return env.SavedAt, nil
}

// discard drops an unreadable entry. A failed delete only leaves the entry
// to be discarded again on the next read.
func discard(ctx context.Context, s Store, key string) {
	if err := s.Delete(ctx, key); err != nil {
		logging.Warn("discard unreadable entry failed", logging.String("key", key), logging.Err(err))
	}
}

// GetString is a convenience wrapper for string values.
func GetString(ctx context.Context, s Store, key string) (string, error) {
	var v string
	if err := GetJSON(ctx, s, key, &v); err != nil {
		return "", err
	}
	return v, nil
}

// ClearSession removes every session key from s.
func ClearSession(ctx context.Context, s Store) error {
	return s.Delete(ctx, SessionKeys()...)
}
