package store

import "context"

// Scoped namespaces every key of an underlying store with a prefix. The
// portal server uses one scope per browser session over a shared backend.
type Scoped struct {
	base   Store
	prefix string
}

// NewScoped returns a view of base where every key is prefixed.
func NewScoped(base Store, prefix string) *Scoped {
	return &Scoped{base: base, prefix: prefix}
}

func (s *Scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return s.base.Get(ctx, s.prefix+key)
}

func (s *Scoped) Set(ctx context.Context, key string, value []byte) error {
	return s.base.Set(ctx, s.prefix+key, value)
}

func (s *Scoped) Delete(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}
	return s.base.Delete(ctx, prefixed...)
}

// Close is a no-op; the shared backend is closed by its owner.
func (s *Scoped) Close() error {
	return nil
}
