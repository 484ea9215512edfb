package routecache

import (
	"context"
	"errors"

	"github.com/bluele/gcache"
)

// Tiered fronts a backing cache with a bounded in-memory LRU.
type Tiered struct {
	memory  gcache.Cache
	backing Cache
}

// NewTiered returns a cache holding up to size entries in memory. A size of zero or
// less disables the memory tier.
func NewTiered(backing Cache, size int) Cache {
	if size <= 0 {
		return backing
	}
	return &Tiered{
		memory:  gcache.New(size).LRU().Build(),
		backing: backing,
	}
}

// Get checks memory first, then the backing cache. Backing hits are promoted.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, err := t.memory.Get(key); err == nil {
		if body, ok := v.([]byte); ok {
			return body, true, nil
		}
	} else if !errors.Is(err, gcache.KeyNotFoundError) {
		return nil, false, err
	}

	body, ok, err := t.backing.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = t.memory.Set(key, body)
	return body, true, nil
}

// Put writes to the backing cache, then to memory. The memory tier is only
// updated once the backing write succeeded.
func (t *Tiered) Put(ctx context.Context, key string, body []byte) error {
	if err := t.backing.Put(ctx, key, body); err != nil {
		return err
	}
	return t.memory.Set(key, body)
}
