package cache

import "context"

// Cache is a Store fronted by in-flight deduplication.
type Cache struct {
	store  *Store
	flight flight
}

func New(cfg Config) (*Cache, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	store, err := NewStore(cfg.MaxSize, cfg.TTL)
	if err != nil {
		return nil, err
	}
	return &Cache{store: store}, nil
}

// Do returns the cached completion for req, or runs fn once for all
// concurrent callers asking the same thing and stores its result. Errors are
// returned to every waiting caller and never stored. hit is true only for
// answers served from the store.
func (c *Cache) Do(ctx context.Context, req Request, fn func(context.Context) (string, error)) (out string, hit bool, err error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	key, err := KeyFor(req)
	if err != nil {
		return "", false, err
	}
	if v, ok := c.store.Get(key); ok {
		return v, true, nil
	}

	out, _, err = c.flight.do(key, func() (string, error) {
		v, err := fn(ctx)
		if err != nil {
			return "", err
		}
		c.store.Put(key, v)
		return v, nil
	})
	if err != nil {
		return "", false, err
	}
	return out, false, nil
}

// Forget drops req from the store.
func (c *Cache) Forget(req Request) error {
	key, err := KeyFor(req)
	if err != nil {
		return err
	}
	c.store.Remove(key)
	return nil
}

func (c *Cache) Purge() { c.store.Purge() }

func (c *Cache) Len() int { return c.store.Len() }

func (c *Cache) Stats() Stats {
	c.store.Prune()
	st := c.store.Stats()
	st.Shared = c.flight.shared.Load()
	return st
}
