package cache

import (
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// flight collapses concurrent calls for the same key into one.
type flight struct {
	group  singleflight.Group
	shared atomic.Int64
}

// do runs fn once per key among concurrent callers. shared reports whether
// the result was produced for another caller too.
func (f *flight) do(key Key, fn func() (string, error)) (string, bool, error) {
	v, err, shared := f.group.Do(string(key), func() (any, error) {
		return fn()
	})
	if shared {
		f.shared.Add(1)
	}
	if err != nil {
		return "", shared, err
	}
	return v.(string), shared, nil
}
