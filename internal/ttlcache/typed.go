package ttlcache

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Typed is a view of a single namespace that stores values of type T.
// Values of any other type found under a key are reported as absent.
type Typed[T any] struct {
	store *Store
	ns    Namespace
	group singleflight.Group
}

// NewTyped binds a typed view to ns.
func NewTyped[T any](s *Store, ns Namespace) *Typed[T] {
	return &Typed[T]{store: s, ns: ns}
}

// Namespace returns the namespace this view is bound to.
func (t *Typed[T]) Namespace() Namespace { return t.ns }

// Get returns the value under key if present, unexpired and of type T.
func (t *Typed[T]) Get(key string) (T, bool) {
	return typed[T](t.store.Get(t.ns, key))
}

func typed[T any](v any, ok bool) (T, bool) {
	var zero T
	if !ok {
		return zero, false
	}
	tv, ok := v.(T)
	if !ok {
		return zero, false
	}
	return tv, true
}

// Put stores v under key.
func (t *Typed[T]) Put(key string, v T) {
	t.store.Put(t.ns, key, v)
}

// Clear drops every entry of the bound namespace.
func (t *Typed[T]) Clear() {
	t.store.Clear(t.ns)
}

// GetOrLoad returns the cached value for key, or calls load on a miss and
// caches its result. Concurrent misses for the same key share one load call.
// Errors are returned to every waiting caller and are never cached.
func (t *Typed[T]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := t.Get(key); ok {
		return v, nil
	}
	res, err, _ := t.group.Do(key, func() (any, error) {
		// Another caller may have filled the entry while we waited for the
		// flight slot. The miss was already observed above.
		if v, ok := typed[T](t.store.peek(t.ns, key)); ok {
			return v, nil
		}
		gen := t.store.generation(t.ns)
		// The flight is shared; the first caller's cancellation must not
		// reach it.
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		// A Clear during the load means v may predate the write that
		// triggered it.
		t.store.putIfGeneration(t.ns, key, v, gen)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("load %s %q: %w", t.ns, key, err)
	}
	return res.(T), nil
}
