// Package events implements a small synchronous event emitter used to fan
// chain and loan notifications out to cache invalidation.
package events

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/ttlcache"
)

// Event names emitted inside kycgate.
const (
	ChainBlock   = "chain.block"
	LoanChanged  = "loan.changed"
	CacheCleared = "cache.cleared"
)

// BlockEvent is the ChainBlock payload: the chain head advanced to Number.
type BlockEvent struct {
	Number   uint64
	Previous uint64
}

// LoanEvent is the LoanChanged payload.
type LoanEvent struct {
	Loan *kycgate.Loan
}

// CacheClearedEvent is the CacheCleared payload. All is set for a purge,
// in which case Namespace is meaningless.
type CacheClearedEvent struct {
	Namespace ttlcache.Namespace
	All       bool
}

// Handler receives an event payload.
type Handler func(ctx context.Context, payload any)

// ListenerID identifies a registered handler for removal.
type ListenerID uint64

type listener struct {
	id   ListenerID
	fn   Handler
	once bool
}

// Emitter dispatches events to handlers registered under a string name.
// Handlers run synchronously, in registration order, on the emitting
// goroutine.
type Emitter struct {
	mu        sync.RWMutex
	next      ListenerID
	listeners map[string][]listener
}

// NewEmitter returns an Emitter with no listeners.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[string][]listener)}
}

// On registers fn for event and returns an ID usable with Off.
func (e *Emitter) On(event string, fn Handler) ListenerID {
	return e.add(event, fn, false)
}

// Once registers fn to run on the next emission of event only.
func (e *Emitter) Once(event string, fn Handler) ListenerID {
	return e.add(event, fn, true)
}

func (e *Emitter) add(event string, fn Handler, once bool) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	e.listeners[event] = append(e.listeners[event], listener{id: e.next, fn: fn, once: once})
	return e.next
}

// Off removes the listener with the given ID. It reports whether a listener
// was removed.
func (e *Emitter) Off(event string, id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(event, id)
}

func (e *Emitter) removeLocked(event string, id ListenerID) bool {
	ls := e.listeners[event]
	i := slices.IndexFunc(ls, func(l listener) bool { return l.id == id })
	if i < 0 {
		return false
	}
	ls = slices.Delete(ls, i, i+1)
	if len(ls) == 0 {
		delete(e.listeners, event)
	} else {
		e.listeners[event] = ls
	}
	return true
}

// Emit calls every handler registered for event. Handlers added or removed
// during dispatch take effect from the next Emit. A panicking handler is
// logged and does not stop the remaining handlers.
func (e *Emitter) Emit(ctx context.Context, event string, payload any) {
	e.mu.RLock()
	snapshot := slices.Clone(e.listeners[event])
	e.mu.RUnlock()

	for _, l := range snapshot {
		if l.once {
			e.mu.Lock()
			removed := e.removeLocked(event, l.id)
			e.mu.Unlock()
			if !removed {
				// Fired concurrently by another Emit.
				continue
			}
		}
		e.dispatch(ctx, event, l.fn, payload)
	}
}

func (e *Emitter) dispatch(ctx context.Context, event string, fn Handler, payload any) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.LogAttrs(ctx, slog.LevelError, "event handler panicked",
				slog.String("event", event),
				slog.Any("error", rec),
			)
		}
	}()
	fn(ctx, payload)
}

// ListenerCount returns the number of handlers registered for event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[event])
}

// RemoveAll drops every handler for event, or for all events when event is
// empty.
func (e *Emitter) RemoveAll(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if event == "" {
		clear(e.listeners)
		return
	}
	delete(e.listeners, event)
}
