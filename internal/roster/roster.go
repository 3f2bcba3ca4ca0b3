// Package roster keeps a locally cached copy of a remote collection.
//
// A Roster is pull-based: Reload fetches the full collection and replaces the
// cache wholesale. Callers reload after every mutation and on view entry;
// nothing is pushed. Entries with a sentinel identity (id <= 0) are filtered
// out on every reload so they never reach a display or edit surface.
package roster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/model"
	"github.com/roach88/shopsync/internal/notify"
)

// Fetch loads the full remote collection.
type Fetch[T any] func(ctx context.Context) ([]T, error)

// Roster is a cached collection of T keyed by an int64 identity.
//
// Every change swaps in a fresh slice, so slices returned by Items are never
// modified afterwards and identity-based change detection sees every update.
type Roster[T any] struct {
	fetch Fetch[T]
	id    func(T) int64
	keep  func(T) bool
	name  string
	noun  string

	bus    *notify.Bus
	logger *slog.Logger

	mu      sync.RWMutex
	items   []T
	version uint64
}

// Option configures a Roster.
type Option[T any] func(*Roster[T])

// WithName names the roster in events and logs, e.g. "products".
func WithName[T any](name string) Option[T] {
	return func(r *Roster[T]) {
		r.name = name
	}
}

// WithNoun sets the entity noun used in guidance messages, e.g. "product".
func WithNoun[T any](noun string) Option[T] {
	return func(r *Roster[T]) {
		r.noun = noun
	}
}

// WithFilter adds a predicate entries must satisfy to be kept on reload.
// Sentinel entries are always dropped.
func WithFilter[T any](keep func(T) bool) Option[T] {
	return func(r *Roster[T]) {
		r.keep = keep
	}
}

// WithBus publishes reload and update events.
func WithBus[T any](b *notify.Bus) Option[T] {
	return func(r *Roster[T]) {
		r.bus = b
	}
}

// WithLogger sets the logger.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(r *Roster[T]) {
		r.logger = l
	}
}

// New creates an empty roster. Call Reload to populate it.
func New[T any](fetch Fetch[T], id func(T) int64, opts ...Option[T]) *Roster[T] {
	r := &Roster[T]{
		fetch:  fetch,
		id:     id,
		name:   "roster",
		noun:   "entry",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reload fetches the collection and replaces the cache. On error the cache
// is left as it was.
func (r *Roster[T]) Reload(ctx context.Context) error {
	fetched, err := r.fetch(ctx)
	if err != nil {
		r.logger.Warn("roster reload failed", "roster", r.name, "error", err)
		return fmt.Errorf("reload %s: %w", r.name, err)
	}

	items := make([]T, 0, len(fetched))
	dropped := 0
	for _, it := range fetched {
		if model.IsSentinel(r.id(it)) || (r.keep != nil && !r.keep(it)) {
			dropped++
			continue
		}
		items = append(items, it)
	}
	if dropped > 0 {
		r.logger.Debug("filtered roster entries", "roster", r.name, "dropped", dropped)
	}

	r.mu.Lock()
	r.items = items
	r.version++
	r.mu.Unlock()

	r.bus.Publish(notify.Event{Topic: notify.TopicRosterReloaded, Source: r.name})
	return nil
}

// Items returns the cached entries in fetch order.
// The returned slice must not be modified.
func (r *Roster[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items
}

// Len returns the number of cached entries.
func (r *Roster[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Version increases on every reload or local change.
func (r *Roster[T]) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Get returns the entry with the given id.
func (r *Roster[T]) Get(id int64) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.items[i], true
	}
	var zero T
	return zero, false
}

// Editable returns the entry with the given id, or a StaleEntity guidance
// error when the id is a sentinel or the entry is no longer cached.
func (r *Roster[T]) Editable(id int64) (T, error) {
	var zero T
	if model.IsSentinel(id) {
		return zero, failure.Stale("Cannot edit this %s (Invalid ID). Please refresh the page to clean up.", r.noun)
	}
	it, ok := r.Get(id)
	if !ok {
		return zero, failure.Stale("This %s no longer exists. Please refresh the page.", r.noun)
	}
	return it, nil
}

// Replace swaps the cached entry with the same identity for it.
// Reports false, changing nothing, if no such entry is cached.
func (r *Roster[T]) Replace(it T) bool {
	id := r.id(it)
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	items := r.clone()
	items[i] = it
	r.commit(items)
	r.mu.Unlock()

	r.publishUpdate("replace")
	return true
}

// Upsert replaces the entry with the same identity, or appends it.
// Sentinel entries are ignored.
func (r *Roster[T]) Upsert(it T) {
	id := r.id(it)
	if model.IsSentinel(id) {
		return
	}
	r.mu.Lock()
	items := r.clone()
	if i := r.indexOf(id); i >= 0 {
		items[i] = it
	} else {
		items = append(items, it)
	}
	r.commit(items)
	r.mu.Unlock()

	r.publishUpdate("upsert")
}

// Remove drops the entry with the given id. Reports whether it was cached.
func (r *Roster[T]) Remove(id int64) bool {
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	items := make([]T, 0, len(r.items)-1)
	items = append(items, r.items[:i]...)
	items = append(items, r.items[i+1:]...)
	r.commit(items)
	r.mu.Unlock()

	r.publishUpdate("remove")
	return true
}

func (r *Roster[T]) indexOf(id int64) int {
	for i, it := range r.items {
		if r.id(it) == id {
			return i
		}
	}
	return -1
}

func (r *Roster[T]) clone() []T {
	out := make([]T, len(r.items), len(r.items)+1)
	copy(out, r.items)
	return out
}

// commit installs items. Must be called with r.mu held.
func (r *Roster[T]) commit(items []T) {
	r.items = items
	r.version++
}

func (r *Roster[T]) publishUpdate(op string) {
	r.bus.Publish(notify.Event{Topic: notify.TopicRosterUpdated, Source: r.name, Message: op})
}
