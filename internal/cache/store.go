package cache

import (
	"log/slog"
	"sync"

	"github.com/kazz187/trackline/internal/eventbus"
)

type ListState int

const (
	ListMissing ListState = iota
	ListStale
	ListFresh
)

func (s ListState) String() string {
	switch s {
	case ListStale:
		return "stale"
	case ListFresh:
		return "fresh"
	default:
		return "missing"
	}
}

// Change is published for every applied entity write.
type Change[T any] struct {
	ID      string
	Value   T
	Version Version
}

type Options[T any] struct {
	// Name is used in log lines.
	Name string
	// Key returns the entity id.
	Key func(T) string
	// Clone deep-copies an entity. Values holding pointers or slices must set
	// it so readers can never mutate the stored record.
	Clone func(T) T
}

type entry[T any] struct {
	value   T
	version Version
}

type list struct {
	scope Scope
	ids   []string
	total int
	stale bool
}

// Store is the normalized cache for one entity kind. Point entities are keyed
// by id; list reads are recorded per scope and only reference ids, so a write
// to an entity is visible through every list that contains it.
type Store[T any] struct {
	clock *Clock
	opts  Options[T]

	mu       sync.RWMutex
	entities map[string]entry[T]
	lists    map[string]*list
	changes  *eventbus.Bus[Change[T]]
}

func NewStore[T any](clock *Clock, opts Options[T]) *Store[T] {
	if opts.Clone == nil {
		opts.Clone = func(v T) T { return v }
	}
	return &Store[T]{
		clock:    clock,
		opts:     opts,
		entities: make(map[string]entry[T]),
		lists:    make(map[string]*list),
		changes:  eventbus.New[Change[T]](),
	}
}

// Begin returns the version a writer must use for the writes that result from
// work it is starting now.
func (s *Store[T]) Begin() Version {
	return s.clock.Next()
}

// Write upserts value by id. The write is applied only if version is not older
// than the stored one; it reports whether it was applied.
func (s *Store[T]) Write(version Version, value T) bool {
	s.mu.Lock()
	applied := s.writeLocked(version, value)
	s.mu.Unlock()
	if applied {
		s.changes.Publish(Change[T]{ID: s.opts.Key(value), Value: s.opts.Clone(value), Version: version})
	}
	return applied
}

func (s *Store[T]) writeLocked(version Version, value T) bool {
	id := s.opts.Key(value)
	if cur, ok := s.entities[id]; ok && version < cur.version {
		slog.Debug("discarded stale cache write",
			"component", "cache", "store", s.opts.Name, "id", id,
			"version", uint64(version), "current_version", uint64(cur.version))
		return false
	}
	s.entities[id] = entry[T]{value: s.opts.Clone(value), version: version}
	return true
}

func (s *Store[T]) Read(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		var zero T
		return zero, false
	}
	return s.opts.Clone(e.value), true
}

// VersionOf returns the version of the stored entity, or 0 when absent.
func (s *Store[T]) VersionOf(id string) Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entities[id].version
}

// Select returns copies of every cached entity matching pred, in no
// particular order.
func (s *Store[T]) Select(pred func(T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []T
	for _, e := range s.entities {
		if pred(e.value) {
			out = append(out, s.opts.Clone(e.value))
		}
	}
	return out
}

// PutList records the result of a list read under scope and upserts each item
// with the same last-writer-wins rule as Write.
func (s *Store[T]) PutList(version Version, scope Scope, items []T, total int) {
	var applied []Change[T]
	s.mu.Lock()
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, s.opts.Key(item))
		if s.writeLocked(version, item) {
			applied = append(applied, Change[T]{ID: s.opts.Key(item), Value: s.opts.Clone(item), Version: version})
		}
	}
	s.lists[scope.key()] = &list{scope: scope, ids: ids, total: total}
	s.mu.Unlock()
	for _, c := range applied {
		s.changes.Publish(c)
	}
}

// List resolves a recorded list read to the current entity values.
func (s *Store[T]) List(scope Scope) ([]T, int, ListState) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[scope.key()]
	if !ok {
		return nil, 0, ListMissing
	}
	items := make([]T, 0, len(l.ids))
	for _, id := range l.ids {
		if e, ok := s.entities[id]; ok {
			items = append(items, s.opts.Clone(e.value))
		}
	}
	state := ListFresh
	if l.stale {
		state = ListStale
	}
	return items, l.total, state
}

// Prepend puts value at the head of the list recorded under scope. Nothing
// happens when the list was never fetched or already contains the id; it
// reports whether the list changed.
func (s *Store[T]) Prepend(version Version, scope Scope, value T) bool {
	id := s.opts.Key(value)
	s.mu.Lock()
	l, ok := s.lists[scope.key()]
	if !ok {
		s.mu.Unlock()
		return false
	}
	for _, existing := range l.ids {
		if existing == id {
			s.mu.Unlock()
			return false
		}
	}
	l.ids = append([]string{id}, l.ids...)
	l.total++
	applied := s.writeLocked(version, value)
	s.mu.Unlock()
	if applied {
		s.changes.Publish(Change[T]{ID: id, Value: s.opts.Clone(value), Version: version})
	}
	return true
}

// Invalidate marks every list under prefix stale so the next read refetches.
// Point entities are kept. It returns the number of lists marked.
func (s *Store[T]) Invalidate(prefix Scope) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.lists {
		if l.scope.HasPrefix(prefix) && !l.stale {
			l.stale = true
			n++
		}
	}
	return n
}

func (s *Store[T]) Subscribe(bufSize int) (string, <-chan Change[T]) {
	return s.changes.Subscribe(bufSize)
}

func (s *Store[T]) Unsubscribe(id string) {
	s.changes.Unsubscribe(id)
}

// Clear drops every entity and list. Subscriptions stay open.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = make(map[string]entry[T])
	s.lists = make(map[string]*list)
}
