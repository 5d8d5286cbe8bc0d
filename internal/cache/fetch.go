package cache

import "context"

// Loader performs a remote list read.
type Loader[T any] func(ctx context.Context) ([]T, int, error)

// Fetch serves a fresh list from s, otherwise loads it. The version is taken
// before the request leaves, so a response that comes back after a newer local
// write cannot overwrite that write.
func Fetch[T any](ctx context.Context, s *Store[T], scope Scope, load Loader[T]) ([]T, int, error) {
	if items, total, state := s.List(scope); state == ListFresh {
		return items, total, nil
	}
	return Reload(ctx, s, scope, load)
}

// Reload always loads, regardless of the cached state.
func Reload[T any](ctx context.Context, s *Store[T], scope Scope, load Loader[T]) ([]T, int, error) {
	version := s.Begin()
	items, total, err := load(ctx)
	if err != nil {
		return nil, 0, err
	}
	s.PutList(version, scope, items, total)
	items, total, _ = s.List(scope)
	return items, total, nil
}
