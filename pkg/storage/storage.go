package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// Storage is the small key/value surface the client needs to keep state
// across process restarts (the session token).
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Locator is implemented by storages backed by real files, so callers can
// watch them for out-of-band changes.
type Locator interface {
	Locate(path string) string
}
