package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/trackline/pkg/cerr"
	"github.com/kazz187/trackline/pkg/storage"
)

const (
	credentialsPath = "session.yaml"

	// debounceInterval lets an atomic replace (remove + rename) settle before
	// the file is checked.
	debounceInterval = 100 * time.Millisecond
)

// Credentials identify one logged-in session.
type Credentials struct {
	Token     string    `yaml:"token"`
	ServerURL string    `yaml:"server_url"`
	ProjectID string    `yaml:"project_id,omitempty"`
	SavedAt   time.Time `yaml:"saved_at"`
}

// TokenStore keeps the credentials in a storage.Storage.
type TokenStore struct {
	storage storage.Storage
}

func NewTokenStore(s storage.Storage) *TokenStore {
	return &TokenStore{storage: s}
}

func (t *TokenStore) Save(ctx context.Context, c Credentials) error {
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now()
	}
	data, err := yaml.Marshal(&c)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := t.storage.Write(ctx, credentialsPath, data); err != nil {
		return cerr.WrapStorageWriteError("credentials", err)
	}
	return nil
}

// Load fails with NotFound when nobody is logged in.
func (t *TokenStore) Load(ctx context.Context) (Credentials, error) {
	data, err := t.storage.Read(ctx, credentialsPath)
	if err != nil {
		return Credentials{}, cerr.WrapStorageReadError("credentials", err)
	}
	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Credentials{}, cerr.NewError(cerr.DataLoss, "credentials file is corrupt", err)
	}
	if c.Token == "" {
		return Credentials{}, cerr.NewError(cerr.NotFound, "credentials not found", nil)
	}
	return c, nil
}

// Remove logs out. Removing missing credentials is not an error.
func (t *TokenStore) Remove(ctx context.Context) error {
	err := t.storage.Delete(ctx, credentialsPath)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return cerr.WrapStorageDeleteError("credentials", err)
	}
	return nil
}

// Watch returns a channel that is closed once the credentials file has been
// removed, by Remove or by hand. It only works on file-backed storages.
func (t *TokenStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	locator, ok := t.storage.(storage.Locator)
	if !ok {
		return nil, fmt.Errorf("storage %T cannot be watched", t.storage)
	}
	full := locator.Locate(credentialsPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: atomic writes replace the file's inode.
	if err := watcher.Add(filepath.Dir(full)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(full), err)
	}

	removed := make(chan struct{})
	go func() {
		defer watcher.Close()
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != credentialsPath || ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				debounce = time.After(debounceInterval)
			case <-debounce:
				debounce = nil
				exists, err := t.storage.Exists(ctx, credentialsPath)
				if err != nil || exists {
					continue
				}
				slog.InfoContext(ctx, "credentials removed", "component", "session")
				close(removed)
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "credentials watcher error", "component", "session", "error", err)
			}
		}
	}()
	return removed, nil
}
