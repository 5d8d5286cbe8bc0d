package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kazz187/trackline/internal/cache"
	"github.com/kazz187/trackline/internal/realtime"
	"github.com/kazz187/trackline/pkg/panicerr"
)

const DefaultPageSize = 50

// Reconciler merges pushed notifications into the cache and the unread
// counter, and runs the mark-read mutations.
type Reconciler struct {
	client   Client
	store    *cache.Store[Notification]
	counter  *Counter
	pageSize int

	mu sync.Mutex
	// seen holds every id delivered by push during this session. Together
	// with the cache it makes redelivery after a reconnect count once.
	seen map[string]struct{}
}

func NewReconciler(client Client, store *cache.Store[Notification], counter *Counter) *Reconciler {
	return &Reconciler{
		client:   client,
		store:    store,
		counter:  counter,
		pageSize: DefaultPageSize,
		seen:     make(map[string]struct{}),
	}
}

func (r *Reconciler) Counter() *Counter {
	return r.counter
}

// Run consumes channel events until events is closed or ctx ends.
func (r *Reconciler) Run(ctx context.Context, events <-chan realtime.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg, isMsg := ev.(realtime.EventMessage)
			if !isMsg {
				continue
			}
			var err error
			if perr := panicerr.Try(func() { err = r.HandleEnvelope(ctx, msg.Envelope) }); perr != nil {
				err = perr
			}
			if err != nil {
				slog.WarnContext(ctx, "dropped push message",
					"component", "notification", "type", msg.Envelope.Type, "error", err)
			}
		}
	}
}

// HandleEnvelope applies one push message. Types other than notification are
// ignored.
func (r *Reconciler) HandleEnvelope(ctx context.Context, env realtime.Envelope) error {
	if env.Type != PushType {
		slog.DebugContext(ctx, "ignored push message", "component", "notification", "type", env.Type)
		return nil
	}
	var n Notification
	if err := json.Unmarshal(env.Data, &n); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	if n.ID == "" {
		return fmt.Errorf("notification without id")
	}
	r.Deliver(n)
	return nil
}

// Deliver merges one inbound notification. It reports whether the unread
// counter was incremented.
func (r *Reconciler) Deliver(n Notification) bool {
	r.mu.Lock()
	_, seen := r.seen[n.ID]
	r.seen[n.ID] = struct{}{}
	r.mu.Unlock()
	if _, cached := r.store.Read(n.ID); cached {
		seen = true
	}

	r.store.Prepend(r.store.Begin(), ListScope(), n)
	if seen || n.Read {
		return false
	}
	r.counter.Add(1)
	return true
}

// Load returns the first page of notifications, from the cache when fresh.
func (r *Reconciler) Load(ctx context.Context) ([]Notification, int, error) {
	return cache.Fetch(ctx, r.store, ListScope(), r.loader())
}

// Refresh reloads the list and takes the unread count from the server.
func (r *Reconciler) Refresh(ctx context.Context) ([]Notification, error) {
	items, _, err := cache.Reload(ctx, r.store, ListScope(), r.loader())
	if err != nil {
		return nil, err
	}
	count, err := r.client.GetUnreadCount(ctx)
	if err != nil {
		return nil, err
	}
	r.counter.Set(count)
	return items, nil
}

func (r *Reconciler) loader() cache.Loader[Notification] {
	return func(ctx context.Context) ([]Notification, int, error) {
		return r.client.ListNotifications(ctx, r.pageSize, 0)
	}
}

// MarkRead flips the notification and the badge right away. A failed call is
// retried once before the change is undone and the error returned.
func (r *Reconciler) MarkRead(ctx context.Context, id string) error {
	before, cached := r.store.Read(id)
	if cached && before.Read {
		return nil
	}
	if cached {
		after := before
		after.Read = true
		r.store.Write(r.store.Begin(), after)
	}
	r.counter.Add(-1)

	err := r.client.MarkRead(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "mark read failed, retrying",
			"component", "notification", "notification_id", id, "error", err)
		err = r.client.MarkRead(ctx, id)
	}
	if err == nil {
		return nil
	}

	if cached {
		if cur, ok := r.store.Read(id); ok && cur.Read {
			r.store.Write(r.store.Begin(), before)
		}
	}
	r.counter.Add(1)
	slog.ErrorContext(ctx, "mark read failed",
		"component", "notification", "notification_id", id, "error", err)
	return err
}

// MarkAllRead zeroes the badge and flips every cached notification. On
// failure the counter gets back what it held and exactly the flipped
// notifications become unread again.
func (r *Reconciler) MarkAllRead(ctx context.Context) error {
	unread := r.store.Select(func(n Notification) bool { return !n.Read })
	prev := r.counter.Set(0)
	version := r.store.Begin()
	for _, n := range unread {
		n.Read = true
		r.store.Write(version, n)
	}

	err := r.client.MarkAllRead(ctx)
	if err == nil {
		return nil
	}

	r.counter.Add(prev)
	version = r.store.Begin()
	for _, n := range unread {
		if cur, ok := r.store.Read(n.ID); ok && cur.Read {
			r.store.Write(version, n)
		}
	}
	slog.ErrorContext(ctx, "mark all read failed",
		"component", "notification", "restored_count", prev, "restored_items", len(unread), "error", err)
	return err
}

// Forget drops the session's delivery history.
func (r *Reconciler) Forget() {
	r.mu.Lock()
	r.seen = make(map[string]struct{})
	r.mu.Unlock()
}
