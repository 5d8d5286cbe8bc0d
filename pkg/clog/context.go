package clog

import (
	"context"
	"maps"
	"sync"
)

// Attributes collected on a context are appended to every record logged with
// that context once the root logger is wrapped in an AttributesHandler.
type ctxAttrs struct {
	mu    sync.RWMutex
	attrs map[string]any
}

type ctxAttrsKey struct{}

const (
	ErrorAttributeKey = "error.message"
	StackAttributeKey = "error.stack"
)

// ContextWithSlog returns a context carrying a fresh attribute set. Calling it
// on a context that already carries one shadows the parent set.
func ContextWithSlog(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxAttrsKey{}, &ctxAttrs{attrs: make(map[string]any)})
}

func fromContext(ctx context.Context) *ctxAttrs {
	a, _ := ctx.Value(ctxAttrsKey{}).(*ctxAttrs)
	return a
}

func AddAttribute(ctx context.Context, key string, value any) {
	a := fromContext(ctx)
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attrs[key] = value
}

func AddAttributes(ctx context.Context, attributes map[string]any) {
	a := fromContext(ctx)
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	mergeMaps(a.attrs, attributes)
}

func GetAttribute[T any](ctx context.Context, key string) T {
	var zero T
	a := fromContext(ctx)
	if a == nil {
		return zero
	}
	a.mu.RLock()
	v, ok := a.attrs[key]
	a.mu.RUnlock()
	if !ok {
		return zero
	}
	typed, ok := v.(T)
	if !ok {
		return zero
	}
	return typed
}

func GetAttributes(ctx context.Context) map[string]any {
	a := fromContext(ctx)
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.attrs)
}

func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		vMap, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		if dstMap, ok := dst[k].(map[string]any); ok {
			mergeMaps(dstMap, vMap)
		} else {
			dst[k] = vMap
		}
	}
}

func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func GetError(ctx context.Context) error {
	return GetAttribute[error](ctx, ErrorAttributeKey)
}

func AddStack(ctx context.Context, stack string) {
	AddAttribute(ctx, StackAttributeKey, stack)
}
