package eventbus

import "sync"

// Value is a reactive value: the current state plus a change feed.
type Value[T any] struct {
	mu  sync.RWMutex
	v   T
	bus *Bus[T]
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{v: initial, bus: New[T]()}
}

func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.v
}

// Set stores next and returns the previous value.
func (v *Value[T]) Set(next T) T {
	return v.Update(func(T) T { return next })
}

// Update applies fn atomically and publishes the result.
func (v *Value[T]) Update(fn func(T) T) (prev T) {
	v.mu.Lock()
	prev = v.v
	v.v = fn(prev)
	cur := v.v
	// Publish under the lock so subscribers observe updates in order.
	v.bus.Publish(cur)
	v.mu.Unlock()
	return prev
}

func (v *Value[T]) Subscribe(bufSize int) (string, <-chan T) {
	return v.bus.Subscribe(bufSize)
}

func (v *Value[T]) Unsubscribe(id string) {
	v.bus.Unsubscribe(id)
}
