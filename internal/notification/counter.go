package notification

import "github.com/kazz187/trackline/internal/eventbus"

// Counter is the unread badge. It never goes below zero.
type Counter struct {
	v *eventbus.Value[int]
}

func NewCounter() *Counter {
	return &Counter{v: eventbus.NewValue(0)}
}

func (c *Counter) Get() int {
	return c.v.Get()
}

// Set stores n, floored at zero, and returns the previous value.
func (c *Counter) Set(n int) int {
	return c.v.Set(max(n, 0))
}

// Add adds delta, floored at zero, and returns the new value.
func (c *Counter) Add(delta int) int {
	prev := c.v.Update(func(cur int) int { return max(cur+delta, 0) })
	return max(prev+delta, 0)
}

func (c *Counter) Subscribe(bufSize int) (string, <-chan int) {
	return c.v.Subscribe(bufSize)
}

func (c *Counter) Unsubscribe(id string) {
	c.v.Unsubscribe(id)
}
