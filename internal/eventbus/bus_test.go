package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New[string]()
	id1, ch1 := b.Subscribe(4)
	_, ch2 := b.Subscribe(4)

	b.Publish("a")
	assert.Equal(t, "a", <-ch1)
	assert.Equal(t, "a", <-ch2)

	b.Unsubscribe(id1)
	_, ok := <-ch1
	assert.False(t, ok, "unsubscribed channel must be closed")

	b.Publish("b")
	assert.Equal(t, "b", <-ch2)
}

func TestBus_DropsWhenFull(t *testing.T) {
	b := New[int]()
	_, ch := b.Subscribe(1)
	b.Publish(1)
	b.Publish(2)
	assert.Equal(t, 1, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %d", v)
	default:
	}
}

func TestBus_Close(t *testing.T) {
	b := New[int]()
	_, ch := b.Subscribe(1)
	b.Close()
	_, ok := <-ch
	assert.False(t, ok)
	b.Publish(1)
}

func TestValue(t *testing.T) {
	v := NewValue(3)
	_, ch := v.Subscribe(8)

	prev := v.Set(5)
	assert.Equal(t, 3, prev)
	assert.Equal(t, 5, v.Get())

	prev = v.Update(func(n int) int { return n - 1 })
	assert.Equal(t, 5, prev)
	assert.Equal(t, 4, v.Get())

	require.Len(t, ch, 2)
	assert.Equal(t, 5, <-ch)
	assert.Equal(t, 4, <-ch)
}
