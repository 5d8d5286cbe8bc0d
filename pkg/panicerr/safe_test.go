package panicerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTry(t *testing.T) {
	assert.NoError(t, Try(func() {}))

	err := Try(func() { panic("bad frame") })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "bad frame")
}

func TestCall(t *testing.T) {
	sentinel := errors.New("boom")
	assert.ErrorIs(t, Call(func() error { return sentinel }), sentinel)
	assert.NoError(t, Call(func() error { return nil }))

	err := Call(func() error { panic(sentinel) })
	assert.ErrorIs(t, err, ErrPanic)
}

func TestSafeContext(t *testing.T) {
	sentinel := errors.New("boom")
	fn := SafeContext(func(ctx context.Context) error { return sentinel })
	assert.ErrorIs(t, fn(context.Background()), sentinel)

	fn = SafeContext(func(ctx context.Context) error {
		var m map[string]int
		m["x"] = 1
		return nil
	})
	assert.ErrorIs(t, fn(context.Background()), ErrPanic)
}
