package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "session/token.yaml")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, "session/token.yaml", []byte("token: abc\n")))

	ok, err = s.Exists(ctx, "session/token.yaml")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := s.Read(ctx, "session/token.yaml")
	require.NoError(t, err)
	assert.Equal(t, "token: abc\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(s.Locate("session/token.yaml")))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, s.Delete(ctx, "session/token.yaml"))
	_, err = s.Read(ctx, "session/token.yaml")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "session/token.yaml"), ErrNotFound)
}

func TestLocalStorage_LocateStaysUnderBase(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	got := s.Locate("../../etc/passwd")
	assert.Equal(t, filepath.Join(base, "etc/passwd"), got)
}
