package cache

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBackendRoundTrip(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)

	ok, err := b.Exists("foo")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Put("foo", bytes.NewBufferString("hello")))

	ok, err = b.Exists("foo")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := b.Get("foo")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "hello", string(data))

	require.NoError(t, b.Delete("foo"))
	ok, _ = b.Exists("foo")
	assert.False(t, ok)
}

func TestUnconfiguredBackendsReturnSentinel(t *testing.T) {
	_, err := NewMinioBackend("endpoint", "bucket")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewGHCRBackend("registry", "repo")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGetBestAvailablePrefersGHCR(t *testing.T) {
	local, _ := NewLocalBackend(t.TempDir())
	var ghcr Backend = local
	assert.Equal(t, Backend(local), GetBestAvailable(nil, nil, local))
	assert.Equal(t, ghcr, GetBestAvailable(ghcr, nil, local))
}
