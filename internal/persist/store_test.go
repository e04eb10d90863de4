package persist

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Load(ctx, "cache")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, "cache", []byte(`{"v":1}`)))
	data, err := store.Load(ctx, "cache")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), data)

	// Saves replace, never append.
	require.NoError(t, store.Save(ctx, "cache", []byte(`{"v":2}`)))
	data, err = store.Load(ctx, "cache")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":2}`), data)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisStore(client, "", time.Hour)
	ctx := context.Background()

	_, err := store.Load(ctx, "dedup")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, "dedup", []byte("fingerprints")))
	data, err := store.Load(ctx, "dedup")
	require.NoError(t, err)
	assert.Equal(t, []byte("fingerprints"), data)

	// TTL expiry surfaces as not found.
	mr.FastForward(2 * time.Hour)
	_, err = store.Load(ctx, "dedup")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotter_SaveAndRestore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	var state string
	s := NewSnapshotter(store, time.Minute, nil)
	s.Register(Source{
		Name:    "cache",
		Encode:  func() ([]byte, error) { return []byte(state), nil },
		Restore: func(data []byte) error { state = string(data); return nil },
	})

	ctx := context.Background()

	// Nothing saved yet: restore is a silent cold start.
	s.RestoreAll(ctx)
	assert.Empty(t, state)

	state = "warm entries"
	s.SaveAll(ctx)

	state = ""
	s.RestoreAll(ctx)
	assert.Equal(t, "warm entries", state)
}

func TestSnapshotter_CorruptSnapshotIsColdStart(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "cache", []byte("{garbage")))

	s := NewSnapshotter(store, time.Minute, nil)
	restored := false
	s.Register(Source{
		Name:    "cache",
		Encode:  func() ([]byte, error) { return nil, nil },
		Restore: func([]byte) error { return fmt.Errorf("unmarshal failed") },
	})

	assert.NotPanics(t, func() { s.RestoreAll(ctx) })
	assert.False(t, restored)
}

func TestSnapshotter_EncodeFailureSkipsSource(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	s := NewSnapshotter(store, time.Minute, nil)
	s.Register(Source{
		Name:    "broken",
		Encode:  func() ([]byte, error) { return nil, fmt.Errorf("encode failed") },
		Restore: func([]byte) error { return nil },
	})
	s.Register(Source{
		Name:    "fine",
		Encode:  func() ([]byte, error) { return []byte("ok"), nil },
		Restore: func([]byte) error { return nil },
	})

	s.SaveAll(ctx)

	_, err = store.Load(ctx, "broken")
	assert.ErrorIs(t, err, ErrNotFound)
	data, err := store.Load(ctx, "fine")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
}
