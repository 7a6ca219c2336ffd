// ABOUTME: Tests for the in-memory heartbeat store.
// ABOUTME: Validates TTL expiry, bulk clear, and the reset generation counter.

package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreBeatAndAlive(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	alive, err := s.Alive(ctx, "id-1")
	require.NoError(t, err)
	assert.False(t, alive)

	require.NoError(t, s.Beat(ctx, "id-1", time.Minute))

	alive, err = s.Alive(ctx, "id-1")
	require.NoError(t, err)
	assert.True(t, alive)

	seen, ok, err := s.LastSeen(ctx, "id-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), seen, time.Second)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Beat(ctx, "id-1", 15*time.Millisecond))

	alive, err := s.Alive(ctx, "id-1")
	require.NoError(t, err)
	assert.True(t, alive)

	// Absence after TTL is the staleness signal.
	assert.Eventually(t, func() bool {
		alive, err := s.Alive(ctx, "id-1")
		return err == nil && !alive
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryStoreRefreshExtendsTTL(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Beat(ctx, "id-1", 40*time.Millisecond))
	time.Sleep(25 * time.Millisecond)
	require.NoError(t, s.Beat(ctx, "id-1", 40*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	alive, err := s.Alive(ctx, "id-1")
	require.NoError(t, err)
	assert.True(t, alive, "refresh should have extended the record's life")
}

func TestMemoryStoreClearAll(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Beat(ctx, "id-1", time.Minute))
	require.NoError(t, s.Beat(ctx, "id-2", time.Minute))

	require.NoError(t, s.ClearAll(ctx))

	for _, id := range []string{"id-1", "id-2"} {
		alive, err := s.Alive(ctx, id)
		require.NoError(t, err)
		assert.False(t, alive)
	}
}

func TestMemoryStoreGeneration(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	gen, err := s.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	bumped, err := s.BumpGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bumped)

	// ClearAll must not reset the generation counter.
	require.NoError(t, s.ClearAll(ctx))
	gen, err = s.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
}

func TestMonitor(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()
	m := NewMonitor(s)

	alive, err := m.Alive(ctx, "id-1")
	require.NoError(t, err)
	assert.False(t, alive)

	require.NoError(t, s.Beat(ctx, "id-1", time.Minute))

	alive, err = m.Alive(ctx, "id-1")
	require.NoError(t, err)
	assert.True(t, alive)
}
