// ABOUTME: Tests for the heartbeat refresher loop.
// ABOUTME: Validates periodic refresh, rebinding, and generation-change detection.

package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeaterRefreshesRecord(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBeater(BeaterParams{
		Store:      s,
		Interval:   10 * time.Millisecond,
		TTL:        50 * time.Millisecond,
		IdentityID: func() string { return "id-1" },
	})
	go b.Run(ctx)

	// The record should stay alive well past its TTL because the beater
	// keeps refreshing it.
	time.Sleep(150 * time.Millisecond)
	alive, err := s.Alive(ctx, "id-1")
	require.NoError(t, err)
	assert.True(t, alive)

	cancel()
	assert.Eventually(t, func() bool {
		alive, err := s.Alive(context.Background(), "id-1")
		return err == nil && !alive
	}, time.Second, 10*time.Millisecond, "record should expire once the beater stops")
}

func TestBeaterPicksUpRebind(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	id := "old-id"

	b := NewBeater(BeaterParams{
		Store:    s,
		Interval: 10 * time.Millisecond,
		TTL:      time.Minute,
		IdentityID: func() string {
			mu.Lock()
			defer mu.Unlock()
			return id
		},
	})
	go b.Run(ctx)

	assert.Eventually(t, func() bool {
		alive, _ := s.Alive(ctx, "old-id")
		return alive
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	id = "new-id"
	mu.Unlock()

	assert.Eventually(t, func() bool {
		alive, _ := s.Alive(ctx, "new-id")
		return alive
	}, time.Second, 5*time.Millisecond)
}

func TestBeaterDetectsGenerationChangeWithinOneInterval(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan int64, 1)
	interval := 20 * time.Millisecond

	b := NewBeater(BeaterParams{
		Store:      s,
		Interval:   interval,
		TTL:        time.Minute,
		IdentityID: func() string { return "id-1" },
		OnGenerationChange: func(gen int64) {
			select {
			case changed <- gen:
			default:
			}
		},
	})
	go b.Run(ctx)

	time.Sleep(interval)

	_, err := s.BumpGeneration(ctx)
	require.NoError(t, err)

	select {
	case gen := <-changed:
		assert.Equal(t, int64(1), gen)
	case <-time.After(10 * interval):
		t.Fatal("generation change not detected within a heartbeat interval")
	}
}

func TestBeaterDetectsResetBetweenBindAndFirstTick(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan int64, 1)
	interval := 20 * time.Millisecond

	// Baseline captured at construction, as a client does at bind time.
	b := NewBeater(BeaterParams{
		Store:      s,
		Interval:   interval,
		TTL:        time.Minute,
		Generation: 0,
		IdentityID: func() string { return "id-1" },
		OnGenerationChange: func(gen int64) {
			select {
			case changed <- gen:
			default:
			}
		},
	})

	// The reset lands before the loop even starts. It must still be
	// detected against the bind-time baseline, not adopted silently.
	_, err := s.BumpGeneration(ctx)
	require.NoError(t, err)

	go b.Run(ctx)

	select {
	case gen := <-changed:
		assert.Equal(t, int64(1), gen)
	case <-time.After(10 * interval):
		t.Fatal("reset before first tick was never detected")
	}
}

func TestBeaterSkipsEmptyIdentity(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBeater(BeaterParams{
		Store:      s,
		Interval:   10 * time.Millisecond,
		TTL:        time.Minute,
		IdentityID: func() string { return "" },
	})
	go b.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	alive, err := s.Alive(ctx, "")
	require.NoError(t, err)
	assert.False(t, alive)
}
