// ABOUTME: Tests for the reset coordinator.
// ABOUTME: Validates workspace recreation, heartbeat clearing, generation bump, and the broadcast.

package reset

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolweave/toolweave/internal/bus"
	"github.com/toolweave/toolweave/internal/heartbeat"
	"github.com/toolweave/toolweave/internal/protocol"
	"github.com/toolweave/toolweave/internal/store"
	"github.com/toolweave/toolweave/internal/subject"
)

func newCoordinator(t *testing.T) (*Coordinator, *store.SQLiteStore, *heartbeat.MemoryStore, *bus.Memory) {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	hb := heartbeat.NewMemoryStore()
	t.Cleanup(hb.Close)

	b := bus.NewMemory()
	t.Cleanup(b.Close)

	c := NewCoordinator(CoordinatorParams{
		Store:      s,
		Heartbeats: hb,
		Bus:        b,
		Router:     subject.Router{},
	})
	return c, s, hb, b
}

func TestResetRecreatesDefaultWorkspace(t *testing.T) {
	c, s, _, _ := newCoordinator(t)
	ctx := context.Background()

	w1, err := s.CreateWorkspace(ctx, "default", true)
	require.NoError(t, err)

	w2, err := c.Reset(ctx, "operator requested")
	require.NoError(t, err)
	assert.NotEqual(t, w1.ID, w2.ID)

	def, err := s.DefaultWorkspace(ctx)
	require.NoError(t, err)
	assert.Equal(t, w2.ID, def.ID)
}

func TestResetClearsHeartbeatsAndBumpsGeneration(t *testing.T) {
	c, _, hb, _ := newCoordinator(t)
	ctx := context.Background()

	require.NoError(t, hb.Beat(ctx, "id-1", time.Minute))
	require.NoError(t, hb.Beat(ctx, "id-2", time.Minute))

	_, err := c.Reset(ctx, "")
	require.NoError(t, err)

	for _, id := range []string{"id-1", "id-2"} {
		alive, err := hb.Alive(ctx, id)
		require.NoError(t, err)
		assert.False(t, alive, "heartbeat store must be empty after reset")
	}

	gen, err := hb.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
}

func TestResetBroadcastsReconnect(t *testing.T) {
	c, _, _, b := newCoordinator(t)
	registry := protocol.NewDefaultRegistry()

	received := make(chan *protocol.ReconnectRuntimes, 1)
	_, err := b.Subscribe(subject.Router{}.ReconnectRuntimes(), func(m *bus.Msg) {
		msg, err := registry.Decode(m.Data)
		if err != nil {
			return
		}
		if rr, ok := msg.(*protocol.ReconnectRuntimes); ok {
			received <- rr
		}
	})
	require.NoError(t, err)

	_, err = c.Reset(context.Background(), "nightly rebuild")
	require.NoError(t, err)

	select {
	case rr := <-received:
		assert.Equal(t, "nightly rebuild", rr.Reason)
	case <-time.After(time.Second):
		t.Fatal("reconnect broadcast not delivered")
	}
}

// Nobody listening: reset still succeeds, the broadcast is best-effort.
func TestResetWithoutSubscribers(t *testing.T) {
	c, _, _, _ := newCoordinator(t)

	ws, err := c.Reset(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, ws)
}
