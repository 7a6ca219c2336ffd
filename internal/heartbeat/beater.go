// ABOUTME: Background loop refreshing one connection's heartbeat record on a fixed interval.
// ABOUTME: Detects reset-generation changes so a connection that missed the broadcast still recovers.

package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is the nominal refresh cadence for heartbeat records.
const DefaultInterval = 30 * time.Second

// DefaultTTL is the default record lifetime. It spans several intervals so
// a single delayed refresh does not read as staleness.
const DefaultTTL = 90 * time.Second

// Beater refreshes the bound identity's heartbeat record on a fixed
// interval. Before each beat it compares the store's reset generation to
// the baseline captured at bind time: a mismatch means a reset happened
// while this connection wasn't listening, and OnGenerationChange fires so
// the owner can re-run the connect handshake. Recovery therefore converges
// within one heartbeat interval of a missed reset. The owner must read the
// baseline before spawning Run, or a reset that lands in between is
// silently adopted.
type Beater struct {
	store    Store
	interval time.Duration
	ttl      time.Duration
	baseline int64
	logger   *slog.Logger

	// IdentityID returns the currently bound identity. Read every tick so
	// a rebind takes effect without restarting the loop.
	identityID func() string

	// onGenerationChange is invoked once per observed reset generation.
	onGenerationChange func(gen int64)
}

// BeaterParams configures a Beater.
type BeaterParams struct {
	Store    Store
	Interval time.Duration
	TTL      time.Duration

	// Generation is the reset generation at bind time. Run treats any later
	// value as a missed reset.
	Generation int64

	IdentityID         func() string
	OnGenerationChange func(gen int64)
	Logger             *slog.Logger
}

// NewBeater creates a heartbeat refresher. Interval and TTL fall back to
// the package defaults when zero.
func NewBeater(p BeaterParams) *Beater {
	interval := p.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	ttl := p.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default().With("component", "heartbeat")
	}
	return &Beater{
		store:              p.Store,
		interval:           interval,
		ttl:                ttl,
		baseline:           p.Generation,
		identityID:         p.IdentityID,
		onGenerationChange: p.OnGenerationChange,
		logger:             logger,
	}
}

// Run beats immediately, then on every interval tick until ctx is done.
// It never returns an error: heartbeat failures are logged and retried on
// the next tick, because a transient store outage must not kill the
// connection it describes.
func (b *Beater) Run(ctx context.Context) {
	lastGen := b.baseline

	b.beat(ctx)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			gen, err := b.store.Generation(ctx)
			if err != nil {
				b.logger.Warn("reading generation", "error", err)
			} else if gen != lastGen {
				b.logger.Info("reset generation changed", "old", lastGen, "new", gen)
				lastGen = gen
				if b.onGenerationChange != nil {
					b.onGenerationChange(gen)
				}
			}
			b.beat(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Beater) beat(ctx context.Context) {
	id := b.identityID()
	if id == "" {
		return
	}
	if err := b.store.Beat(ctx, id, b.ttl); err != nil {
		b.logger.Warn("refreshing heartbeat", "identity_id", id, "error", err)
	}
}
