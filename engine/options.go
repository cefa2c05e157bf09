package engine

import (
	"time"

	"golang.org/x/time/rate"
)

// Options are the tunable policies of an editor session. Zero values are
// replaced by the defaults below.
type Options struct {
	// HistoryLimit bounds the undo stack; the oldest entry is dropped on
	// overflow.
	HistoryLimit int

	// PresenceTTL is the liveness window after which a collaborator that has
	// not refreshed its presence is treated as gone. Covers silently dropped
	// sockets where no explicit leave ever arrives.
	PresenceTTL time.Duration

	// SweepInterval is how often stale presence entries are purged.
	SweepInterval time.Duration

	// PresenceRate throttles outbound cursor/presence updates; cursor moves
	// fire on every pointer event and would otherwise flood the relay.
	PresenceRate  rate.Limit
	PresenceBurst int

	// ReconcileMinBackoff/ReconcileMaxBackoff bound the retry delay when the
	// authoritative fetch after a reconnect fails.
	ReconcileMinBackoff time.Duration
	ReconcileMaxBackoff time.Duration
}

const (
	defaultHistoryLimit  = 50
	defaultPresenceTTL   = 30 * time.Second
	defaultSweepInterval = 5 * time.Second
	defaultPresenceRate  = rate.Limit(20)
	defaultPresenceBurst = 5
	defaultMinBackoff    = 500 * time.Millisecond
	defaultMaxBackoff    = 30 * time.Second
)

func (o Options) withDefaults() Options {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = defaultHistoryLimit
	}
	if o.PresenceTTL <= 0 {
		o.PresenceTTL = defaultPresenceTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = defaultSweepInterval
	}
	if o.PresenceRate <= 0 {
		o.PresenceRate = defaultPresenceRate
	}
	if o.PresenceBurst <= 0 {
		o.PresenceBurst = defaultPresenceBurst
	}
	if o.ReconcileMinBackoff <= 0 {
		o.ReconcileMinBackoff = defaultMinBackoff
	}
	if o.ReconcileMaxBackoff <= 0 {
		o.ReconcileMaxBackoff = defaultMaxBackoff
	}
	return o
}
