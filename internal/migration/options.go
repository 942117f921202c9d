package migration

import (
	"time"

	"github.com/juju/clock"
)

const (
	DefaultConcurrency  = 10
	DefaultPollInterval = time.Second
	DefaultStallTimeout = 10 * time.Minute
)

// Options tunes how a plan is executed.
type Options struct {
	// Concurrency caps the number of copy tasks in flight.
	Concurrency int
	// PollInterval is the delay between two status reads of one task, and
	// between two progress reports.
	PollInterval time.Duration
	// StallTimeout fails a copy that made no progress for this long.
	// Zero disables the check.
	StallTimeout time.Duration
	// LockDir holds the per-destination run locks. Empty uses DefaultLockDir.
	LockDir string
	// Clock drives every wait. Nil means the wall clock.
	Clock clock.Clock
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Concurrency:  DefaultConcurrency,
		PollInterval: DefaultPollInterval,
		StallTimeout: DefaultStallTimeout,
		Clock:        clock.WallClock,
	}
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.StallTimeout < 0 {
		o.StallTimeout = 0
	}
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
	return o
}
