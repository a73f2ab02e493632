// Package expiry runs the background active-expiry sweep: a
// cron-scheduled pass that deletes keys whose expiration has already
// passed, so an expired key does not sit in the store until something
// happens to read it.
package expiry

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/nishisan-dev/redistore/internal/store"
)

// Sweeper drives one cron-scheduled expiry pass over a store.
type Sweeper struct {
	cron   *cron.Cron
	store  *store.Store
	logger *slog.Logger
}

// New builds a Sweeper that runs schedule (a standard cron expression,
// e.g. "@every 1s") against s. A logger of nil is fine.
func New(schedule string, s *store.Store, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New()
	sw := &Sweeper{cron: c, store: s, logger: logger.With("component", "expiry_sweeper")}

	if _, err := c.AddFunc(schedule, sw.sweep); err != nil {
		return nil, err
	}
	return sw, nil
}

// Start begins the cron schedule. Non-blocking.
func (sw *Sweeper) Start() { sw.cron.Start() }

// Stop halts the schedule and waits for any in-flight sweep to finish.
func (sw *Sweeper) Stop() { <-sw.cron.Stop().Done() }

func (sw *Sweeper) sweep() {
	n := sw.store.Sweep()
	if n > 0 {
		sw.logger.Debug("active expiry sweep removed keys", "count", n)
	}
}
