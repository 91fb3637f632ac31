package scheduler

import (
	"context"
	"time"

	"fleetcore_backend/platform/logger"
)

// Periodic enqueues the recurring audit jobs on fixed intervals. It runs
// alongside the worker in the same process; the queue decouples the two so a
// slow job never delays the next tick.
type Periodic struct {
	client        *Client
	purgeInterval time.Duration
	sweepInterval time.Duration
	sweepWindow   time.Duration
	log           *logger.Logger
}

// NewPeriodic creates the periodic enqueuer. Non-positive intervals fall
// back to one day for the purge and the sweep window for the sweep.
func NewPeriodic(client *Client, purgeInterval, sweepWindow time.Duration, log *logger.Logger) *Periodic {
	if purgeInterval <= 0 {
		purgeInterval = 24 * time.Hour
	}
	if sweepWindow <= 0 {
		sweepWindow = time.Duration(DefaultSweepWindowMinutes) * time.Minute
	}
	return &Periodic{
		client:        client,
		purgeInterval: purgeInterval,
		sweepInterval: sweepWindow,
		sweepWindow:   sweepWindow,
		log:           log,
	}
}

// DefaultSweepWindowMinutes matches the detector's default lookback.
const DefaultSweepWindowMinutes = 5

// Run blocks until ctx is done, enqueuing a purge per purge interval and a
// sweep per sweep window.
func (p *Periodic) Run(ctx context.Context) {
	purgeTicker := time.NewTicker(p.purgeInterval)
	defer purgeTicker.Stop()
	sweepTicker := time.NewTicker(p.sweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-purgeTicker.C:
			if err := p.client.EnqueueRetentionPurge(ctx); err != nil {
				p.log.Error("failed to enqueue retention purge", "error", err)
			}
		case <-sweepTicker.C:
			windowMinutes := int(p.sweepWindow / time.Minute)
			if err := p.client.EnqueueSuspiciousSweep(ctx, windowMinutes); err != nil {
				p.log.Error("failed to enqueue suspicious sweep", "error", err)
			}
		}
	}
}
