package hub

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSweepInterval = 30 * time.Minute
	DefaultIdleThreshold = 2 * time.Hour
)

// Reaper periodically removes rooms with no join or mutation for longer
// than IdleThreshold.
type Reaper struct {
	hub           *Hub
	interval      time.Duration
	idleThreshold time.Duration
	log           *zap.Logger
}

func NewReaper(h *Hub, interval, idleThreshold time.Duration) *Reaper {
	return &Reaper{
		hub:           h,
		interval:      interval,
		idleThreshold: idleThreshold,
		log:           h.log.Named("reaper"),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reaper started",
		zap.Duration("interval", r.interval),
		zap.Duration("idle_threshold", r.idleThreshold))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep removes every idle room and returns how many were removed. Each
// room decides on its own goroutine, so a mutation in flight always
// finishes before the room can expire.
func (r *Reaper) Sweep(ctx context.Context) int {
	now := r.hub.now()
	removed := 0

	for key, rm := range r.hub.list() {
		expired, err := rm.ExpireIfIdle(ctx, now, r.idleThreshold)
		if err != nil {
			r.log.Warn("sweep interrupted", zap.String("room", key), zap.Error(err))
			return removed
		}
		if expired && r.hub.remove(key, rm) {
			removed++
		}
	}

	if removed > 0 {
		r.log.Info("idle rooms removed", zap.Int("removed", removed), zap.Int("remaining", r.hub.Len()))
	}
	return removed
}
