package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// SessionReaper sweeps expired sessions on a fixed schedule.
type SessionReaper struct {
	store SessionStore
	cron  *cron.Cron
}

// NewSessionReaper creates a reaper over the given store.
func NewSessionReaper(store SessionStore) *SessionReaper {
	return &SessionReaper{
		store: store,
		cron:  cron.New(),
	}
}

// Start begins the minutely sweep.
func (r *SessionReaper) Start() error {
	if _, err := r.cron.AddFunc("@every 1m", r.sweep); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *SessionReaper) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// sweep deletes expired sessions.
func (r *SessionReaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := r.store.DeleteExpired(ctx); err != nil {
		fmt.Printf("Error sweeping expired sessions: %v\n", err)
	}
}
