package buffer

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// Flusher periodically flushes every dirty frame in a Manager to disk
// on a cron schedule, the way internal/storage/scheduler.go runs SQL
// jobs on a cron schedule in the teacher repo — here repurposed from
// job execution to buffer-pool checkpointing.
type Flusher struct {
	pool *Manager
	cron *cron.Cron

	mu      sync.Mutex
	entryID cron.EntryID
	running bool
}

// NewFlusher creates a Flusher for pool. Call Start with a standard
// five-field cron spec (e.g. "*/5 * * * *") to begin the schedule.
func NewFlusher(pool *Manager) *Flusher {
	return &Flusher{
		pool: pool,
		cron: cron.New(),
	}
}

// Start schedules periodic flushes according to spec and begins
// running them in the background. Returns an error if spec is invalid.
func (fl *Flusher) Start(spec string) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.running {
		return fmt.Errorf("buffer: flusher already running")
	}
	id, err := fl.cron.AddFunc(spec, fl.tick)
	if err != nil {
		return fmt.Errorf("buffer: invalid flush schedule %q: %w", spec, err)
	}
	fl.entryID = id
	fl.cron.Start()
	fl.running = true
	return nil
}

// Stop halts the background schedule and waits for any in-flight flush
// to finish.
func (fl *Flusher) Stop() {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if !fl.running {
		return
	}
	fl.cron.Remove(fl.entryID)
	ctx := fl.cron.Stop()
	<-ctx.Done()
	fl.running = false
}

func (fl *Flusher) tick() {
	if err := fl.pool.FlushAllPages(); err != nil {
		fl.pool.logf("scheduled flush failed: %v", err)
		return
	}
	fl.pool.logf("scheduled flush completed")
}
