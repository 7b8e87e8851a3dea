package gameserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/derby/internal/storage"
)

// Job is one unit of periodic store maintenance.
type Job func(ctx context.Context) error

// Housekeeper runs named jobs once at start and then every interval.
//
// Invariant: jobs never overlap; each tick runs the registered jobs
// sequentially in one goroutine.
type Housekeeper struct {
	interval time.Duration
	logger   *zap.Logger
	mu       sync.Mutex
	jobs     map[string]Job
}

// NewHousekeeper returns a Housekeeper that fires every interval.
//
// Precondition: interval must be > 0.
func NewHousekeeper(interval time.Duration, logger *zap.Logger) *Housekeeper {
	if interval <= 0 {
		panic("gameserver.NewHousekeeper: interval must be > 0")
	}
	return &Housekeeper{
		interval: interval,
		logger:   logger,
		jobs:     make(map[string]Job),
	}
}

// Register adds job under name, replacing any previous job of that name.
func (h *Housekeeper) Register(name string, job Job) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs[name] = job
}

// Unregister removes the job registered under name.
func (h *Housekeeper) Unregister(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.jobs, name)
}

// Len returns the number of registered jobs.
func (h *Housekeeper) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.jobs)
}

// Run executes every job immediately and then once per interval until ctx
// ends. Job failures are logged and do not stop the loop.
func (h *Housekeeper) Run(ctx context.Context) {
	h.tick(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Housekeeper) tick(ctx context.Context) {
	h.mu.Lock()
	jobs := make(map[string]Job, len(h.jobs))
	for k, v := range h.jobs {
		jobs[k] = v
	}
	h.mu.Unlock()

	for name, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		if err := job(ctx); err != nil && ctx.Err() == nil {
			h.logger.Warn("housekeeping job failed", zap.String("job", name), zap.Error(err))
		}
	}
}

// PurgeExpiredJob deletes race rows past their retention.
func PurgeExpiredJob(p storage.Purger, logger *zap.Logger) Job {
	return func(ctx context.Context) error {
		n, err := p.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("purged expired races", zap.Int64("rows", n))
		}
		return nil
	}
}
