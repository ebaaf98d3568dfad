// Package cleanup prunes old session transcripts on a cron schedule.
package cleanup

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"prettycode/internal/storage"
	"prettycode/pkg/logger"
)

// Config controls the retention job.
type Config struct {
	// Schedule is a standard five-field cron expression.
	Schedule string
	// RetentionDays is how long an idle session is kept.
	RetentionDays int
}

// Pruner periodically deletes sessions that have been idle past the
// retention window.
type Pruner struct {
	db  *storage.DB
	cfg Config

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewPruner creates a pruner. It does nothing until Start is called.
func NewPruner(db *storage.DB, cfg Config) *Pruner {
	return &Pruner{db: db, cfg: cfg}
}

// Start registers the schedule and begins running.
func (p *Pruner) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.New("pruner already running")
	}
	if p.cfg.RetentionDays <= 0 {
		return fmt.Errorf("invalid retention days: %d", p.cfg.RetentionDays)
	}

	c := cron.New()
	if _, err := c.AddFunc(p.cfg.Schedule, func() {
		if _, err := p.RunOnce(); err != nil {
			logger.Error().Err(err).Msg("Transcript pruning failed")
		}
	}); err != nil {
		return fmt.Errorf("register cleanup schedule: %w", err)
	}

	c.Start()
	p.cron = c
	p.running = true

	logger.Info().
		Str("schedule", p.cfg.Schedule).
		Int("retention_days", p.cfg.RetentionDays).
		Msg("Transcript pruner started")
	return nil
}

// RunOnce prunes immediately and returns how many sessions were removed.
// Expired KV entries are swept in the same pass.
func (p *Pruner) RunOnce() (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -p.cfg.RetentionDays)

	pruned, err := p.db.PruneSessionsBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}

	if cleaned, err := p.db.KVCleanExpired(); err != nil {
		logger.Warn().Err(err).Msg("KV expiry sweep failed")
	} else if cleaned > 0 {
		logger.Debug().Int64("cleaned", cleaned).Msg("Expired KV entries removed")
	}

	if pruned > 0 {
		logger.Info().
			Int64("pruned", pruned).
			Time("cutoff", cutoff).
			Msg("Old sessions pruned")
	}
	return pruned, nil
}

// Stop halts scheduling and waits for a running job to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	ctx := p.cron.Stop()
	<-ctx.Done()
	p.running = false

	logger.Info().Msg("Transcript pruner stopped")
}
