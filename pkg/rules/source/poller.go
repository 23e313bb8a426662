package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Poller runs Sync on a cron schedule and reloads when the upstream changed.
type Poller struct {
	schedule cron.Schedule
	spec     string
	syncer   Syncer
	reload   func(context.Context) error
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewPoller creates a poller. spec is a standard cron expression or a
// descriptor such as "@every 1m".
func NewPoller(spec string, syncer Syncer, reload func(context.Context) error, logger *slog.Logger) (*Poller, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid poll schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		schedule: schedule,
		spec:     spec,
		syncer:   syncer,
		reload:   reload,
		logger:   logger.With("component", "rules.poller", "source", syncer.Name()),
	}, nil
}

// Start schedules polling. Polls run with ctx.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller already running")
	}

	p.cron = cron.New()
	p.cron.Schedule(p.schedule, cron.FuncJob(func() {
		if _, err := p.Poll(ctx); err != nil {
			p.logger.Error("poll failed", "error", err)
		}
	}))
	p.cron.Start()
	p.running = true

	p.logger.Info("bundle polling started",
		"schedule", p.spec,
		"next_run", p.schedule.Next(time.Now()))
	return nil
}

// Poll syncs once and reloads if the upstream changed. It reports whether a
// reload happened.
func (p *Poller) Poll(ctx context.Context) (bool, error) {
	changed, err := p.syncer.Sync(ctx)
	if err != nil {
		return false, fmt.Errorf("sync failed: %w", err)
	}
	if !changed {
		p.logger.Debug("no upstream changes")
		return false, nil
	}
	if err := p.reload(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Stop stops scheduling and waits for a running poll to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	<-p.cron.Stop().Done()
	p.running = false
	p.logger.Info("bundle polling stopped")
}

// IsRunning reports whether polling is scheduled.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// NextRun returns the next scheduled poll, or the zero time when stopped.
func (p *Poller) NextRun() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return time.Time{}
	}
	entries := p.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
