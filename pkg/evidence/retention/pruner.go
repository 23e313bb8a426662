package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/permitgate/pkg/config"
	"mercator-hq/permitgate/pkg/evidence"
	"mercator-hq/permitgate/pkg/evidence/export"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is how long records are kept. Zero or negative keeps
	// records forever.
	RetentionDays int

	// PruneSchedule is a cron expression; empty disables the scheduler.
	PruneSchedule string

	// MaxRecords caps the number of stored records. 0 means unlimited.
	MaxRecords int64

	// ArchivePath, when set, is the directory that receives a JSON export
	// of every batch of records before it is deleted.
	ArchivePath string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: config.DefaultEvidenceRetentionDays,
		PruneSchedule: config.DefaultEvidenceRetentionCron,
	}
}

// ConfigFrom maps the evidence retention settings onto a pruner config.
func ConfigFrom(cfg config.RetentionConfig) *Config {
	return &Config{
		RetentionDays: cfg.Days,
		PruneSchedule: cfg.Schedule,
		MaxRecords:    cfg.MaxRecords,
		ArchivePath:   cfg.ArchivePath,
	}
}

// Pruner enforces retention on evidence records.
type Pruner struct {
	storage   evidence.Storage
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
	now       func() time.Time
}

// NewPruner creates a new retention pruner.
func NewPruner(storage evidence.Storage, cfg *Config, logger *slog.Logger) *Pruner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pruner{
		storage: storage,
		config:  cfg,
		logger:  logger.With("component", "evidence.retention"),
		now:     time.Now,
	}
	p.scheduler = NewScheduler(p, logger)
	return p
}

// Prune deletes records older than the retention period, then the oldest
// records beyond MaxRecords. It returns the total deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.RetentionDays > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return total, evidence.NewRetentionError(p.config.RetentionDays, fmt.Errorf("prune by age: %w", err))
		}
		total += deleted
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return total, evidence.NewRetentionError(p.config.RetentionDays, fmt.Errorf("prune by count: %w", err))
		}
		total += deleted
	}

	if total == 0 {
		p.logger.Debug("no records pruned",
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	} else {
		p.logger.Info("evidence pruning completed",
			"total_deleted", total,
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	}
	return total, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
	q := &evidence.Query{EndTime: &cutoff, SortOrder: "asc"}

	if p.config.ArchivePath != "" {
		records, err := p.storage.Query(ctx, q)
		if err != nil {
			return 0, fmt.Errorf("failed to query records for archiving: %w", err)
		}
		if err := p.archive(ctx, "age", records); err != nil {
			return 0, err
		}
	}

	deleted, err := p.storage.Delete(ctx, q)
	if err != nil {
		return 0, err
	}
	p.logger.Info("pruned records by age",
		"deleted_count", deleted,
		"cutoff", cutoff,
	)
	return deleted, nil
}

// pruneByCount deletes everything at or before the timestamp of the newest
// excess record. Records sharing that exact timestamp go with it.
func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &evidence.Query{})
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if count <= p.config.MaxRecords {
		p.logger.Debug("record count within limit",
			"current", count,
			"max", p.config.MaxRecords,
		)
		return 0, nil
	}

	excess := int(count - p.config.MaxRecords)
	oldest, err := p.storage.Query(ctx, &evidence.Query{SortOrder: "asc", Limit: excess})
	if err != nil {
		return 0, fmt.Errorf("failed to query oldest records: %w", err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	if err := p.archive(ctx, "count", oldest); err != nil {
		return 0, err
	}

	cutoff := oldest[len(oldest)-1].Timestamp
	deleted, err := p.storage.Delete(ctx, &evidence.Query{EndTime: &cutoff})
	if err != nil {
		return 0, err
	}
	p.logger.Info("pruned records by count",
		"deleted_count", deleted,
		"previous_count", count,
		"max_records", p.config.MaxRecords,
	)
	return deleted, nil
}

// archive writes records to a timestamped JSON file under ArchivePath. It
// is a no-op without an archive path or records.
func (p *Pruner) archive(ctx context.Context, reason string, records []*evidence.Record) error {
	if p.config.ArchivePath == "" || len(records) == 0 {
		return nil
	}

	if err := os.MkdirAll(p.config.ArchivePath, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := fmt.Sprintf("evidence-%s-%s.json", reason, p.now().UTC().Format("20060102T150405.000000000"))
	path := filepath.Join(p.config.ArchivePath, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	if err := export.NewJSONExporter(true).Export(ctx, records, f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close archive file: %w", err)
	}

	p.logger.Info("evidence archived",
		"archive_file", path,
		"record_count", len(records),
	)
	return nil
}

// Start starts scheduled pruning.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops scheduled pruning and waits for a running prune.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the next scheduled prune, or nil when not scheduled.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
