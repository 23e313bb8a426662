package recorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/permitgate/pkg/evidence"
	"mercator-hq/permitgate/pkg/rules/condition"
	"mercator-hq/permitgate/pkg/rules/engine"
	"mercator-hq/permitgate/pkg/rules/policy"
)

// Config contains configuration for the evidence recorder.
type Config struct {
	// Enabled enables evidence recording.
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds a single storage write and how long Record waits
	// for buffer space.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Evaluation is one evaluation outcome to record. Exactly one of Result
// and Err is expected to be set.
type Evaluation struct {
	RequestID     string
	Category      policy.Category
	BundleVersion string
	Fact          condition.Fact
	Result        *engine.EvaluationResult
	Err           error
	Duration      time.Duration
}

// Recorder writes evidence records asynchronously so evaluations never
// wait on storage.
type Recorder struct {
	storage    evidence.Storage
	config     *Config
	recordChan chan *evidence.Record
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
}

// NewRecorder creates a recorder and starts its background writer.
func NewRecorder(storage evidence.Storage, config *Config, logger *slog.Logger) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		storage:    storage,
		config:     config,
		recordChan: make(chan *evidence.Record, config.AsyncBuffer),
		done:       make(chan struct{}),
		logger:     logger.With("component", "evidence.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("evidence recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)
	return r
}

// Record builds a record from ev and enqueues it. It returns once the
// record is queued, not written.
func (r *Recorder) Record(ctx context.Context, ev Evaluation) error {
	if !r.config.Enabled {
		return nil
	}

	record := NewRecord(ev)

	select {
	case r.recordChan <- record:
		return nil
	case <-ctx.Done():
		return evidence.NewRecorderError(record.ID, ctx.Err())
	case <-time.After(r.config.WriteTimeout):
		r.logger.Error("evidence record channel full, dropping record",
			"record_id", record.ID,
			"request_id", record.RequestID,
			"channel_capacity", r.config.AsyncBuffer,
		)
		return evidence.NewRecorderError(record.ID, context.DeadlineExceeded)
	case <-r.done:
		return evidence.NewRecorderError(record.ID, context.Canceled)
	}
}

// Close stops accepting records, drains the queue and waits for pending
// writes.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down evidence recorder")
		close(r.done)
		r.wg.Wait()
		r.logger.Info("evidence recorder shut down complete")
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeRecord(record *evidence.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, record); err != nil {
		r.logger.Error("failed to store evidence record",
			"record_id", record.ID,
			"request_id", record.RequestID,
			"error", err,
		)
		return
	}

	duration := time.Since(start)
	r.logger.Debug("evidence recorded",
		"record_id", record.ID,
		"request_id", record.RequestID,
		"outcome", record.Outcome,
		"duration_ms", duration.Milliseconds(),
	)
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow evidence write",
			"record_id", record.ID,
			"duration_ms", duration.Milliseconds(),
		)
	}
}

// NewRecord builds the evidence record for ev. The record gets a fresh
// UUID and the current time.
func NewRecord(ev Evaluation) *evidence.Record {
	fact, err := json.Marshal(ev.Fact)
	if err != nil {
		fact = []byte("{}")
	}

	record := &evidence.Record{
		ID:               uuid.New().String(),
		RequestID:        ev.RequestID,
		Timestamp:        time.Now().UTC(),
		Category:         string(ev.Category),
		BundleVersion:    ev.BundleVersion,
		Fact:             fact,
		FactHash:         HashContent(fact),
		MatchedPolicyIDs: []string{},
		DurationMs:       float64(ev.Duration) / float64(time.Millisecond),
	}

	switch {
	case ev.Err != nil:
		record.Outcome = evidence.OutcomeError
		record.Error = ev.Err.Error()
	case ev.Result != nil:
		record.Outcome = string(ev.Result.Outcome())
		record.MatchedPolicyIDs = append(record.MatchedPolicyIDs, ev.Result.MatchedPolicyIDs...)
		if ev.Result.BundleVersion != "" {
			record.BundleVersion = ev.Result.BundleVersion
		}
		if out, err := json.Marshal(ev.Result.Output); err == nil {
			record.Output = out
		}
	default:
		// nothing to record but the attempt itself
		record.Outcome = evidence.OutcomeError
		record.Error = "evaluation produced no result"
	}
	return record
}
