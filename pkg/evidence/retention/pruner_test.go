package retention

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/permitgate/pkg/config"
	"mercator-hq/permitgate/pkg/evidence"
	"mercator-hq/permitgate/pkg/evidence/storage"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func seeded(t *testing.T, ages ...time.Duration) *storage.MemoryStorage {
	t.Helper()
	s := storage.NewMemoryStorage()
	for i, age := range ages {
		err := s.Store(context.Background(), &evidence.Record{
			ID:               string(rune('a' + i)),
			Timestamp:        now.Add(-age),
			Category:         "escort",
			Fact:             json.RawMessage(`{}`),
			MatchedPolicyIDs: []string{},
			Outcome:          evidence.OutcomeNoMatch,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func remaining(t *testing.T, s evidence.Storage) []string {
	t.Helper()
	records, err := s.Query(context.Background(), &evidence.Query{SortOrder: "asc"})
	if err != nil {
		t.Fatal(err)
	}
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func newTestPruner(s evidence.Storage, cfg *Config) *Pruner {
	p := NewPruner(s, cfg, nil)
	p.now = func() time.Time { return now }
	return p
}

const day = 24 * time.Hour

func TestPrune(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantDeleted int64
		wantLeft    string
	}{
		// records a..e are 100, 50, 10, 2 and 1 days old
		{"age only", Config{RetentionDays: 30}, 2, "cde"},
		{"count only", Config{MaxRecords: 2}, 3, "de"},
		{"age then count", Config{RetentionDays: 30, MaxRecords: 1}, 4, "e"},
		{"count within limit", Config{MaxRecords: 10}, 0, "abcde"},
		{"disabled", Config{RetentionDays: -1}, 0, "abcde"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seeded(t, 100*day, 50*day, 10*day, 2*day, day)
			cfg := tt.cfg
			deleted, err := newTestPruner(s, &cfg).Prune(context.Background())
			if err != nil {
				t.Fatalf("Prune() error = %v", err)
			}
			if deleted != tt.wantDeleted {
				t.Errorf("deleted = %d, want %d", deleted, tt.wantDeleted)
			}
			var left string
			for _, id := range remaining(t, s) {
				left += id
			}
			if left != tt.wantLeft {
				t.Errorf("remaining = %q, want %q", left, tt.wantLeft)
			}
		})
	}
}

func TestPrune_Archive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	s := seeded(t, 100*day, 50*day, day)

	deleted, err := newTestPruner(s, &Config{RetentionDays: 30, ArchivePath: dir}).Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d", deleted)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "evidence-age-*.json"))
	if len(matches) != 1 {
		t.Fatalf("archive files = %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	var archived []evidence.Record
	if err := json.Unmarshal(data, &archived); err != nil {
		t.Fatalf("archive is not a JSON array: %v", err)
	}
	if len(archived) != 2 || archived[0].ID != "a" || archived[1].ID != "b" {
		t.Errorf("archived = %+v", archived)
	}
}

type failingStorage struct {
	evidence.Storage
}

func (failingStorage) Delete(context.Context, *evidence.Query) (int64, error) {
	return 0, errors.New("disk full")
}

func TestPrune_Error(t *testing.T) {
	s := failingStorage{seeded(t, 100*day)}
	_, err := newTestPruner(s, &Config{RetentionDays: 30}).Prune(context.Background())

	var rerr *evidence.RetentionError
	if !errors.As(err, &rerr) {
		t.Fatalf("error = %v, want *RetentionError", err)
	}
	if rerr.Days != 30 {
		t.Errorf("retention days = %d", rerr.Days)
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.RetentionConfig{Days: 7, Schedule: "@daily", MaxRecords: 9, ArchivePath: "/tmp/a"})
	if cfg.RetentionDays != 7 || cfg.PruneSchedule != "@daily" || cfg.MaxRecords != 9 || cfg.ArchivePath != "/tmp/a" {
		t.Errorf("ConfigFrom() = %+v", cfg)
	}
}

func TestScheduler(t *testing.T) {
	s := storage.NewMemoryStorage()

	idle := NewPruner(s, &Config{PruneSchedule: ""}, nil)
	if err := idle.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if idle.scheduler.IsRunning() || idle.NextPruning() != nil {
		t.Error("scheduler without a schedule should stay idle")
	}

	bad := NewPruner(s, &Config{RetentionDays: 1, PruneSchedule: "whenever"}, nil)
	if err := bad.Start(context.Background()); err == nil {
		t.Error("invalid schedule should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPruner(s, &Config{RetentionDays: 1, PruneSchedule: "0 3 * * *"}, nil)
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	next := p.NextPruning()
	if next == nil || next.Hour() != 3 {
		t.Errorf("NextPruning() = %v", next)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	p.Stop()
	if p.scheduler.IsRunning() {
		t.Error("scheduler still running after Stop")
	}
}
