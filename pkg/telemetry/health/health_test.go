package health

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{"default timeout", 0, DefaultCheckTimeout},
		{"negative timeout", -time.Second, DefaultCheckTimeout},
		{"custom timeout", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(tt.timeout)
			if checker.checkTimeout != tt.expectedTimeout {
				t.Errorf("expected timeout %v, got %v", tt.expectedTimeout, checker.checkTimeout)
			}
			if len(checker.Names()) != 0 {
				t.Errorf("expected no checks, got %v", checker.Names())
			}
		})
	}
}

func TestRegisterCheck_Replaces(t *testing.T) {
	checker := New(time.Second)
	checker.RegisterCheck("evidence", func(ctx context.Context) error { return errors.New("down") })
	checker.RegisterCheck("bundle", func(ctx context.Context) error { return nil })
	checker.RegisterCheck("evidence", func(ctx context.Context) error { return nil })

	if got := checker.Names(); !slices.Equal(got, []string{"bundle", "evidence"}) {
		t.Errorf("Names() = %v", got)
	}
	if status := checker.CheckReadiness(context.Background()); !status.Ready() {
		t.Errorf("expected ready after replacing the failing check, got %+v", status)
	}
}

func TestCheckLiveness(t *testing.T) {
	status := New(0).CheckLiveness()
	if status.Status != StatusOK || !status.Ready() {
		t.Errorf("liveness = %+v", status)
	}
	if status.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantStatus string
		unhealthy  []string
	}{
		{
			name:       "no checks",
			checks:     nil,
			wantStatus: StatusReady,
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"bundle":   func(ctx context.Context) error { return nil },
				"evidence": func(ctx context.Context) error { return nil },
			},
			wantStatus: StatusReady,
		},
		{
			name: "one unhealthy",
			checks: map[string]CheckFunc{
				"bundle":   func(ctx context.Context) error { return errors.New("no policy bundle loaded") },
				"evidence": func(ctx context.Context) error { return nil },
			},
			wantStatus: StatusNotReady,
			unhealthy:  []string{"bundle"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(time.Second)
			for name, check := range tt.checks {
				checker.RegisterCheck(name, check)
			}

			status := checker.CheckReadiness(context.Background())
			if status.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", status.Status, tt.wantStatus)
			}
			if len(status.Checks) != len(tt.checks) {
				t.Errorf("expected %d results, got %d", len(tt.checks), len(status.Checks))
			}
			for _, name := range tt.unhealthy {
				res := status.Checks[name]
				if res.Status != StatusUnhealthy || res.Message == "" {
					t.Errorf("check %s = %+v", name, res)
				}
			}
		})
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	checker := New(20 * time.Millisecond)
	checker.RegisterCheck("slow", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	start := time.Now()
	status := checker.CheckReadiness(context.Background())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("check was not bounded by the timeout: %v", elapsed)
	}
	if status.Ready() {
		t.Errorf("expected not ready, got %+v", status)
	}
	if status.Checks["slow"].Status != StatusUnhealthy {
		t.Errorf("slow check = %+v", status.Checks["slow"])
	}
}

func TestCheckReadiness_RunsConcurrently(t *testing.T) {
	checker := New(time.Second)
	var calls atomic.Int32
	for _, name := range []string{"a", "b", "c", "d"} {
		checker.RegisterCheck(name, func(ctx context.Context) error {
			calls.Add(1)
			time.Sleep(50 * time.Millisecond)
			return nil
		})
	}

	start := time.Now()
	status := checker.CheckReadiness(context.Background())
	if elapsed := time.Since(start); elapsed > 180*time.Millisecond {
		t.Errorf("checks ran sequentially: %v", elapsed)
	}
	if calls.Load() != 4 || !status.Ready() {
		t.Errorf("calls = %d, status = %+v", calls.Load(), status)
	}
}

func TestStatusJSON(t *testing.T) {
	status := Status{
		Status: StatusNotReady,
		Checks: map[string]CheckResult{
			"bundle": {Status: StatusUnhealthy, Message: "no policy bundle loaded", Duration: 0.2},
		},
		Timestamp: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(status)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"status":"not_ready","checks":{"bundle":{"status":"unhealthy","message":"no policy bundle loaded","duration_ms":0.2}},"timestamp":"2026-03-01T00:00:00Z"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s\nwant %s", data, want)
	}
}
