package source

import (
	"context"
	"errors"
	"testing"

	"mercator-hq/permitgate/pkg/rules/parser"
)

type failingSyncer struct{ *MemorySource }

func (failingSyncer) Sync(context.Context) (bool, error) {
	return false, errors.New("remote unreachable")
}

func TestNewPoller_InvalidSchedule(t *testing.T) {
	if _, err := NewPoller("every tuesday", NewMemorySource("p"), nil, nil); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestPoller_Poll(t *testing.T) {
	ctx := context.Background()
	src := NewMemorySource("p", parser.Document{Name: "a.yaml", Data: []byte(bundleYAML("p1", 12))})
	store := NewStore(src)

	p, err := NewPoller("@every 1h", src, store.Reload, nil)
	if err != nil {
		t.Fatalf("NewPoller() error = %v", err)
	}

	reloaded, err := p.Poll(ctx)
	if err != nil || !reloaded {
		t.Fatalf("first Poll() = %v, %v; want a reload", reloaded, err)
	}
	if reloaded, _ := p.Poll(ctx); reloaded {
		t.Error("Poll() without changes should not reload")
	}

	src.Set(parser.Document{Name: "a.yaml", Data: []byte(bundleYAML("p2", 12))})
	if reloaded, _ := p.Poll(ctx); !reloaded {
		t.Error("Poll() after Set should reload")
	}
	if store.Snapshot().Version != "p2" {
		t.Errorf("version = %q, want p2", store.Snapshot().Version)
	}
}

func TestPoller_SyncError(t *testing.T) {
	p, err := NewPoller("@every 1h", failingSyncer{NewMemorySource("f")}, func(context.Context) error {
		t.Error("reload must not run when sync fails")
		return nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Poll(context.Background()); err == nil {
		t.Error("expected sync error")
	}
}

func TestPoller_StartStop(t *testing.T) {
	src := NewMemorySource("p")
	p, err := NewPoller("@every 1h", src, func(context.Context) error { return nil }, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !p.NextRun().IsZero() {
		t.Error("NextRun() should be zero before Start")
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if !p.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if p.NextRun().IsZero() {
		t.Error("NextRun() should be set while running")
	}

	p.Stop()
	if p.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	p.Stop()
}
