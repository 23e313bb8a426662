package source

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"mercator-hq/permitgate/pkg/rules/parser"
)

func newTestSQLiteSource(t *testing.T, name string) *SQLiteSource {
	t.Helper()
	src, err := NewSQLiteSource(SQLiteConfig{Path: filepath.Join(t.TempDir(), "bundles.db"), Name: name}, nil)
	if err != nil {
		t.Fatalf("NewSQLiteSource() error = %v", err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

func docs(content string) []parser.Document {
	return []parser.Document{{Name: "rules.yaml", Data: []byte(content)}}
}

func TestSQLiteSource_PutAndLoad(t *testing.T) {
	ctx := context.Background()
	src := newTestSQLiteSource(t, "texas")

	if src.Name() != "sqlite:texas" {
		t.Errorf("Name() = %q", src.Name())
	}
	if _, err := src.Load(ctx); !errors.Is(err, ErrNoBundle) {
		t.Fatalf("Load() on empty store error = %v, want ErrNoBundle", err)
	}

	rev, err := src.Put(ctx, "", docs(bundleYAML("2025.01", 12)))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if rev.Version != "2025.01" || rev.Documents != 1 {
		t.Errorf("revision = %+v", rev)
	}

	if _, err := src.Put(ctx, "2025.02", docs(bundleYAML("ignored", 14))); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	b, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if b.Version != "2025.02" {
		t.Errorf("Load() version = %q, want the explicit 2025.02", b.Version)
	}

	old, err := src.LoadVersion(ctx, "2025.01")
	if err != nil {
		t.Fatalf("LoadVersion() error = %v", err)
	}
	if old.Policies[0].Condition.String() != "all(width_ft gt 12)" {
		t.Errorf("old condition = %s", old.Policies[0].Condition)
	}
	if _, err := src.LoadVersion(ctx, "nope"); !errors.Is(err, ErrNoBundle) {
		t.Errorf("LoadVersion(nope) error = %v", err)
	}

	revs, err := src.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(revs) != 2 || revs[0].Version != "2025.02" || revs[1].Version != "2025.01" {
		t.Errorf("Versions() = %+v, want newest first", revs)
	}
}

func TestSQLiteSource_PutRejects(t *testing.T) {
	ctx := context.Background()
	src := newTestSQLiteSource(t, "")

	if _, err := src.Put(ctx, "v1", nil); !errors.Is(err, ErrNoBundle) {
		t.Errorf("Put(nil) error = %v", err)
	}
	if _, err := src.Put(ctx, "v1", docs("policies: [")); err == nil {
		t.Error("Put() should reject an unparsable bundle")
	}
	if _, err := src.Put(ctx, "v1", docs(bundleYAML("v1", 1))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := src.Put(ctx, "v1", docs(bundleYAML("v1", 2))); !errors.Is(err, ErrVersionExists) {
		t.Errorf("duplicate Put() error = %v, want ErrVersionExists", err)
	}

	revs, _ := src.Versions(ctx)
	if len(revs) != 1 {
		t.Errorf("rejected puts must not be stored, have %d revisions", len(revs))
	}
}

func TestSQLiteSource_Sync(t *testing.T) {
	ctx := context.Background()
	src := newTestSQLiteSource(t, "sync")

	if changed, err := src.Sync(ctx); err != nil || changed {
		t.Errorf("Sync() on empty store = %v, %v", changed, err)
	}

	src.Put(ctx, "v1", docs(bundleYAML("v1", 1)))
	if changed, _ := src.Sync(ctx); !changed {
		t.Error("Sync() should see the new revision")
	}
	src.Load(ctx)
	if changed, _ := src.Sync(ctx); changed {
		t.Error("Sync() after Load should see no change")
	}
}

func TestSQLiteSource_NamesAreIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	a, err := NewSQLiteSource(SQLiteConfig{Path: path, Name: "a"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if _, err := a.Put(ctx, "v1", docs(bundleYAML("v1", 1))); err != nil {
		t.Fatal(err)
	}
	a.Close()

	b, err := NewSQLiteSource(SQLiteConfig{Path: path, Name: "b"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, err := b.Load(ctx); !errors.Is(err, ErrNoBundle) {
		t.Errorf("bundle b should be empty, got %v", err)
	}
}
