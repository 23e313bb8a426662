package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"mercator-hq/permitgate/pkg/rules/parser"
)

// bundleYAML returns a small valid bundle whose single policy requires
// widths above minWidth.
func bundleYAML(version string, minWidth int) string {
	return fmt.Sprintf(`
version: %q
attributes:
  - name: width_ft
    kind: number
policies:
  - id: wide-load
    category: escort
    when:
      - {attr: width_ft, op: gt, value: %d}
    output:
      front_escorts: 1
`, version, minWidth)
}

const policyOnlyYAML = `
policies:
  - id: very-wide
    category: escort
    when:
      - {attr: width_ft, op: gt, value: 16}
    output:
      front_escorts: 2
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFileSource_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeFile(t, path, bundleYAML("v1", 12))

	src := NewFileSource(path, nil)
	if src.Name() != "file:"+path {
		t.Errorf("Name() = %q", src.Name())
	}

	b, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if b.Version != "v1" || len(b.Policies) != 1 {
		t.Errorf("bundle = version %q, %d policies", b.Version, len(b.Policies))
	}
}

func TestFileSource_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a_attrs.yaml"), bundleYAML("v2", 12))
	writeFile(t, filepath.Join(dir, "nested", "b_more.yml"), policyOnlyYAML)
	writeFile(t, filepath.Join(dir, ".hidden.yaml"), "not: [valid")
	writeFile(t, filepath.Join(dir, ".git", "config.yaml"), "not: [valid")
	writeFile(t, filepath.Join(dir, "README.md"), "# rules")

	b, err := NewFileSource(dir, nil).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(b.Policies) != 2 {
		t.Fatalf("len(Policies) = %d, want 2", len(b.Policies))
	}
	if len(b.Sources) != 2 {
		t.Errorf("Sources = %v, want two documents", b.Sources)
	}
	if b.Policies[0].ID != "wide-load" || b.Policies[1].ID != "very-wide" {
		t.Errorf("policies out of lexical file order: %s, %s", b.Policies[0].ID, b.Policies[1].ID)
	}
}

func TestReadDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.yaml"), policyOnlyYAML)
	writeFile(t, filepath.Join(dir, "a.yml"), bundleYAML("v1", 12))
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	docs, err := ReadDocuments(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("ReadDocuments() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2", len(docs))
	}
	if filepath.Base(docs[0].Name) != "a.yml" || filepath.Base(docs[1].Name) != "b.yaml" {
		t.Errorf("docs = %s, %s; want lexical order", docs[0].Name, docs[1].Name)
	}

	if _, err := ReadDocuments(context.Background(), t.TempDir(), nil); !errors.Is(err, ErrNoBundle) {
		t.Errorf("empty directory error = %v, want ErrNoBundle", err)
	}
}

func TestFileSource_Errors(t *testing.T) {
	empty := t.TempDir()
	if _, err := NewFileSource(empty, nil).Load(context.Background()); !errors.Is(err, ErrNoBundle) {
		t.Errorf("empty dir error = %v, want ErrNoBundle", err)
	}

	if _, err := NewFileSource(filepath.Join(empty, "missing"), nil).Load(context.Background()); err == nil {
		t.Error("expected error for missing path")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, bad, "policies:\n  - id: x\n    category: nowhere\n")
	_, err := NewFileSource(bad, nil).Load(context.Background())
	var list *parser.ErrorList
	if !errors.As(err, &list) {
		t.Errorf("invalid bundle error = %T %v, want parser.ErrorList", err, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := filepath.Join(t.TempDir(), "ok.yaml")
	writeFile(t, ok, bundleYAML("v1", 1))
	if _, err := NewFileSource(ok, nil).Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled load error = %v", err)
	}
}

func TestMemorySource(t *testing.T) {
	ctx := context.Background()
	src := NewMemorySource("test")

	if _, err := src.Load(ctx); !errors.Is(err, ErrNoBundle) {
		t.Errorf("empty memory source error = %v", err)
	}

	src.Set(parser.Document{Name: "a.yaml", Data: []byte(bundleYAML("m1", 12))})
	changed, _ := src.Sync(ctx)
	if !changed {
		t.Error("Sync() should report the Set")
	}

	b, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if b.Version != "m1" {
		t.Errorf("Version = %q", b.Version)
	}
	if changed, _ := src.Sync(ctx); changed {
		t.Error("Sync() after Load should report no change")
	}
}
