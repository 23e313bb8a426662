package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"mercator-hq/permitgate/pkg/rules/source"
)

func TestBundleImportListShow(t *testing.T) {
	dir := useConfig(t, quietLogs)
	bundleFlags.db = filepath.Join(dir, "bundles.db")
	bundleFlags.name = "texas"
	bundleFlags.format = "text"
	t.Cleanup(func() {
		bundleFlags.db, bundleFlags.name, bundleFlags.version = "", "", ""
	})

	bundleFlags.version = ""
	if err := importBundle(nil, []string{"testdata/valid-bundle.yaml"}); err != nil {
		t.Fatalf("importBundle() error = %v", err)
	}

	bundleFlags.version = "2026-03-hotfix"
	if err := importBundle(nil, []string{"testdata/valid-bundle.yaml"}); err != nil {
		t.Fatalf("importBundle(explicit version) error = %v", err)
	}

	bundleFlags.version = ""
	err := importBundle(nil, []string{"testdata/valid-bundle.yaml"})
	if !errors.Is(err, source.ErrVersionExists) {
		t.Errorf("re-import error = %v, want ErrVersionExists", err)
	}

	if err := importBundle(nil, []string{"testdata/invalid-bundle.yaml"}); err == nil {
		t.Error("importing an invalid bundle should fail")
	}

	for _, format := range []string{"text", "json", "csv"} {
		bundleFlags.format = format
		if err := listBundles(nil, nil); err != nil {
			t.Errorf("listBundles(%s) error = %v", format, err)
		}
	}
	bundleFlags.format = "text"

	if err := showBundle(nil, []string{"2026-03"}); err != nil {
		t.Errorf("showBundle() error = %v", err)
	}
	if err := showBundle(nil, []string{"1999-01"}); err == nil {
		t.Error("showBundle() of a missing version should fail")
	}

	src, err := source.NewSQLiteSource(source.SQLiteConfig{Path: bundleFlags.db, Name: "texas"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	revs, err := src.Versions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 2 || revs[0].Version != "2026-03-hotfix" || revs[1].Version != "2026-03" {
		t.Errorf("versions = %+v, want hotfix then 2026-03", revs)
	}
}

func TestRevisionListTabular(t *testing.T) {
	list := revisionList{{ID: 3, Name: "texas", Version: "v3", Documents: 2}}

	if got := len(list.Header()); got != 5 {
		t.Errorf("len(Header()) = %d, want 5", got)
	}
	rows := list.Rows()
	if len(rows) != 1 || rows[0][0] != "3" || rows[0][2] != "v3" || rows[0][4] != "2" {
		t.Errorf("Rows() = %v", rows)
	}
}
