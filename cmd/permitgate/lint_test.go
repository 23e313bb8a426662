package main

import (
	"context"
	"strings"
	"testing"

	"mercator-hq/permitgate/pkg/rules/parser"
)

func TestLintBundlesValidFile(t *testing.T) {
	lintFlags.strict = false
	lintFlags.format = "text"

	if err := lintBundles(nil, []string{"testdata/valid-bundle.yaml"}); err != nil {
		t.Errorf("lintBundles() with valid bundle returned error: %v", err)
	}
}

func TestLintBundlesInvalidFile(t *testing.T) {
	lintFlags.strict = false
	lintFlags.format = "text"

	if err := lintBundles(nil, []string{"testdata/invalid-bundle.yaml"}); err == nil {
		t.Error("lintBundles() with invalid bundle should return error")
	}
}

func TestLintBundlesNonexistentFile(t *testing.T) {
	lintFlags.strict = false
	lintFlags.format = "text"

	if err := lintBundles(nil, []string{"testdata/nonexistent.yaml"}); err == nil {
		t.Error("lintBundles() with nonexistent file should return error")
	}
}

func TestLintBundlesStrict(t *testing.T) {
	lintFlags.format = "text"

	lintFlags.strict = false
	if err := lintBundles(nil, []string{"testdata/draft-only.yaml"}); err != nil {
		t.Errorf("warnings should not fail without --strict: %v", err)
	}

	lintFlags.strict = true
	t.Cleanup(func() { lintFlags.strict = false })
	if err := lintBundles(nil, []string{"testdata/draft-only.yaml"}); err == nil {
		t.Error("warnings should fail with --strict")
	}
}

func TestLintBundlesJSONFormat(t *testing.T) {
	lintFlags.strict = false
	lintFlags.format = "json"
	t.Cleanup(func() { lintFlags.format = "text" })

	if err := lintBundles(nil, []string{"testdata/valid-bundle.yaml", "testdata"}); err == nil {
		// The testdata directory merges every bundle file, including the
		// invalid one.
		t.Error("lintBundles() over testdata/ should report the invalid bundle")
	}
}

func TestLintBundlesBadFormat(t *testing.T) {
	lintFlags.format = "xml"
	t.Cleanup(func() { lintFlags.format = "text" })

	if err := lintBundles(nil, []string{"testdata/valid-bundle.yaml"}); err == nil {
		t.Error("unsupported format should return error")
	}
}

func TestValidateBundle(t *testing.T) {
	p := parser.NewParser()

	valid := validateBundle(context.Background(), p, "testdata/valid-bundle.yaml")
	if !valid.Valid || valid.Version != "2026-03" || valid.Policies != 2 || valid.Tests != 3 {
		t.Errorf("valid bundle result = %+v", valid)
	}
	if len(valid.Warnings) != 0 {
		t.Errorf("valid bundle warnings = %+v", valid.Warnings)
	}

	invalid := validateBundle(context.Background(), p, "testdata/invalid-bundle.yaml")
	if invalid.Valid {
		t.Fatal("invalid bundle should not be valid")
	}
	if len(invalid.Errors) < 2 {
		t.Fatalf("expected every error to be reported, got %+v", invalid.Errors)
	}

	var suggested bool
	for _, e := range invalid.Errors {
		if e.Line == 0 || e.File == "" {
			t.Errorf("error without location: %+v", e)
		}
		if strings.Contains(e.Suggestion, `"width_ft"`) {
			suggested = true
		}
	}
	if !suggested {
		t.Errorf("expected a width_ft suggestion for widht_ft, got %+v", invalid.Errors)
	}

	draft := validateBundle(context.Background(), p, "testdata/draft-only.yaml")
	if !draft.Valid || len(draft.Warnings) != 2 {
		t.Errorf("draft bundle result = %+v, want valid with 2 warnings", draft)
	}
}
