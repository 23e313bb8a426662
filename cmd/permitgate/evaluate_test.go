package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/permitgate/pkg/config"
	"mercator-hq/permitgate/pkg/rules/parser"
	"mercator-hq/permitgate/pkg/rules/policy"
	"mercator-hq/permitgate/pkg/rules/value"
)

func TestReadFact(t *testing.T) {
	raw, err := readFact([]string{"width_ft=14", "road_type=interstate", "escorts=[front, rear]", "hazmat=true"}, "", nil)
	if err != nil {
		t.Fatalf("readFact() error = %v", err)
	}

	for name, want := range map[string]value.Value{
		"width_ft":  value.Number(14),
		"road_type": value.Enum("interstate"),
		"escorts":   value.Set(value.Enum("front"), value.Enum("rear")),
		"hazmat":    value.Bool(true),
	} {
		got, err := value.FromAny(raw[name])
		if err != nil {
			t.Fatalf("%s: FromAny() error = %v", name, err)
		}
		if !got.Equal(want) {
			t.Errorf("%s = %s, want %s", name, got, want)
		}
	}
}

func TestReadFact_FileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "load.yaml")
	if err := os.WriteFile(path, []byte("width_ft: 12\nroad_type: local\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	raw, err := readFact([]string{"width_ft=16"}, path, nil)
	if err != nil {
		t.Fatalf("readFact() error = %v", err)
	}
	if raw["width_ft"] != 16 || raw["road_type"] != "local" {
		t.Errorf("raw = %v, want pair to override file", raw)
	}

	raw, err = readFact(nil, "-", strings.NewReader(`{"width_ft": 9.5}`))
	if err != nil {
		t.Fatalf("readFact(stdin) error = %v", err)
	}
	if raw["width_ft"] != 9.5 {
		t.Errorf("stdin fact = %v", raw)
	}
}

func TestReadFact_Errors(t *testing.T) {
	tests := []struct {
		name  string
		pairs []string
		file  string
	}{
		{"no fact", nil, ""},
		{"missing equals", []string{"width_ft"}, ""},
		{"empty name", []string{"=3"}, ""},
		{"missing file", nil, "testdata/nope.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := readFact(tt.pairs, tt.file, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEvaluationCategories(t *testing.T) {
	store, err := loadSnapshot(context.Background(), config.NewDefaultConfig(), "testdata/valid-bundle.yaml", nil)
	if err != nil {
		t.Fatalf("loadSnapshot() error = %v", err)
	}
	snap := store.Snapshot()

	cats, err := evaluationCategories(snap, "")
	if err != nil {
		t.Fatalf("evaluationCategories() error = %v", err)
	}
	if len(cats) != 2 {
		t.Errorf("categories = %v, want escort and speed", cats)
	}

	cats, err = evaluationCategories(snap, "speed")
	if err != nil || len(cats) != 1 || cats[0] != "speed" {
		t.Errorf("evaluationCategories(speed) = %v, %v", cats, err)
	}

	if _, err := evaluationCategories(snap, "ferry"); err == nil {
		t.Error("unknown category should return error")
	}
}

func TestRunEvaluate(t *testing.T) {
	useConfig(t, quietLogs)
	evaluateFlags.bundle = "testdata/valid-bundle.yaml"
	evaluateFlags.category = ""
	evaluateFlags.facts = []string{"width_ft=15", "road_type=interstate"}
	evaluateFlags.factFile = ""
	evaluateFlags.trace = true
	evaluateFlags.format = "text"
	t.Cleanup(func() { evaluateFlags.trace = false })

	if err := runEvaluate(nil, nil); err != nil {
		t.Errorf("runEvaluate() error = %v", err)
	}

	evaluateFlags.facts = []string{"widht_ft=15"}
	if err := runEvaluate(nil, nil); err == nil {
		t.Error("a fact with an unknown attribute should return error")
	}
}

func TestEvaluationReportText(t *testing.T) {
	store, err := loadSnapshot(context.Background(), config.NewDefaultConfig(), "testdata/valid-bundle.yaml", nil)
	if err != nil {
		t.Fatal(err)
	}
	eng, err := newEngine(config.NewDefaultConfig(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	snap := store.Snapshot()

	fact, err := parser.ParseFact(map[string]any{"width_ft": 13}, snap.Registry)
	if err != nil {
		t.Fatal(err)
	}
	report := &evaluationReport{BundleVersion: snap.Version}
	for _, cat := range []policy.Category{policy.CategoryEscort, policy.CategorySpeed} {
		res, err := eng.Evaluate(context.Background(), cat, snap, fact)
		if err != nil {
			t.Fatal(err)
		}
		report.Results = append(report.Results, evaluationEntry{Category: cat, Result: res})
	}

	var buf bytes.Buffer
	if err := report.WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Bundle 2026-03", "✓ escort: matched wide-load", "front_escorts = 1", "○ speed: no matching policies"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
