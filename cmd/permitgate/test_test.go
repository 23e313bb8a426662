package main

import (
	"testing"

	"mercator-hq/permitgate/pkg/rules/parser"
)

func TestRunTestsPassing(t *testing.T) {
	useConfig(t, quietLogs)
	testFlags.run = ""
	testFlags.format = "text"

	if err := runTests(nil, []string{"testdata/valid-bundle.yaml"}); err != nil {
		t.Errorf("runTests() on passing bundle returned error: %v", err)
	}
}

func TestRunTestsFailing(t *testing.T) {
	useConfig(t, quietLogs)
	testFlags.run = ""
	testFlags.format = "json"
	t.Cleanup(func() { testFlags.format = "text" })

	if err := runTests(nil, []string{"testdata/failing-tests.yaml"}); err == nil {
		t.Error("runTests() should fail when a test case fails")
	}
}

func TestRunTestsFilter(t *testing.T) {
	useConfig(t, quietLogs)
	testFlags.format = "text"
	t.Cleanup(func() { testFlags.run = "" })

	// Only the passing case of the failing bundle is selected.
	testFlags.run = "a front escort"
	if err := runTests(nil, []string{"testdata/failing-tests.yaml"}); err != nil {
		t.Errorf("filtered run returned error: %v", err)
	}

	testFlags.run = "no such test"
	if err := runTests(nil, []string{"testdata/valid-bundle.yaml"}); err == nil {
		t.Error("a filter that selects nothing should return error")
	}
}

func TestFilterTests(t *testing.T) {
	cases := []parser.TestCase{{Name: "wide escort"}, {Name: "narrow"}, {Name: "very wide escort"}}

	if got := filterTests(cases, ""); len(got) != 3 {
		t.Errorf("empty pattern kept %d cases, want 3", len(got))
	}
	got := filterTests(cases, "escort")
	if len(got) != 2 || got[0].Name != "wide escort" || got[1].Name != "very wide escort" {
		t.Errorf("filterTests(escort) = %+v", got)
	}
}
