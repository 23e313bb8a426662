package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"testing"
)

type summary struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

func (s summary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d passed, %d failed\n", s.Passed, s.Failed)
	return err
}

func (s summary) Header() []string { return []string{"passed", "failed"} }

func (s summary) Rows() [][]string {
	return [][]string{{fmt.Sprint(s.Passed), fmt.Sprint(s.Failed)}}
}

func TestFormatters(t *testing.T) {
	data := summary{Passed: 3, Failed: 1}

	tests := []struct {
		format OutputFormat
		want   string
	}{
		{FormatText, "3 passed, 1 failed\n"},
		{FormatJSON, "{\n  \"passed\": 3,\n  \"failed\": 1\n}\n"},
		{FormatCSV, "passed,failed\n3,1\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewFormatter(tt.format).FormatTo(&buf, data); err != nil {
				t.Fatalf("FormatTo() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("FormatTo() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestTextFormatterFallback(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextFormatter{}).FormatTo(&buf, "test message"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "test message\n" {
		t.Errorf("FormatTo() = %q", buf.String())
	}
}

func TestJSONFormatterCompact(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONFormatter{}).FormatTo(&buf, map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil || got["a"] != 1 {
		t.Errorf("FormatTo() = %q", buf.String())
	}
}

func TestCSVFormatterRejectsNonTabular(t *testing.T) {
	if err := (&CSVFormatter{}).FormatTo(&bytes.Buffer{}, "plain"); err == nil {
		t.Error("expected error for non-tabular data")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"json", FormatJSON, false},
		{"csv", "", true},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in, FormatText, FormatJSON)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestNewFormatterDefault(t *testing.T) {
	if _, ok := NewFormatter("unknown").(*TextFormatter); !ok {
		t.Error("unknown formats should fall back to text")
	}
}
