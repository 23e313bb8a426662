package value

import (
	"encoding/json"
	"math"
	"testing"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same number", Number(12), Number(12), true},
		{"different number", Number(12), Number(12.5), false},
		{"nan never equal", Number(math.NaN()), Number(math.NaN()), false},
		{"bool", Bool(true), Bool(true), true},
		{"enum", Enum("interstate"), Enum("interstate"), true},
		{"enum case sensitive", Enum("Interstate"), Enum("interstate"), false},
		{"no coercion number vs enum", Number(1), Enum("1"), false},
		{"no coercion bool vs number", Bool(true), Number(1), false},
		{"range", Range(10, 20), Range(10, 20), true},
		{"range bounds", Range(10, 20), Range(10, 21), false},
		{"set ordered", Set(Enum("front"), Enum("rear")), Set(Enum("front"), Enum("rear")), true},
		{"set order matters", Set(Enum("front"), Enum("rear")), Set(Enum("rear"), Enum("front")), false},
		{"set length", Set(Enum("front")), Set(Enum("front"), Enum("rear")), false},
		{"zero values", Value{}, Value{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetCopiesInput(t *testing.T) {
	items := []Value{Enum("a"), Enum("b")}
	s := Set(items...)
	items[0] = Enum("z")

	if !s.Contains(Enum("a")) {
		t.Error("set should not alias caller slice")
	}

	out := s.Items()
	out[1] = Enum("y")
	if !s.Contains(Enum("b")) {
		t.Error("Items() should return a copy")
	}
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    Value
		wantErr bool
	}{
		{"float", 12.5, Number(12.5), false},
		{"int", 14, Number(14), false},
		{"int64", int64(80000), Number(80000), false},
		{"json number", json.Number("3.25"), Number(3.25), false},
		{"bool", true, Bool(true), false},
		{"string", "local", Enum("local"), false},
		{"list", []any{"front", "rear"}, Set(Enum("front"), Enum("rear")), false},
		{"string list", []string{"a"}, Set(Enum("a")), false},
		{"nested list", []any{[]any{1}}, Value{}, true},
		{"map", map[string]any{"x": 1}, Value{}, true},
		{"nil", nil, Value{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromAny() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("FromAny() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	out := map[string]Value{
		"front_escorts": Number(2),
		"police_escort": Bool(false),
		"positions":     Set(Enum("front"), Enum("rear")),
	}

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"front_escorts":2,"police_escort":false,"positions":["front","rear"]}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	if _, err := json.Marshal(Number(math.Inf(1))); err == nil {
		t.Error("expected error encoding +Inf")
	}
}

func TestUnmarshalJSON(t *testing.T) {
	var out map[string]Value
	if err := json.Unmarshal([]byte(`{"n":2,"b":true,"s":["front","rear"]}`), &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !out["n"].Equal(Number(2)) || !out["b"].Equal(Bool(true)) || !out["s"].Equal(Set(Enum("front"), Enum("rear"))) {
		t.Errorf("Unmarshal() = %v", out)
	}

	var v Value
	if err := json.Unmarshal([]byte(`{"a":1}`), &v); err == nil {
		t.Error("expected error decoding an object")
	}
}

func TestString(t *testing.T) {
	if got := Range(10, 20.5).String(); got != "[10, 20.5]" {
		t.Errorf("Range.String() = %q", got)
	}
	if got := Set(Number(1), Enum("x")).String(); got != "[1, x]" {
		t.Errorf("Set.String() = %q", got)
	}
}
