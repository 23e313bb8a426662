package attribute

import (
	"errors"
	"testing"

	"mercator-hq/permitgate/pkg/rules/value"
)

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		attrs   []Attribute
		wantErr error
	}{
		{
			name: "number boolean enum",
			attrs: []Attribute{
				{Name: "width_ft", Kind: KindNumber, Unit: "ft"},
				{Name: "on_bridge", Kind: KindBoolean},
				{Name: "road_type", Kind: KindEnum, Values: []string{"interstate", "local"}},
			},
		},
		{
			name: "duplicate name",
			attrs: []Attribute{
				{Name: "width_ft", Kind: KindNumber},
				{Name: "width_ft", Kind: KindNumber},
			},
			wantErr: ErrDuplicateAttribute,
		},
		{
			name:    "empty name",
			attrs:   []Attribute{{Kind: KindNumber}},
			wantErr: ErrInvalidAttribute,
		},
		{
			name:    "unknown kind",
			attrs:   []Attribute{{Name: "x", Kind: "string"}},
			wantErr: ErrInvalidAttribute,
		},
		{
			name:    "enum without values",
			attrs:   []Attribute{{Name: "road_type", Kind: KindEnum}},
			wantErr: ErrInvalidAttribute,
		},
		{
			name:    "enum duplicate tag",
			attrs:   []Attribute{{Name: "road_type", Kind: KindEnum, Values: []string{"a", "a"}}},
			wantErr: ErrInvalidAttribute,
		},
		{
			name:    "discrete boolean",
			attrs:   []Attribute{{Name: "on_bridge", Kind: KindBoolean, Discrete: true}},
			wantErr: ErrInvalidAttribute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			var err error
			for _, a := range tt.attrs {
				if err = r.Register(a); err != nil {
					break
				}
			}

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Register() unexpected error: %v", err)
				}
				if r.Len() != len(tt.attrs) {
					t.Errorf("Len() = %d, want %d", r.Len(), len(tt.attrs))
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Register() error = %v, want %v", err, tt.wantErr)
			}
			var attrErr *AttributeError
			if !errors.As(err, &attrErr) {
				t.Errorf("expected *AttributeError, got %T", err)
			}
		})
	}
}

func TestRegisterAfterSeal(t *testing.T) {
	r := MustRegistry(Attribute{Name: "width_ft", Kind: KindNumber})

	err := r.Register(Attribute{Name: "height_ft", Kind: KindNumber})
	if !errors.Is(err, ErrRegistrySealed) {
		t.Fatalf("Register() error = %v, want ErrRegistrySealed", err)
	}
	if !r.Sealed() {
		t.Error("Sealed() = false")
	}
}

func TestLegalOperators(t *testing.T) {
	r := MustRegistry(
		Attribute{Name: "width_ft", Kind: KindNumber},
		Attribute{Name: "axles", Kind: KindNumber, Discrete: true},
		Attribute{Name: "on_bridge", Kind: KindBoolean},
		Attribute{Name: "road_type", Kind: KindEnum, Values: []string{"interstate"}},
	)

	tests := []struct {
		attr    string
		op      Operator
		allowed bool
	}{
		{"width_ft", OpGt, true},
		{"width_ft", OpBetween, true},
		{"width_ft", OpInSet, false},
		{"axles", OpInSet, true},
		{"on_bridge", OpEq, true},
		{"on_bridge", OpNotEq, true},
		{"on_bridge", OpGt, false},
		{"on_bridge", OpInSet, false},
		{"road_type", OpInSet, true},
		{"road_type", OpLt, false},
		{"road_type", OpBetween, false},
	}

	for _, tt := range tests {
		t.Run(tt.attr+"/"+string(tt.op), func(t *testing.T) {
			ops, err := r.LegalOperators(tt.attr)
			if err != nil {
				t.Fatalf("LegalOperators() error = %v", err)
			}
			found := false
			for _, op := range ops {
				if op == tt.op {
					found = true
				}
			}
			if found != tt.allowed {
				t.Errorf("operator %s allowed = %v, want %v", tt.op, found, tt.allowed)
			}
		})
	}

	if _, err := r.LegalOperators("gross_weight"); !errors.Is(err, ErrUnknownAttribute) {
		t.Errorf("LegalOperators(unknown) error = %v, want ErrUnknownAttribute", err)
	}
}

func TestLookupDoesNotAlias(t *testing.T) {
	r := MustRegistry(Attribute{Name: "road_type", Kind: KindEnum, Values: []string{"interstate", "local"}})

	a, _ := r.Lookup("road_type")
	a.Values[0] = "gravel"

	again, _ := r.Lookup("road_type")
	if again.Values[0] != "interstate" {
		t.Errorf("registry mutated through Lookup: %v", again.Values)
	}
}

func TestAccepts(t *testing.T) {
	road := Attribute{Name: "road_type", Kind: KindEnum, Values: []string{"interstate"}}
	if !road.Accepts(value.Enum("interstate")) {
		t.Error("declared tag rejected")
	}
	if road.Accepts(value.Enum("gravel")) {
		t.Error("undeclared tag accepted")
	}
	if road.Accepts(value.Number(1)) {
		t.Error("number accepted by enum attribute")
	}
}

func TestParseOperator(t *testing.T) {
	for in, want := range map[string]Operator{">=": OpGte, "BETWEEN": OpBetween, "in_set": OpInSet, "!=": OpNotEq} {
		got, err := ParseOperator(in)
		if err != nil || got != want {
			t.Errorf("ParseOperator(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseOperator("contains"); err == nil {
		t.Error("expected error for unknown operator")
	}
}
