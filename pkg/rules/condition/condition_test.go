package condition

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"mercator-hq/permitgate/pkg/rules/attribute"
	"mercator-hq/permitgate/pkg/rules/value"
)

func testRegistry() *attribute.Registry {
	return attribute.MustRegistry(
		attribute.Attribute{Name: "width_ft", Kind: attribute.KindNumber, Unit: "ft"},
		attribute.Attribute{Name: "gross_weight_lbs", Kind: attribute.KindNumber, Unit: "lbs"},
		attribute.Attribute{Name: "axles", Kind: attribute.KindNumber, Discrete: true},
		attribute.Attribute{Name: "on_bridge", Kind: attribute.KindBoolean},
		attribute.Attribute{Name: "road_type", Kind: attribute.KindEnum, Values: []string{"interstate", "highway", "local"}},
	)
}

func factOf(kv map[string]value.Value) Fact {
	return NewFact(kv)
}

func TestNewClause(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		name    string
		attr    string
		op      attribute.Operator
		val     value.Value
		wantErr error
	}{
		{"number gt", "width_ft", attribute.OpGt, value.Number(12), nil},
		{"number between", "width_ft", attribute.OpBetween, value.Range(10, 20), nil},
		{"degenerate range", "width_ft", attribute.OpBetween, value.Range(10, 10), nil},
		{"discrete in", "axles", attribute.OpInSet, value.Set(value.Number(5), value.Number(6)), nil},
		{"bool eq", "on_bridge", attribute.OpEq, value.Bool(true), nil},
		{"enum in", "road_type", attribute.OpInSet, value.Set(value.Enum("interstate"), value.Enum("local")), nil},
		{"enum neq", "road_type", attribute.OpNotEq, value.Enum("local"), nil},

		{"unknown attribute", "length_ft", attribute.OpGt, value.Number(1), ErrUnknownAttribute},
		{"relational on bool", "on_bridge", attribute.OpGt, value.Number(1), ErrIllegalOperator},
		{"between on enum", "road_type", attribute.OpBetween, value.Range(1, 2), ErrIllegalOperator},
		{"in on continuous number", "width_ft", attribute.OpInSet, value.Set(value.Number(1)), ErrIllegalOperator},
		{"in on bool", "on_bridge", attribute.OpInSet, value.Set(value.Bool(true)), ErrIllegalOperator},
		{"between with scalar", "width_ft", attribute.OpBetween, value.Number(10), ErrMalformedValue},
		{"inverted range", "width_ft", attribute.OpBetween, value.Range(20, 10), ErrMalformedValue},
		{"nan range", "width_ft", attribute.OpBetween, value.Range(math.NaN(), 10), ErrMalformedValue},
		{"gt with enum", "width_ft", attribute.OpGt, value.Enum("12"), ErrMalformedValue},
		{"eq kind mismatch", "on_bridge", attribute.OpEq, value.Number(1), ErrMalformedValue},
		{"undeclared enum tag", "road_type", attribute.OpEq, value.Enum("gravel"), ErrMalformedValue},
		{"empty set", "road_type", attribute.OpInSet, value.Set(), ErrMalformedValue},
		{"set with bad member", "road_type", attribute.OpInSet, value.Set(value.Enum("local"), value.Number(1)), ErrMalformedValue},
		{"in with scalar", "road_type", attribute.OpInSet, value.Enum("local"), ErrMalformedValue},
		{"unknown operator", "width_ft", attribute.Operator("contains"), value.Number(1), ErrIllegalOperator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClause(tt.attr, tt.op, tt.val, reg)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("NewClause() unexpected error: %v", err)
				}
				if c.Attribute() != tt.attr || c.Operator() != tt.op || !c.Value().Equal(tt.val) {
					t.Errorf("clause fields = %s", c)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewClause() error = %v, want %v", err, tt.wantErr)
			}
			var ce *ClauseError
			if !errors.As(err, &ce) {
				t.Errorf("expected *ClauseError, got %T", err)
			}
		})
	}
}

func TestEvaluateClause(t *testing.T) {
	reg := testRegistry()
	ev := NewEvaluator(reg)

	tests := []struct {
		name   string
		clause Clause
		fact   Fact
		want   bool
	}{
		{"gt true", MustClause("width_ft", attribute.OpGt, value.Number(12), reg), factOf(map[string]value.Value{"width_ft": value.Number(12.5)}), true},
		{"gt boundary", MustClause("width_ft", attribute.OpGt, value.Number(12), reg), factOf(map[string]value.Value{"width_ft": value.Number(12)}), false},
		{"gte boundary", MustClause("width_ft", attribute.OpGte, value.Number(12), reg), factOf(map[string]value.Value{"width_ft": value.Number(12)}), true},
		{"lt", MustClause("gross_weight_lbs", attribute.OpLt, value.Number(80000), reg), factOf(map[string]value.Value{"gross_weight_lbs": value.Number(79999)}), true},
		{"lte", MustClause("gross_weight_lbs", attribute.OpLte, value.Number(80000), reg), factOf(map[string]value.Value{"gross_weight_lbs": value.Number(80001)}), false},
		{"nan fact never greater", MustClause("width_ft", attribute.OpGt, value.Number(0), reg), factOf(map[string]value.Value{"width_ft": value.Number(math.NaN())}), false},
		{"bool eq", MustClause("on_bridge", attribute.OpEq, value.Bool(true), reg), factOf(map[string]value.Value{"on_bridge": value.Bool(true)}), true},
		{"bool neq", MustClause("on_bridge", attribute.OpNotEq, value.Bool(true), reg), factOf(map[string]value.Value{"on_bridge": value.Bool(false)}), true},
		{"enum eq", MustClause("road_type", attribute.OpEq, value.Enum("local"), reg), factOf(map[string]value.Value{"road_type": value.Enum("local")}), true},
		{"enum in", MustClause("road_type", attribute.OpInSet, value.Set(value.Enum("interstate"), value.Enum("highway")), reg), factOf(map[string]value.Value{"road_type": value.Enum("highway")}), true},
		{"enum not in", MustClause("road_type", attribute.OpInSet, value.Set(value.Enum("interstate")), reg), factOf(map[string]value.Value{"road_type": value.Enum("local")}), false},
		{"discrete in", MustClause("axles", attribute.OpInSet, value.Set(value.Number(5), value.Number(6)), reg), factOf(map[string]value.Value{"axles": value.Number(6)}), true},
		{"missing attribute is false", MustClause("on_bridge", attribute.OpEq, value.Bool(true), reg), factOf(nil), false},
		{"missing attribute with neq is false", MustClause("on_bridge", attribute.OpNotEq, value.Bool(true), reg), factOf(nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ev.EvaluateClause(tt.clause, tt.fact)
			if err != nil {
				t.Fatalf("EvaluateClause() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("EvaluateClause() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBetweenInclusive(t *testing.T) {
	reg := testRegistry()
	ev := NewEvaluator(reg)
	c := MustClause("width_ft", attribute.OpBetween, value.Range(10, 20), reg)

	for x, want := range map[float64]bool{10: true, 20: true, 15: true, 9.999: false, 20.001: false} {
		got, err := ev.EvaluateClause(c, factOf(map[string]value.Value{"width_ft": value.Number(x)}))
		if err != nil {
			t.Fatalf("EvaluateClause(%v) error = %v", x, err)
		}
		if got != want {
			t.Errorf("between(10,20) at %v = %v, want %v", x, got, want)
		}
	}
}

func TestEvaluateClause_Errors(t *testing.T) {
	reg := testRegistry()
	c := MustClause("width_ft", attribute.OpGt, value.Number(12), reg)

	t.Run("attribute unknown to evaluator registry", func(t *testing.T) {
		other := attribute.MustRegistry(attribute.Attribute{Name: "height_ft", Kind: attribute.KindNumber})
		_, err := NewEvaluator(other).EvaluateClause(c, factOf(map[string]value.Value{"width_ft": value.Number(13)}))
		if !errors.Is(err, ErrUnknownAttribute) {
			t.Fatalf("error = %v, want ErrUnknownAttribute", err)
		}
		var ee *EvalError
		if !errors.As(err, &ee) || ee.Attribute != "width_ft" {
			t.Errorf("expected *EvalError for width_ft, got %v", err)
		}
	})

	t.Run("fact kind mismatch", func(t *testing.T) {
		_, err := NewEvaluator(reg).EvaluateClause(c, factOf(map[string]value.Value{"width_ft": value.Enum("wide")}))
		if !errors.Is(err, ErrFactTypeMismatch) {
			t.Fatalf("error = %v, want ErrFactTypeMismatch", err)
		}
	})
}

func TestEvaluate_Groups(t *testing.T) {
	reg := testRegistry()
	ev := NewEvaluator(reg)

	wide := Leaf(MustClause("width_ft", attribute.OpGt, value.Number(12), reg))
	heavy := Leaf(MustClause("gross_weight_lbs", attribute.OpGt, value.Number(80000), reg))
	bridge := Leaf(MustClause("on_bridge", attribute.OpEq, value.Bool(true), reg))

	fact := factOf(map[string]value.Value{
		"width_ft":         value.Number(14),
		"gross_weight_lbs": value.Number(60000),
	})

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"empty all", All(), true},
		{"empty any", Any(), false},
		{"zero value", Condition{}, true},
		{"single leaf", wide, true},
		{"all true false", All(wide, heavy), false},
		{"any true false", Any(heavy, wide), true},
		{"missing attribute inside any", Any(bridge, wide), true},
		{"missing attribute inside all", All(wide, bridge), false},
		{"nested", All(wide, Any(heavy, All())), true},
		{"nested empty any", All(wide, Any()), false},
		{"all of empty anys", Any(Any(), Any()), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ev.Evaluate(tt.cond, fact)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%s) = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

func TestEvaluate_ShortCircuitAndErrors(t *testing.T) {
	reg := testRegistry()
	wide := Leaf(MustClause("width_ft", attribute.OpGt, value.Number(12), reg))
	narrow := Leaf(MustClause("width_ft", attribute.OpLt, value.Number(8), reg))

	// evaluator registry without gross_weight_lbs makes that clause fail
	partial := attribute.MustRegistry(attribute.Attribute{Name: "width_ft", Kind: attribute.KindNumber})
	ev := NewEvaluator(partial)
	broken := Leaf(MustClause("gross_weight_lbs", attribute.OpGt, value.Number(1), reg))

	fact := factOf(map[string]value.Value{"width_ft": value.Number(14)})

	if ok, err := ev.Evaluate(Any(wide, broken), fact); err != nil || !ok {
		t.Errorf("any should stop at first true: ok=%v err=%v", ok, err)
	}
	if ok, err := ev.Evaluate(All(narrow, broken), fact); err != nil || ok {
		t.Errorf("all should stop at first false: ok=%v err=%v", ok, err)
	}
	if _, err := ev.Evaluate(All(wide, broken), fact); !errors.Is(err, ErrUnknownAttribute) {
		t.Errorf("error should propagate, got %v", err)
	}
	if _, err := ev.Evaluate(Any(narrow, Any(broken, wide)), fact); !errors.Is(err, ErrUnknownAttribute) {
		t.Errorf("nested error should propagate, got %v", err)
	}
}

func TestEvaluate_DeepNesting(t *testing.T) {
	reg := testRegistry()
	ev := NewEvaluator(reg)
	leaf := Leaf(MustClause("width_ft", attribute.OpGt, value.Number(12), reg))

	cond := leaf
	for i := 0; i < 200000; i++ {
		if i%2 == 0 {
			cond = All(cond)
		} else {
			cond = Any(cond)
		}
	}

	got, err := ev.Evaluate(cond, factOf(map[string]value.Value{"width_ft": value.Number(13)}))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !got {
		t.Error("deep chain should evaluate to the leaf result")
	}
	if d := Depth(cond); d != 200001 {
		t.Errorf("Depth() = %d, want 200001", d)
	}
}

func TestCheck(t *testing.T) {
	reg := testRegistry()
	cond := All(
		Leaf(MustClause("width_ft", attribute.OpGt, value.Number(12), reg)),
		Any(Leaf(MustClause("road_type", attribute.OpEq, value.Enum("local"), reg))),
	)

	if err := Check(cond, reg); err != nil {
		t.Fatalf("Check() against building registry: %v", err)
	}

	narrower := attribute.MustRegistry(
		attribute.Attribute{Name: "width_ft", Kind: attribute.KindNumber},
		attribute.Attribute{Name: "road_type", Kind: attribute.KindEnum, Values: []string{"interstate"}},
	)
	if err := Check(cond, narrower); !errors.Is(err, ErrMalformedValue) {
		t.Errorf("Check() error = %v, want ErrMalformedValue", err)
	}

	if got := Attributes(cond); len(got) != 2 || got[0] != "width_ft" || got[1] != "road_type" {
		t.Errorf("Attributes() = %v", got)
	}
	if got := cond.String(); got != "all(width_ft gt 12, any(road_type eq local))" {
		t.Errorf("String() = %q", got)
	}
}

func TestFactIsolation(t *testing.T) {
	src := map[string]value.Value{"width_ft": value.Number(10)}
	f := NewFact(src)
	src["width_ft"] = value.Number(99)

	v, _ := f.Get("width_ft")
	if n, _ := v.AsNumber(); n != 10 {
		t.Errorf("fact aliased caller map: %v", v)
	}
}

func TestEvaluate_Properties(t *testing.T) {
	reg := testRegistry()
	ev := NewEvaluator(reg)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("between is inclusive on both ends", prop.ForAll(
		func(lo, span, x float64) bool {
			hi := lo + span
			c := MustClause("width_ft", attribute.OpBetween, value.Range(lo, hi), reg)
			got, err := ev.EvaluateClause(c, factOf(map[string]value.Value{"width_ft": value.Number(x)}))
			if err != nil {
				return false
			}
			return got == (lo <= x && x <= hi)
		},
		gen.Float64Range(-1000, 1000),
		gen.Float64Range(0, 1000),
		gen.Float64Range(-2000, 2000),
	))

	properties.Property("empty all matches and empty any never matches", prop.ForAll(
		func(width float64) bool {
			fact := factOf(map[string]value.Value{"width_ft": value.Number(width)})
			all, err1 := ev.Evaluate(All(), fact)
			anyOK, err2 := ev.Evaluate(Any(), fact)
			return err1 == nil && err2 == nil && all && !anyOK
		},
		gen.Float64Range(0, 100),
	))

	properties.Property("missing attribute evaluates false without error", prop.ForAll(
		func(threshold float64) bool {
			c := MustClause("gross_weight_lbs", attribute.OpGte, value.Number(threshold), reg)
			got, err := ev.Evaluate(All(Leaf(c)), factOf(nil))
			return err == nil && !got
		},
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("evaluation is deterministic", prop.ForAll(
		func(width float64, onBridge bool) bool {
			cond := Any(
				All(Leaf(MustClause("width_ft", attribute.OpGt, value.Number(12), reg)),
					Leaf(MustClause("on_bridge", attribute.OpEq, value.Bool(true), reg))),
				Leaf(MustClause("width_ft", attribute.OpBetween, value.Range(16, 18), reg)),
			)
			fact := factOf(map[string]value.Value{"width_ft": value.Number(width), "on_bridge": value.Bool(onBridge)})
			a, errA := ev.Evaluate(cond, fact)
			b, errB := ev.Evaluate(cond, fact)
			return errA == nil && errB == nil && a == b
		},
		gen.Float64Range(0, 30),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
