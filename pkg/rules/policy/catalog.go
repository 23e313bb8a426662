package policy

import (
	"fmt"
	"sort"

	"mercator-hq/permitgate/pkg/rules/value"
)

// FieldSpec declares one output field of a category.
type FieldSpec struct {
	Kind     FieldKind
	Strategy MergeStrategy

	// Default is the field's value in the base output; an invalid Value
	// means the base output omits the field.
	Default value.Value

	Description string
}

// FieldTable maps field names to their declarations.
type FieldTable map[string]FieldSpec

// StrategyFor returns the registered strategy for a field, if any.
func (t FieldTable) StrategyFor(field string) (MergeStrategy, bool) {
	spec, ok := t[field]
	if !ok || spec.Strategy == "" {
		return "", false
	}
	return spec.Strategy, true
}

// KindOf returns the declared kind of a field, if any.
func (t FieldTable) KindOf(field string) (FieldKind, bool) {
	spec, ok := t[field]
	if !ok || spec.Kind == "" {
		return "", false
	}
	return spec.Kind, true
}

// CategorySpec declares the output shape and merge defaults of a category.
type CategorySpec struct {
	Name        Category
	Description string
	Fields      FieldTable
}

// Base builds the category's base output from the field defaults. It is
// the result returned when no policy matches.
func (c CategorySpec) Base() OutputRecord {
	out := OutputRecord{}
	for name, f := range c.Fields {
		if f.Default.IsValid() {
			out[name] = f.Default
		}
	}
	return out
}

func (c CategorySpec) validate() error {
	for name, f := range c.Fields {
		if f.Kind == "" {
			return fmt.Errorf("category %s field %s: kind is required", c.Name, name)
		}
		if f.Strategy != "" && !f.Strategy.Supports(f.Kind) {
			return fmt.Errorf("category %s field %s: strategy %s cannot merge %s fields", c.Name, name, f.Strategy, f.Kind)
		}
		if f.Default.IsValid() && FieldKindOf(f.Default) != f.Kind {
			return fmt.Errorf("category %s field %s: default %s is not a %s", c.Name, name, f.Default, f.Kind)
		}
	}
	return nil
}

// Catalog holds the category declarations in use. A Catalog is a plain value
// passed explicitly to validation and merging; there is no package-level
// table.
type Catalog map[Category]CategorySpec

// Get returns a category's declaration.
func (c Catalog) Get(cat Category) (CategorySpec, bool) {
	spec, ok := c[cat]
	return spec, ok
}

// Categories returns the declared categories in lexical order.
func (c Catalog) Categories() []Category {
	out := make([]Category, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Base returns the base output for a category, empty if undeclared.
func (c Catalog) Base(cat Category) OutputRecord {
	spec, ok := c[cat]
	if !ok {
		return OutputRecord{}
	}
	return spec.Base()
}

// Fields returns a copy of the field table for a category.
func (c Catalog) Fields(cat Category) FieldTable {
	spec, ok := c[cat]
	if !ok {
		return FieldTable{}
	}
	cp := make(FieldTable, len(spec.Fields))
	for k, v := range spec.Fields {
		cp[k] = v
	}
	return cp
}

// Clone returns a deep copy.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for k, spec := range c {
		out[k] = CategorySpec{Name: spec.Name, Description: spec.Description, Fields: c.Fields(k)}
	}
	return out
}

// Extend returns a copy of c with the categories and fields of ext layered on
// top. Fields declared in ext replace those of the same name.
func (c Catalog) Extend(ext Catalog) (Catalog, error) {
	out := c.Clone()
	for name, spec := range ext {
		spec.Name = name
		if err := spec.validate(); err != nil {
			return nil, err
		}
		cur, ok := out[name]
		if !ok {
			out[name] = CategorySpec{Name: name, Description: spec.Description, Fields: FieldTable{}}
			cur = out[name]
		}
		if spec.Description != "" {
			cur.Description = spec.Description
		}
		for field, f := range spec.Fields {
			cur.Fields[field] = f
		}
		out[name] = cur
	}
	return out, nil
}

func num(f float64) value.Value { return value.Number(f) }

// DefaultCatalog returns a fresh catalog of the built-in categories.
func DefaultCatalog() Catalog {
	return Catalog{
		CategoryEscort: {
			Name:        CategoryEscort,
			Description: "Pilot/escort vehicle requirements",
			Fields: FieldTable{
				"front_escorts":    {Kind: FieldNumber, Strategy: MergeMax, Default: num(0)},
				"rear_escorts":     {Kind: FieldNumber, Strategy: MergeMax, Default: num(0)},
				"escort_positions": {Kind: FieldSet, Strategy: MergeUnion, Default: value.Set()},
				"police_escort":    {Kind: FieldBoolean, Strategy: MergeUnion, Default: value.Bool(false)},
				"height_pole":      {Kind: FieldBoolean, Strategy: MergeUnion, Default: value.Bool(false)},
			},
		},
		CategoryPermit: {
			Name:        CategoryPermit,
			Description: "Permit issuance requirements",
			Fields: FieldTable{
				"permit_required":    {Kind: FieldBoolean, Strategy: MergeUnion, Default: value.Bool(false)},
				"permit_types":       {Kind: FieldSet, Strategy: MergeUnion, Default: value.Set()},
				"required_documents": {Kind: FieldSet, Strategy: MergeUnion, Default: value.Set()},
				"fee_usd":            {Kind: FieldNumber, Strategy: MergeSum, Default: num(0)},
				"valid_days":         {Kind: FieldNumber, Strategy: MergeMin},
			},
		},
		CategorySpeed: {
			Name:        CategorySpeed,
			Description: "Travel speed limits",
			Fields: FieldTable{
				"max_speed_mph": {Kind: FieldNumber, Strategy: MergeMin},
				"min_speed_mph": {Kind: FieldNumber, Strategy: MergeMax},
			},
		},
		CategoryHours: {
			Name:        CategoryHours,
			Description: "Travel time restrictions",
			Fields: FieldTable{
				"night_travel_prohibited":   {Kind: FieldBoolean, Strategy: MergeUnion, Default: value.Bool(false)},
				"weekend_travel_prohibited": {Kind: FieldBoolean, Strategy: MergeUnion, Default: value.Bool(false)},
				"earliest_start_hour":       {Kind: FieldNumber, Strategy: MergeMax},
				"latest_end_hour":           {Kind: FieldNumber, Strategy: MergeMin},
				"holiday_restrictions":      {Kind: FieldSet, Strategy: MergeUnion, Default: value.Set()},
			},
		},
		CategoryRoute: {
			Name:        CategoryRoute,
			Description: "Routing restrictions",
			Fields: FieldTable{
				"route_survey_required": {Kind: FieldBoolean, Strategy: MergeUnion, Default: value.Bool(false)},
				"restricted_roads":      {Kind: FieldSet, Strategy: MergeUnion, Default: value.Set()},
				"lane_restriction":      {Kind: FieldEnum, Strategy: MergeFirst},
			},
		},
		CategoryUtility: {
			Name:        CategoryUtility,
			Description: "Overhead utility coordination",
			Fields: FieldTable{
				"utility_notice_required": {Kind: FieldBoolean, Strategy: MergeUnion, Default: value.Bool(false)},
				"notice_hours":            {Kind: FieldNumber, Strategy: MergeMax, Default: num(0)},
				"utility_companies":       {Kind: FieldSet, Strategy: MergeUnion, Default: value.Set()},
			},
		},
		CategoryDimension: {
			Name:        CategoryDimension,
			Description: "Dimension and weight limits",
			Fields: FieldTable{
				"max_width_ft":         {Kind: FieldNumber, Strategy: MergeMin},
				"max_height_ft":        {Kind: FieldNumber, Strategy: MergeMin},
				"max_length_ft":        {Kind: FieldNumber, Strategy: MergeMin},
				"max_gross_weight_lbs": {Kind: FieldNumber, Strategy: MergeMin},
				"load_class":           {Kind: FieldEnum, Strategy: MergeLast},
			},
		},
	}
}
