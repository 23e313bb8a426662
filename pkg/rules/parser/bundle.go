package parser

import (
	"mercator-hq/permitgate/pkg/rules/attribute"
	"mercator-hq/permitgate/pkg/rules/condition"
	"mercator-hq/permitgate/pkg/rules/policy"
)

// Bundle is everything a set of bundle documents declares: attributes,
// category extensions, policies and embedded test cases.
type Bundle struct {
	// Version is the first non-empty top-level version found, or a content
	// hash when no document declares one.
	Version string

	Registry *attribute.Registry
	Catalog  policy.Catalog
	Policies []*policy.Policy
	Tests    []TestCase

	// Sources lists the document names in parse order.
	Sources []string
}

// TestCase is one expectation embedded in a bundle.
type TestCase struct {
	Name     string
	Category policy.Category
	Fact     condition.Fact
	Expect   Expectation
	Location Location
}

// Expectation describes the expected evaluation outcome. Nil Matched means
// the matched list is not checked; Output lists only the fields to check.
type Expectation struct {
	Matched []string
	Output  policy.OutputRecord
	Error   bool
}

// Document is one named bundle source.
type Document struct {
	Name string
	Data []byte
}
