package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"mercator-hq/permitgate/pkg/rules/attribute"
	"mercator-hq/permitgate/pkg/rules/condition"
	"mercator-hq/permitgate/pkg/rules/policy"
	"mercator-hq/permitgate/pkg/rules/value"
)

var (
	topLevelKeys  = []string{"version", "attributes", "categories", "policies", "tests"}
	attributeKeys = []string{"name", "kind", "values", "unit", "discrete", "description"}
	policyKeys    = []string{"id", "category", "status", "priority", "description", "jurisdiction", "when", "output", "merge"}
	fieldKeys     = []string{"kind", "strategy", "default", "description"}
	testKeys      = []string{"name", "category", "fact", "expect"}
	expectKeys    = []string{"matched", "output", "error"}
	clauseKeys    = []string{"attr", "op", "value"}
)

// Parser turns bundle documents into a Bundle. It reports every problem it
// finds, each with its source location.
type Parser struct {
	maxFileSize int64
	maxDepth    int
}

// NewParser creates a parser with default limits: 10MB per file and
// conditions nested at most 64 levels.
func NewParser() *Parser {
	return &Parser{
		maxFileSize: 10 * 1024 * 1024,
		maxDepth:    64,
	}
}

// WithMaxFileSize sets the maximum file size limit.
func (p *Parser) WithMaxFileSize(size int64) *Parser {
	p.maxFileSize = size
	return p
}

// WithMaxDepth sets the maximum condition nesting depth.
func (p *Parser) WithMaxDepth(depth int) *Parser {
	p.maxDepth = depth
	return p
}

// ParseFile reads and parses one bundle file.
func (p *Parser) ParseFile(path string) (*Bundle, error) {
	doc, err := p.ReadDocument(path)
	if err != nil {
		return nil, err
	}
	return p.ParseDocuments([]Document{doc})
}

// ReadDocument reads a file, enforcing the size limit.
func (p *Parser) ReadDocument(path string) (Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Document{}, &Error{Type: ErrorTypeIO, Message: fmt.Sprintf("failed to access file: %v", err), Location: Location{File: path}, Cause: err}
	}
	if info.Size() > p.maxFileSize {
		return Document{}, &Error{Type: ErrorTypeIO, Message: fmt.Sprintf("file size %d exceeds maximum %d bytes", info.Size(), p.maxFileSize), Location: Location{File: path}}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, &Error{Type: ErrorTypeIO, Message: fmt.Sprintf("failed to read file: %v", err), Location: Location{File: path}, Cause: err}
	}
	return Document{Name: path, Data: data}, nil
}

// Parse parses a single in-memory document.
func (p *Parser) Parse(data []byte, name string) (*Bundle, error) {
	return p.ParseDocuments([]Document{{Name: name, Data: data}})
}

type docRoot struct {
	name string
	root *yaml.Node
}

// ParseDocuments parses several documents into one bundle. Attributes and
// categories from every document are declared before any policy is built,
// so a policy may reference an attribute declared in another document.
func (p *Parser) ParseDocuments(docs []Document) (*Bundle, error) {
	errs := NewErrorList()
	b := &Bundle{}
	hash := sha256.New()

	var roots []docRoot
	for _, doc := range docs {
		b.Sources = append(b.Sources, doc.Name)
		hash.Write([]byte(doc.Name))
		hash.Write(doc.Data)

		if int64(len(doc.Data)) > p.maxFileSize {
			errs.AddError(ErrorTypeIO, fmt.Sprintf("document size %d exceeds maximum %d bytes", len(doc.Data), p.maxFileSize), Location{File: doc.Name})
			continue
		}

		var node yaml.Node
		if err := yaml.Unmarshal(doc.Data, &node); err != nil {
			errs.Add(&Error{Type: ErrorTypeSyntax, Message: fmt.Sprintf("YAML parsing failed: %v", err), Location: Location{File: doc.Name}, Cause: err})
			continue
		}
		if len(node.Content) == 0 {
			continue // empty document
		}
		root := node.Content[0]
		if root.Kind != yaml.MappingNode {
			errs.AddError(ErrorTypeStructural, "bundle document must be a mapping", loc(doc.Name, root))
			continue
		}
		checkKeys(errs, doc.Name, root, topLevelKeys)
		roots = append(roots, docRoot{name: doc.Name, root: root})
	}

	reg := attribute.NewRegistry()
	ext := policy.Catalog{}
	var categoriesLoc Location

	for _, r := range roots {
		if n := lookup(r.root, "version"); n != nil && b.Version == "" {
			b.Version = n.Value
		}
		if n := lookup(r.root, "attributes"); n != nil {
			p.parseAttributes(errs, r.name, n, reg)
		}
		if n := lookup(r.root, "categories"); n != nil {
			categoriesLoc = loc(r.name, n)
			p.parseCategories(errs, r.name, n, ext)
		}
	}
	reg.Seal()
	b.Registry = reg

	catalog, err := policy.DefaultCatalog().Extend(ext)
	if err != nil {
		errs.AddCause(ErrorTypeSemantic, err, categoriesLoc)
		catalog = policy.DefaultCatalog()
	}
	b.Catalog = catalog

	ids := make(map[string]Location)
	for _, r := range roots {
		n := lookup(r.root, "policies")
		if n == nil {
			continue
		}
		if n.Kind != yaml.SequenceNode {
			errs.AddError(ErrorTypeStructural, "policies must be a list", loc(r.name, n))
			continue
		}
		for _, pn := range n.Content {
			pol, ok := p.parsePolicy(errs, r.name, pn, reg, catalog)
			if !ok {
				continue
			}
			if prev, dup := ids[pol.ID]; dup {
				errs.Add(&Error{
					Type:       ErrorTypeSemantic,
					Message:    fmt.Sprintf("duplicate policy id %q", pol.ID),
					Location:   loc(r.name, pn),
					Suggestion: fmt.Sprintf("first declared at %s", prev),
				})
				continue
			}
			ids[pol.ID] = loc(r.name, pn)
			b.Policies = append(b.Policies, pol)
		}
	}

	for _, r := range roots {
		n := lookup(r.root, "tests")
		if n == nil {
			continue
		}
		if n.Kind != yaml.SequenceNode {
			errs.AddError(ErrorTypeStructural, "tests must be a list", loc(r.name, n))
			continue
		}
		for _, tn := range n.Content {
			if tc, ok := p.parseTest(errs, r.name, tn, reg, catalog); ok {
				b.Tests = append(b.Tests, tc)
			}
		}
	}

	if err := errs.ToError(); err != nil {
		return nil, err
	}
	if b.Version == "" {
		b.Version = "sha256:" + hex.EncodeToString(hash.Sum(nil))[:12]
	}
	return b, nil
}

func (p *Parser) parseAttributes(errs *ErrorList, file string, n *yaml.Node, reg *attribute.Registry) {
	if n.Kind != yaml.SequenceNode {
		errs.AddError(ErrorTypeStructural, "attributes must be a list", loc(file, n))
		return
	}
	for _, an := range n.Content {
		if an.Kind != yaml.MappingNode {
			errs.AddError(ErrorTypeStructural, "attribute must be a mapping", loc(file, an))
			continue
		}
		checkKeys(errs, file, an, attributeKeys)

		var raw struct {
			Name        string   `yaml:"name"`
			Kind        string   `yaml:"kind"`
			Values      []string `yaml:"values"`
			Unit        string   `yaml:"unit"`
			Discrete    bool     `yaml:"discrete"`
			Description string   `yaml:"description"`
		}
		if err := an.Decode(&raw); err != nil {
			errs.AddCause(ErrorTypeStructural, err, loc(file, an))
			continue
		}

		err := reg.Register(attribute.Attribute{
			Name:        raw.Name,
			Kind:        attribute.Kind(strings.ToLower(raw.Kind)),
			Values:      raw.Values,
			Unit:        raw.Unit,
			Discrete:    raw.Discrete,
			Description: raw.Description,
		})
		if err != nil {
			errs.AddCause(ErrorTypeSemantic, err, loc(file, an))
		}
	}
}

func (p *Parser) parseCategories(errs *ErrorList, file string, n *yaml.Node, ext policy.Catalog) {
	if n.Kind != yaml.MappingNode {
		errs.AddError(ErrorTypeStructural, "categories must be a mapping of category name to declaration", loc(file, n))
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := policy.Category(n.Content[i].Value)
		cn := n.Content[i+1]
		if cn.Kind != yaml.MappingNode {
			errs.AddError(ErrorTypeStructural, fmt.Sprintf("category %s must be a mapping", name), loc(file, cn))
			continue
		}
		checkKeys(errs, file, cn, []string{"description", "fields"})

		spec := ext[name]
		spec.Name = name
		if spec.Fields == nil {
			spec.Fields = policy.FieldTable{}
		}
		if d := lookup(cn, "description"); d != nil {
			spec.Description = d.Value
		}

		fn := lookup(cn, "fields")
		if fn != nil && fn.Kind != yaml.MappingNode {
			errs.AddError(ErrorTypeStructural, "fields must be a mapping", loc(file, fn))
			fn = nil
		}
		if fn != nil {
			for j := 0; j+1 < len(fn.Content); j += 2 {
				fieldName := fn.Content[j].Value
				if fs, ok := p.parseField(errs, file, fn.Content[j+1]); ok {
					spec.Fields[fieldName] = fs
				}
			}
		}
		ext[name] = spec
	}
}

func (p *Parser) parseField(errs *ErrorList, file string, n *yaml.Node) (policy.FieldSpec, bool) {
	if n.Kind != yaml.MappingNode {
		errs.AddError(ErrorTypeStructural, "field declaration must be a mapping", loc(file, n))
		return policy.FieldSpec{}, false
	}
	checkKeys(errs, file, n, fieldKeys)

	var fs policy.FieldSpec
	ok := true

	kn := lookup(n, "kind")
	if kn == nil {
		errs.AddError(ErrorTypeStructural, "field kind is required", loc(file, n))
		return fs, false
	}
	kind, err := policy.ParseFieldKind(kn.Value)
	if err != nil {
		errs.Add(&Error{Type: ErrorTypeSemantic, Message: err.Error(), Location: loc(file, kn), Suggestion: "valid kinds: number, boolean, enum, set", Cause: err})
		return fs, false
	}
	fs.Kind = kind

	if sn := lookup(n, "strategy"); sn != nil {
		s, err := policy.ParseMergeStrategy(sn.Value)
		if err != nil {
			errs.Add(&Error{Type: ErrorTypeSemantic, Message: err.Error(), Location: loc(file, sn), Suggestion: "valid strategies: max, min, sum, first, last, union", Cause: err})
			ok = false
		}
		fs.Strategy = s
	}
	if dn := lookup(n, "default"); dn != nil {
		v, err := decodeValue(dn)
		if err != nil {
			errs.AddCause(ErrorTypeSemantic, err, loc(file, dn))
			ok = false
		}
		fs.Default = v
	}
	if d := lookup(n, "description"); d != nil {
		fs.Description = d.Value
	}
	return fs, ok
}

func (p *Parser) parsePolicy(errs *ErrorList, file string, n *yaml.Node, reg *attribute.Registry, catalog policy.Catalog) (*policy.Policy, bool) {
	if n.Kind != yaml.MappingNode {
		errs.AddError(ErrorTypeStructural, "policy must be a mapping", loc(file, n))
		return nil, false
	}
	checkKeys(errs, file, n, policyKeys)
	before := errs.Count()

	pol := &policy.Policy{
		Status: policy.StatusPublished,
		Origin: loc(file, n).String(),
	}

	idNode := lookup(n, "id")
	if idNode == nil || strings.TrimSpace(idNode.Value) == "" {
		errs.AddError(ErrorTypeStructural, "policy id is required", loc(file, n))
	} else {
		pol.ID = idNode.Value
	}

	if cn := lookup(n, "category"); cn == nil {
		errs.AddError(ErrorTypeStructural, "policy category is required", loc(file, n))
	} else {
		pol.Category = policy.Category(cn.Value)
		if _, ok := catalog.Get(pol.Category); !ok {
			errs.Add(&Error{
				Type:       ErrorTypeSemantic,
				Message:    fmt.Sprintf("unknown category %q", cn.Value),
				Location:   loc(file, cn),
				Suggestion: suggestName(cn.Value, categoryNames(catalog)),
				Cause:      policy.ErrUnknownCategory,
			})
		}
	}

	if sn := lookup(n, "status"); sn != nil {
		st, err := policy.ParseStatus(sn.Value)
		if err != nil {
			errs.Add(&Error{Type: ErrorTypeSemantic, Message: err.Error(), Location: loc(file, sn), Suggestion: "valid statuses: draft, published, archived", Cause: err})
		}
		pol.Status = st
	}

	if pn := lookup(n, "priority"); pn != nil {
		var prio int
		if err := pn.Decode(&prio); err != nil {
			errs.AddError(ErrorTypeStructural, fmt.Sprintf("priority must be an integer, got %q", pn.Value), loc(file, pn))
		} else {
			pol.Priority = policy.Priority(prio)
		}
	}

	if d := lookup(n, "description"); d != nil {
		pol.Description = d.Value
	}
	if j := lookup(n, "jurisdiction"); j != nil {
		pol.Jurisdiction = j.Value
	}

	if wn := lookup(n, "when"); wn != nil {
		if cond, ok := p.parseCondition(errs, file, wn, reg, 1); ok {
			pol.Condition = cond
		}
	}

	if on := lookup(n, "output"); on != nil {
		pol.Output = p.parseOutput(errs, file, on)
	}

	if mn := lookup(n, "merge"); mn != nil {
		pol.MergeStrategies = p.parseMerge(errs, file, mn)
	}

	if errs.Count() > before {
		return nil, false
	}

	// remaining checks need the catalog: field declarations and kinds
	if err := pol.Validate(catalog, nil); err != nil {
		errs.AddCause(ErrorTypeSemantic, err, loc(file, n))
		return nil, false
	}
	return pol, true
}

func (p *Parser) parseOutput(errs *ErrorList, file string, n *yaml.Node) policy.OutputRecord {
	if n.Kind != yaml.MappingNode {
		errs.AddError(ErrorTypeStructural, "output must be a mapping of field to value", loc(file, n))
		return nil
	}
	out := policy.OutputRecord{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		v, err := decodeValue(n.Content[i+1])
		if err != nil {
			errs.AddCause(ErrorTypeSemantic, fmt.Errorf("output %s: %w", n.Content[i].Value, err), loc(file, n.Content[i+1]))
			continue
		}
		out[n.Content[i].Value] = v
	}
	return out
}

func (p *Parser) parseMerge(errs *ErrorList, file string, n *yaml.Node) map[string]policy.MergeStrategy {
	if n.Kind != yaml.MappingNode {
		errs.AddError(ErrorTypeStructural, "merge must be a mapping of field to strategy", loc(file, n))
		return nil
	}
	out := make(map[string]policy.MergeStrategy)
	for i := 0; i+1 < len(n.Content); i += 2 {
		s, err := policy.ParseMergeStrategy(n.Content[i+1].Value)
		if err != nil {
			errs.Add(&Error{
				Type:       ErrorTypeSemantic,
				Message:    err.Error(),
				Location:   loc(file, n.Content[i+1]),
				Suggestion: suggestName(n.Content[i+1].Value, []string{"first", "last", "max", "min", "sum", "union"}),
				Cause:      err,
			})
			continue
		}
		out[n.Content[i].Value] = s
	}
	return out
}

// parseCondition builds a condition from one of:
//
//	[c1, c2]                      all of the list
//	{all: [...]} / {any: [...]}   group
//	{attr: a, op: o, value: v}    clause
func (p *Parser) parseCondition(errs *ErrorList, file string, n *yaml.Node, reg *attribute.Registry, depth int) (condition.Condition, bool) {
	if depth > p.maxDepth {
		errs.AddError(ErrorTypeStructural, fmt.Sprintf("condition nesting exceeds maximum depth %d", p.maxDepth), loc(file, n))
		return condition.Condition{}, false
	}

	switch n.Kind {
	case yaml.SequenceNode:
		return p.parseGroup(errs, file, condition.LogicAll, n, reg, depth)
	case yaml.MappingNode:
	default:
		errs.AddError(ErrorTypeStructural, "condition must be a clause, a list, or an all/any group", loc(file, n))
		return condition.Condition{}, false
	}

	if len(n.Content) == 2 && (n.Content[0].Value == "all" || n.Content[0].Value == "any") {
		logic := condition.Logic(n.Content[0].Value)
		children := n.Content[1]
		if children.Kind != yaml.SequenceNode {
			errs.AddError(ErrorTypeStructural, fmt.Sprintf("%s must be a list of conditions", logic), loc(file, children))
			return condition.Condition{}, false
		}
		return p.parseGroup(errs, file, logic, children, reg, depth)
	}

	if lookup(n, "attr") == nil {
		errs.Add(&Error{
			Type:       ErrorTypeStructural,
			Message:    "condition mapping must be a clause or a single all/any group",
			Location:   loc(file, n),
			Suggestion: "use {attr: width_ft, op: gt, value: 12} or {all: [...]}",
		})
		return condition.Condition{}, false
	}
	c, ok := p.parseClause(errs, file, n, reg)
	if !ok {
		return condition.Condition{}, false
	}
	return condition.Leaf(c), true
}

func (p *Parser) parseGroup(errs *ErrorList, file string, logic condition.Logic, n *yaml.Node, reg *attribute.Registry, depth int) (condition.Condition, bool) {
	children := make([]condition.Condition, 0, len(n.Content))
	ok := true
	for _, cn := range n.Content {
		c, cok := p.parseCondition(errs, file, cn, reg, depth+1)
		if !cok {
			ok = false
			continue
		}
		children = append(children, c)
	}
	return condition.Group(logic, children...), ok
}

func (p *Parser) parseClause(errs *ErrorList, file string, n *yaml.Node, reg *attribute.Registry) (condition.Clause, bool) {
	checkKeys(errs, file, n, clauseKeys)

	an, on, vn := lookup(n, "attr"), lookup(n, "op"), lookup(n, "value")
	if on == nil || vn == nil {
		errs.AddError(ErrorTypeStructural, "clause needs attr, op and value", loc(file, n))
		return condition.Clause{}, false
	}

	op, err := attribute.ParseOperator(on.Value)
	if err != nil {
		errs.Add(&Error{Type: ErrorTypeSemantic, Message: err.Error(), Location: loc(file, on), Suggestion: operatorHint(reg, an.Value), Cause: err})
		return condition.Clause{}, false
	}

	operand, err := decodeOperand(op, vn)
	if err != nil {
		errs.AddCause(ErrorTypeSemantic, err, loc(file, vn))
		return condition.Clause{}, false
	}

	c, err := condition.NewClause(an.Value, op, operand, reg)
	if err != nil {
		e := &Error{Type: ErrorTypeSemantic, Message: err.Error(), Location: loc(file, n), Cause: err}
		if _, known := reg.Lookup(an.Value); !known {
			e.Location = loc(file, an)
			e.Suggestion = suggestName(an.Value, reg.SortedNames())
		} else {
			e.Suggestion = operatorHint(reg, an.Value)
		}
		errs.Add(e)
		return condition.Clause{}, false
	}
	return c, true
}

func (p *Parser) parseTest(errs *ErrorList, file string, n *yaml.Node, reg *attribute.Registry, catalog policy.Catalog) (TestCase, bool) {
	if n.Kind != yaml.MappingNode {
		errs.AddError(ErrorTypeStructural, "test must be a mapping", loc(file, n))
		return TestCase{}, false
	}
	checkKeys(errs, file, n, testKeys)
	before := errs.Count()

	tc := TestCase{Location: loc(file, n)}
	if nn := lookup(n, "name"); nn != nil {
		tc.Name = nn.Value
	} else {
		tc.Name = fmt.Sprintf("test at line %d", n.Line)
	}

	cn := lookup(n, "category")
	if cn == nil {
		errs.AddError(ErrorTypeStructural, "test category is required", loc(file, n))
	} else {
		tc.Category = policy.Category(cn.Value)
		if _, ok := catalog.Get(tc.Category); !ok {
			errs.Add(&Error{Type: ErrorTypeSemantic, Message: fmt.Sprintf("unknown category %q", cn.Value), Location: loc(file, cn), Suggestion: suggestName(cn.Value, categoryNames(catalog))})
		}
	}

	if en := lookup(n, "expect"); en != nil {
		if en.Kind != yaml.MappingNode {
			errs.AddError(ErrorTypeStructural, "expect must be a mapping", loc(file, en))
		} else {
			checkKeys(errs, file, en, expectKeys)
			if mn := lookup(en, "matched"); mn != nil {
				tc.Expect.Matched = []string{}
				if err := mn.Decode(&tc.Expect.Matched); err != nil {
					errs.AddError(ErrorTypeStructural, "expect.matched must be a list of policy ids", loc(file, mn))
				}
			}
			if on := lookup(en, "output"); on != nil {
				tc.Expect.Output = p.parseOutput(errs, file, on)
			}
			if xn := lookup(en, "error"); xn != nil {
				if err := xn.Decode(&tc.Expect.Error); err != nil {
					errs.AddError(ErrorTypeStructural, "expect.error must be a boolean", loc(file, xn))
				}
			}
		}
	}

	raw := map[string]any{}
	if fn := lookup(n, "fact"); fn != nil {
		if err := fn.Decode(&raw); err != nil {
			errs.AddError(ErrorTypeStructural, "fact must be a mapping of attribute to value", loc(file, fn))
		} else {
			var fact condition.Fact
			var ferr error
			if tc.Expect.Error {
				// the test expects evaluation to fail, so keep values the
				// registry would reject
				fact, ferr = LooseFact(raw)
			} else {
				fact, ferr = ParseFact(raw, reg)
			}
			if ferr != nil {
				errs.AddCause(ErrorTypeSemantic, ferr, loc(file, fn))
			}
			tc.Fact = fact
		}
	}

	return tc, errs.Count() == before
}

func decodeValue(n *yaml.Node) (value.Value, error) {
	var raw any
	if err := n.Decode(&raw); err != nil {
		return value.Value{}, err
	}
	return value.FromAny(raw)
}

func decodeOperand(op attribute.Operator, n *yaml.Node) (value.Value, error) {
	if op != attribute.OpBetween {
		return decodeValue(n)
	}
	var bounds []float64
	if err := n.Decode(&bounds); err != nil || len(bounds) != 2 {
		return value.Value{}, fmt.Errorf("%w: between needs a two-element [lo, hi] list", condition.ErrMalformedValue)
	}
	return value.Range(bounds[0], bounds[1]), nil
}

func operatorHint(reg *attribute.Registry, attr string) string {
	ops, err := reg.LegalOperators(attr)
	if err != nil {
		return ""
	}
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = string(op)
	}
	return "valid operators: " + strings.Join(names, ", ")
}

func categoryNames(c policy.Catalog) []string {
	cats := c.Categories()
	out := make([]string, len(cats))
	for i, cat := range cats {
		out[i] = string(cat)
	}
	return out
}

// lookup returns the value node for key in a mapping node.
func lookup(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// checkKeys reports keys of a mapping node outside allowed.
func checkKeys(errs *ErrorList, file string, n *yaml.Node, allowed []string) {
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		if !contains(allowed, k.Value) {
			sorted := append([]string(nil), allowed...)
			sort.Strings(sorted)
			errs.Add(&Error{
				Type:       ErrorTypeStructural,
				Message:    fmt.Sprintf("unknown key %q", k.Value),
				Location:   loc(file, k),
				Suggestion: suggestName(k.Value, sorted),
			})
		}
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func loc(file string, n *yaml.Node) Location {
	if n == nil {
		return Location{File: file}
	}
	return Location{File: file, Line: n.Line, Column: n.Column}
}
