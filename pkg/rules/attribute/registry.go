package attribute

import (
	"sort"
	"sync"
)

// Registry holds the declared attributes. It is populated with Register and
// then sealed; a sealed registry never changes and is safe for concurrent
// readers.
type Registry struct {
	mu     sync.RWMutex
	attrs  map[string]Attribute
	order  []string
	sealed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{attrs: make(map[string]Attribute)}
}

// MustRegistry builds a sealed registry from attrs and panics on error.
// Intended for tests and static tables.
func MustRegistry(attrs ...Attribute) *Registry {
	r := NewRegistry()
	for _, a := range attrs {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
	r.Seal()
	return r
}

// Register adds an attribute.
func (r *Registry) Register(a Attribute) error {
	if err := a.validate(); err != nil {
		return &AttributeError{Name: a.Name, Cause: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return &AttributeError{Name: a.Name, Cause: ErrRegistrySealed}
	}
	if _, exists := r.attrs[a.Name]; exists {
		return &AttributeError{Name: a.Name, Cause: ErrDuplicateAttribute}
	}

	a.Values = append([]string(nil), a.Values...)
	r.attrs[a.Name] = a
	r.order = append(r.order, a.Name)
	return nil
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup returns the attribute registered under name.
func (r *Registry) Lookup(name string) (Attribute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.attrs[name]
	if ok {
		a.Values = append([]string(nil), a.Values...)
	}
	return a, ok
}

// LegalOperators returns the operators legal for the named attribute.
func (r *Registry) LegalOperators(name string) ([]Operator, error) {
	a, ok := r.Lookup(name)
	if !ok {
		return nil, &AttributeError{Name: name, Cause: ErrUnknownAttribute}
	}
	return a.LegalOperators(), nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// SortedNames returns the registered names in lexical order.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}

// Attributes returns every attribute in registration order.
func (r *Registry) Attributes() []Attribute {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Attribute, 0, len(r.order))
	for _, name := range r.order {
		a := r.attrs[name]
		a.Values = append([]string(nil), a.Values...)
		out = append(out, a)
	}
	return out
}

// Len returns the number of registered attributes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.attrs)
}
