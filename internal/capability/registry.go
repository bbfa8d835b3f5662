package capability

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Registry is the immutable set of capabilities known to the engine. It is
// built once at startup and shared read-only by every concurrent diagnosis.
type Registry struct {
	byName      map[string]Capability
	schemas     map[string]*gojsonschema.Schema
	descriptors []Descriptor
}

// NewRegistry compiles the argument schema of every capability. Duplicate or
// empty names are rejected.
func NewRegistry(caps ...Capability) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]Capability, len(caps)),
		schemas: make(map[string]*gojsonschema.Schema, len(caps)),
	}
	for _, c := range caps {
		d := c.Descriptor()
		if d.Name == "" {
			return nil, fmt.Errorf("capability name is required")
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate capability %q", d.Name)
		}

		params := d.Parameters
		if params == nil {
			params = map[string]interface{}{"type": "object"}
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(params))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %q: %w", d.Name, err)
		}

		r.byName[d.Name] = c
		r.schemas[d.Name] = schema
		r.descriptors = append(r.descriptors, d)
	}
	return r, nil
}

// Lookup finds a capability by exact, case-sensitive name.
func (r *Registry) Lookup(name string) (Capability, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns a copy of the descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Validate checks args against the named capability's schema. The returned
// error is an *AdapterError of kind validation.
func (r *Registry) Validate(name string, args map[string]interface{}) error {
	schema, ok := r.schemas[name]
	if !ok {
		return validationError(name, "capability is not registered")
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return validationError(name, "arguments could not be validated: %v", err)
	}
	if res.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return validationError(name, "invalid arguments: %s", strings.Join(msgs, "; "))
}
