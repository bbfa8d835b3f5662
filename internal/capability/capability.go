// Package capability provides the read-only data-gathering operations the
// diagnostic loop can invoke: a Prometheus range query, a Loki log search and
// a Grafana dashboard link builder.
//
// Every capability publishes a Descriptor whose Parameters field is a JSON
// schema generated from the capability's argument struct. The Registry
// validates arguments against that schema before an adapter is ever called,
// so adapters only see well-typed input.
package capability

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies an adapter failure.
type ErrorKind string

const (
	// KindReachability means the backing service could not be reached or timed out.
	KindReachability ErrorKind = "reachability"
	// KindValidation means the arguments were rejected before any network call.
	KindValidation ErrorKind = "validation"
	// KindBackend means the backing service answered with an error.
	KindBackend ErrorKind = "backend"
)

// AdapterError is returned by every capability on failure.
type AdapterError struct {
	Kind       ErrorKind
	Capability string
	Err        error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Capability, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// IsKind reports whether err is an *AdapterError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

func validationError(name string, format string, args ...interface{}) error {
	return &AdapterError{Kind: KindValidation, Capability: name, Err: fmt.Errorf(format, args...)}
}

func reachabilityError(name string, err error) error {
	return &AdapterError{Kind: KindReachability, Capability: name, Err: err}
}

func backendError(name string, err error) error {
	return &AdapterError{Kind: KindBackend, Capability: name, Err: err}
}

// Descriptor is the static registry entry advertised to the reasoning backend.
type Descriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Capability is a named, schema-typed read-only operation.
type Capability interface {
	Descriptor() Descriptor
	Invoke(ctx context.Context, args map[string]interface{}) (string, error)
}

// Func adapts a plain function into a Capability. Tests use it to stand in
// for the production adapters.
type Func struct {
	Desc Descriptor
	Fn   func(ctx context.Context, args map[string]interface{}) (string, error)
}

func (f *Func) Descriptor() Descriptor { return f.Desc }

func (f *Func) Invoke(ctx context.Context, args map[string]interface{}) (string, error) {
	return f.Fn(ctx, args)
}
