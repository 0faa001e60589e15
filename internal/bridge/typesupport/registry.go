// Package typesupport resolves message type names to generic type handles.
//
// The bridge never decodes payloads; a TypeSupport handle only proves the
// type is known to the process and carries metadata the fabric needs to
// advertise endpoints. Types can be registered explicitly, and any protobuf
// message linked into the binary is resolvable by its full name through the
// global protobuf registry.
package typesupport

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	errspkg "github.com/openrelay/domainbridge/internal/bridge/errors"
)

// TypeSupport is the type handle attached to a bridged topic. The zero value
// is not valid; obtain handles through Lookup.
type TypeSupport struct {
	// Name is the full message type name, e.g. "example.msg.BasicTypes".
	Name string

	// MaxSerializedSize bounds the payload size in bytes, 0 = unbounded.
	MaxSerializedSize int64

	// Proto is set when the handle was resolved from the protobuf registry.
	Proto protoreflect.MessageType
}

// Registry maps type names to TypeSupport handles.
type Registry struct {
	mu    sync.RWMutex
	types map[string]TypeSupport

	// ProtoFallback enables resolution against protoregistry.GlobalTypes for
	// names without an explicit registration.
	ProtoFallback bool
}

// DefaultRegistry is the process-wide type support registry.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry with protobuf fallback enabled.
func NewRegistry() *Registry {
	return &Registry{
		types:         make(map[string]TypeSupport),
		ProtoFallback: true,
	}
}

// Register adds a type handle under its name, replacing any previous entry.
func (r *Registry) Register(ts TypeSupport) error {
	if ts.Name == "" {
		return errspkg.ErrTypeNameRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[ts.Name] = ts
	return nil
}

// Lookup resolves a type name to its handle. Explicit registrations win over
// the protobuf fallback. Returns ErrUnknownMessageType when the name is not
// resolvable either way.
func (r *Registry) Lookup(name string) (TypeSupport, error) {
	if name == "" {
		return TypeSupport{}, errspkg.ErrTypeNameRequired
	}

	r.mu.RLock()
	ts, ok := r.types[name]
	fallback := r.ProtoFallback
	r.mu.RUnlock()
	if ok {
		return ts, nil
	}

	if fallback {
		mt, err := protoregistry.GlobalTypes.FindMessageByName(protoreflect.FullName(name))
		if err == nil {
			return TypeSupport{Name: name, Proto: mt}, nil
		}
	}

	return TypeSupport{}, fmt.Errorf("%w: %q", errspkg.ErrUnknownMessageType, name)
}

// Has reports whether the name resolves without returning the handle.
func (r *Registry) Has(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Names returns the explicitly registered type names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return names
}

// Register adds a type handle to the default registry.
func Register(ts TypeSupport) error {
	return DefaultRegistry.Register(ts)
}

// Lookup resolves a type name using the default registry.
func Lookup(name string) (TypeSupport, error) {
	return DefaultRegistry.Lookup(name)
}
