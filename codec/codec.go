package codec

import (
	"errors"
	"fmt"
)

// ErrUnknownFormat is returned when a storage format has no registered codec.
var ErrUnknownFormat = errors.New("codec: unknown storage format")

// Codec converts one batch of elements to and from the bytes of a single
// data file. A codec must round-trip a batch exactly, subject to its own
// type-fidelity limits.
type Codec[T any] interface {
	Encode(batch []T) ([]byte, error)
	Decode(data []byte) ([]T, error)
	// Extension is the data file name extension, without the dot.
	Extension() string
}

// Registry maps storage format names to codecs. Build one per dataset open;
// it is not shared process-wide.
type Registry[T any] struct {
	codecs map[string]Codec[T]
}

// NewRegistry returns a registry pre-populated with the json and msgpack
// codecs.
func NewRegistry[T any]() *Registry[T] {
	registry := &Registry[T]{codecs: map[string]Codec[T]{}}
	registry.Register(JSONFormat, JSON[T]{})
	registry.Register(MsgpackFormat, Msgpack[T]{})
	return registry
}

// Register adds or replaces a codec under the supplied format name.
func (r *Registry[T]) Register(name string, c Codec[T]) {
	r.codecs[name] = c
}

// Lookup returns the codec registered under name.
func (r *Registry[T]) Lookup(name string) (Codec[T], error) {
	c, ok := r.codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	return c, nil
}
