package biglist

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/biglist/codec"
)

// FileReader is a lazy handle to one data file. Before Load it carries only
// the file URL and a codec, no open handles, so it is cheap to construct and
// to hand to another worker. The loaded batch is its only mutable state and
// can be discarded and re-loaded at will.
type FileReader[T any] struct {
	URL    string
	fs     afs.Service
	codec  codec.Codec[T]
	batch  []T
	loaded bool
}

// NewFileReader returns an unloaded reader for the data file at URL.
func NewFileReader[T any](fs afs.Service, URL string, c codec.Codec[T]) *FileReader[T] {
	return &FileReader[T]{URL: URL, fs: fs, codec: c}
}

// Load fetches and decodes the file. It is idempotent; a loaded reader is a
// no-op.
func (r *FileReader[T]) Load(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	data, err := r.fs.DownloadWithURL(ctx, r.URL)
	if err != nil {
		return fmt.Errorf("biglist: load data file %v: %w", r.URL, err)
	}
	batch, err := r.codec.Decode(data)
	if err != nil {
		return fmt.Errorf("biglist: decode data file %v: %w", r.URL, err)
	}
	r.batch = batch
	r.loaded = true
	return nil
}

// Release discards the loaded batch; a later access re-loads the file.
func (r *FileReader[T]) Release() {
	r.batch = nil
	r.loaded = false
}

// Len returns the number of elements in the file, loading it if needed.
func (r *FileReader[T]) Len(ctx context.Context) (int, error) {
	if err := r.Load(ctx); err != nil {
		return 0, err
	}
	return len(r.batch), nil
}

// At returns the element at position i within the file, loading it if needed.
func (r *FileReader[T]) At(ctx context.Context, i int) (T, error) {
	var zero T
	if err := r.Load(ctx); err != nil {
		return zero, err
	}
	if i < 0 || i >= len(r.batch) {
		return zero, fmt.Errorf("%w: %d of %d in %v", ErrIndexOutOfRange, i, len(r.batch), r.URL)
	}
	return r.batch[i], nil
}

// Batch returns the full ordered batch, loading it if needed.
func (r *FileReader[T]) Batch(ctx context.Context) ([]T, error) {
	if err := r.Load(ctx); err != nil {
		return nil, err
	}
	return r.batch, nil
}
