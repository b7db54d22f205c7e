package biglist

import (
	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"github.com/viant/biglist/codec"
)

// FileSeq is an ordered, indexable view over the data files of a dataset:
// the authoritative table of contents for one snapshot of the index. Counts
// are O(1); readers are created fresh and unloaded on demand.
type FileSeq[T any] struct {
	fs      afs.Service
	baseURL string
	codec   codec.Codec[T]
	entries []FileEntry
}

// NewFileSeq builds a sequence over the supplied index entries.
func NewFileSeq[T any](fs afs.Service, baseURL string, c codec.Codec[T], entries []FileEntry) *FileSeq[T] {
	return &FileSeq[T]{fs: fs, baseURL: baseURL, codec: c, entries: entries}
}

// Len returns the number of data files.
func (s *FileSeq[T]) Len() int { return len(s.entries) }

// NumDataItems returns the total element count across all files.
func (s *FileSeq[T]) NumDataItems() int64 {
	if len(s.entries) == 0 {
		return 0
	}
	return s.entries[len(s.entries)-1].Cum
}

// Entry returns the (name, count, cumcount) triple of file i.
func (s *FileSeq[T]) Entry(i int) FileEntry { return s.entries[i] }

// Reader returns a fresh, unloaded reader for file i.
func (s *FileSeq[T]) Reader(i int) *FileReader[T] {
	return NewFileReader(s.fs, url.Join(s.baseURL, s.entries[i].Name), s.codec)
}
