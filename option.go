package biglist

import (
	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/biglist/codec"
	"github.com/viant/biglist/lock"
)

const (
	defaultBatchSize         = 10000
	defaultWriterConcurrency = 4
	defaultReadConcurrency   = 4
)

type options struct {
	fs                afs.Service
	batchSize         int
	format            string
	registry          interface{} // *codec.Registry[T]; asserted at open
	readConcurrency   int
	writerConcurrency int
	dumper            *Dumper
	lock              lock.Lock
	logger            *logrus.Logger
}

// Option configures a Biglist at New or Open time.
type Option func(*options)

// WithService sets the storage service; defaults to afs.New().
func WithService(fs afs.Service) Option {
	return func(o *options) { o.fs = fs }
}

// WithBatchSize sets the maximum number of elements per data file. Only
// honored by New; Open takes the batch size from the durable index.
func WithBatchSize(size int) Option {
	return func(o *options) { o.batchSize = size }
}

// WithFormat selects the storage format for New; defaults to json.
func WithFormat(name string) Option {
	return func(o *options) { o.format = name }
}

// WithRegistry supplies the codec registry consulted for the dataset's
// storage format. Its element type must match the list's.
func WithRegistry[T any](registry *codec.Registry[T]) Option {
	return func(o *options) { o.registry = registry }
}

// WithReadConcurrency bounds the prefetch fan-out of full iteration.
func WithReadConcurrency(n int) Option {
	return func(o *options) { o.readConcurrency = n }
}

// WithWriterConcurrency bounds the in-flight jobs of the list's own Dumper.
// Ignored when WithDumper is used.
func WithWriterConcurrency(n int) Option {
	return func(o *options) { o.writerConcurrency = n }
}

// WithDumper shares a Dumper across lists instead of creating one per list.
// Only the in-flight bound is shared; each list tracks and reconciles its own
// submissions.
func WithDumper(d *Dumper) Option {
	return func(o *options) { o.dumper = d }
}

// WithLock overrides the lock guarding the durable index; defaults to a
// lease lock stored next to the index record.
func WithLock(l lock.Lock) Option {
	return func(o *options) { o.lock = l }
}

// WithLogger sets the logger; defaults to logrus.StandardLogger().
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func newOptions(opts ...Option) *options {
	o := &options{
		batchSize:         defaultBatchSize,
		format:            codec.JSONFormat,
		readConcurrency:   defaultReadConcurrency,
		writerConcurrency: defaultWriterConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fs == nil {
		o.fs = afs.New()
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}
	return o
}
