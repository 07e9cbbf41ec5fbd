package volume

import (
	"github.com/sirupsen/logrus"

	"github.com/keks/bfs"
)

// Options configures Format and Mount. Mount only uses Log; the geometry
// of an existing image is read from the image.
type Options struct {
	BlockSize     int
	Blocks        int
	CatalogBlocks int

	Log logrus.FieldLogger
}

// Option changes one field of Options.
type Option func(*Options)

// DefaultOptions returns 4096 blocks of 512 bytes with 64 catalog blocks,
// enough for the block maps of a completely full image.
func DefaultOptions() *Options {
	return &Options{
		BlockSize:     512,
		Blocks:        4096,
		CatalogBlocks: 64,
		Log:           bfs.DiscardLogger(),
	}
}

// WithBlockSize sets the block size. It must be a power of two of at
// least 64 bytes.
func WithBlockSize(n int) Option {
	return func(o *Options) {
		o.BlockSize = n
	}
}

// WithBlocks sets the total number of blocks in the image, including the
// metadata and catalog blocks.
func WithBlocks(n int) Option {
	return func(o *Options) {
		o.Blocks = n
	}
}

// WithCatalogBlocks sets how many blocks hold the directory and inodes.
func WithCatalogBlocks(n int) Option {
	return func(o *Options) {
		o.CatalogBlocks = n
	}
}

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Options) {
		if log != nil {
			o.Log = log
		}
	}
}

func buildOptions(opts []Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}
