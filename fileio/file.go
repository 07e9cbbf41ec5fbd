package fileio

import (
	"fmt"
	"io"

	"github.com/keks/bfs"
)

// File is an io.ReadWriteSeeker over one open handle.
type File struct {
	e       *Engine
	h       bfs.Handle
	release func(bfs.Handle) error
}

var _ io.ReadWriteSeeker = (*File)(nil)

// NewFile wraps h. release is called by Close and may be nil.
func NewFile(e *Engine, h bfs.Handle, release func(bfs.Handle) error) *File {
	return &File{e: e, h: h, release: release}
}

// Handle returns the wrapped handle.
func (f *File) Handle() bfs.Handle {
	return f.h
}

// Read implements io.Reader. It returns io.EOF once the cursor is at or
// past the end of the file.
func (f *File) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n, err := f.e.Read(f.h, p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write implements io.Writer.
func (f *File) Write(p []byte) (int, error) {
	return f.e.Write(f.h, p)
}

// Seek implements io.Seeker. Like Engine.Seek it rejects negative offsets.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var w bfs.Whence
	switch whence {
	case io.SeekStart:
		w = bfs.SeekSet
	case io.SeekCurrent:
		w = bfs.SeekCur
	case io.SeekEnd:
		w = bfs.SeekEnd
	default:
		return 0, fmt.Errorf("seek handle %d: whence %d: %w", f.h, whence, bfs.ErrInvalidSeekMode)
	}

	if err := f.e.Seek(f.h, offset, w); err != nil {
		return 0, err
	}
	return f.e.Tell(f.h)
}

// Close releases the handle.
func (f *File) Close() error {
	if f.release == nil {
		return nil
	}
	return f.release(f.h)
}
