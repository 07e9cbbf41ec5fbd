// Package fileio translates byte-range reads, writes and seeks on an open
// file into whole-block operations.
//
// Every touched block goes through one block-sized staging buffer that
// lives for a single call. Writes are read-modify-write so the parts of a
// block outside the written range survive. Blocks are allocated lazily,
// only for the file blocks a write actually touches.
package fileio

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/keks/bfs"
)

// Engine implements seek, tell, size, read and write on open handles.
// It is not safe for concurrent use.
type Engine struct {
	files  bfs.FileTable
	mapper bfs.BlockMapper
	store  bfs.BlockStore

	log logrus.FieldLogger
}

// New returns an engine over the given collaborators. log may be nil.
func New(files bfs.FileTable, mapper bfs.BlockMapper, store bfs.BlockStore, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = bfs.DiscardLogger()
	}

	return &Engine{
		files:  files,
		mapper: mapper,
		store:  store,
		log:    log,
	}
}

// Seek moves the cursor of h. Negative offsets are rejected in every mode,
// so SeekCur can only move forward. Seeking past the end of the file is
// allowed.
func (e *Engine) Seek(h bfs.Handle, offset int64, whence bfs.Whence) error {
	if offset < 0 {
		return fmt.Errorf("seek handle %d: offset %d: %w", h, offset, bfs.ErrInvalidOffset)
	}

	ent, err := e.files.Resolve(h)
	if err != nil {
		return err
	}

	return e.seek(h, ent, offset, whence)
}

func (e *Engine) seek(h bfs.Handle, ent *bfs.Entry, offset int64, whence bfs.Whence) error {
	var base int64
	switch whence {
	case bfs.SeekSet:
	case bfs.SeekCur:
		base = ent.Cursor
	case bfs.SeekEnd:
		size, err := e.files.GetSize(ent.Inode)
		if err != nil {
			return err
		}
		base = size
	default:
		return fmt.Errorf("seek handle %d: whence %d: %w", h, whence, bfs.ErrInvalidSeekMode)
	}

	if base > math.MaxInt64-offset {
		return fmt.Errorf("seek handle %d: %d+%d overflows: %w", h, base, offset, bfs.ErrInvalidOffset)
	}

	ent.Cursor = base + offset

	e.log.WithFields(logrus.Fields{
		"handle": h,
		"whence": whence,
		"cursor": ent.Cursor,
	}).Debug("seek")

	return nil
}

// Tell returns the cursor of h.
func (e *Engine) Tell(h bfs.Handle) (int64, error) {
	ent, err := e.files.Resolve(h)
	if err != nil {
		return 0, err
	}
	return ent.Cursor, nil
}

// Size returns the size of the file open on h.
func (e *Engine) Size(h bfs.Handle) (int64, error) {
	ent, err := e.files.Resolve(h)
	if err != nil {
		return 0, err
	}
	return e.files.GetSize(ent.Inode)
}

// span is the byte range [lo, hi) of one file block that a request covers.
type span struct {
	fbn    bfs.FBN
	lo, hi int
}

// spans splits count bytes starting at off into per-block ranges. count
// must be positive.
func spans(off, count int64, blockSize int) []span {
	bs := int64(blockSize)
	first := bfs.FBNOf(off, blockSize)
	last := bfs.FBNOf(off+count-1, blockSize)

	out := make([]span, 0, last-first+1)
	for fbn := first; fbn <= last; fbn++ {
		s := span{fbn: fbn, lo: 0, hi: blockSize}
		if fbn == first {
			s.lo = int(off % bs)
		}
		if fbn == last {
			s.hi = int((off+count-1)%bs) + 1
		}
		out = append(out, s)
	}

	return out
}

// Read copies up to len(p) bytes from the cursor of h into p and advances
// the cursor by the number copied. It stops at the end of the file, so the
// count may be short; a read at or past the end returns 0 and no error.
func (e *Engine) Read(h bfs.Handle, p []byte) (int, error) {
	ent, err := e.files.Resolve(h)
	if err != nil {
		return 0, err
	}

	size, err := e.files.GetSize(ent.Inode)
	if err != nil {
		return 0, err
	}

	log := e.log.WithFields(logrus.Fields{
		"handle": h,
		"inode":  ent.Inode,
		"cursor": ent.Cursor,
	})

	count := int64(len(p))
	if rem := size - ent.Cursor; rem < count {
		count = rem
	}
	if count <= 0 {
		log.WithField("n", 0).Debug("read")
		return 0, nil
	}

	buf := make([]byte, e.store.BlockSize())

	var done int
	for _, s := range spans(ent.Cursor, count, len(buf)) {
		if err := e.stage(ent.Inode, s.fbn, buf); err != nil {
			return 0, fmt.Errorf("read handle %d fbn %d: %w", h, s.fbn, err)
		}
		done += copy(p[done:], buf[s.lo:s.hi])
	}

	if err := e.seek(h, ent, int64(done), bfs.SeekCur); err != nil {
		return 0, err
	}

	log.WithField("n", done).Debug("read")
	return done, nil
}

// stage loads block fbn of ino into buf. An unmapped block reads as zeros.
func (e *Engine) stage(ino bfs.InodeID, fbn bfs.FBN, buf []byte) error {
	clear(buf)

	id, err := e.mapper.MapBlock(ino, fbn)
	if errors.Is(err, bfs.ErrNotMapped) {
		return nil
	}
	if err != nil {
		return err
	}

	return e.store.ReadBlock(id, buf)
}

// Write copies all of p into the file at the cursor of h, allocating
// blocks as needed, grows the file if the write ends past its size and
// advances the cursor by len(p). It either writes everything or fails;
// blocks committed before a failure are not rolled back.
func (e *Engine) Write(h bfs.Handle, p []byte) (int, error) {
	ent, err := e.files.Resolve(h)
	if err != nil {
		return 0, err
	}

	log := e.log.WithFields(logrus.Fields{
		"handle": h,
		"inode":  ent.Inode,
		"cursor": ent.Cursor,
	})

	if len(p) == 0 {
		log.WithField("n", 0).Debug("write")
		return 0, nil
	}

	size, err := e.files.GetSize(ent.Inode)
	if err != nil {
		return 0, err
	}

	if ent.Cursor > math.MaxInt64-int64(len(p)) {
		return 0, fmt.Errorf("write handle %d: cursor %d: %w", h, ent.Cursor, bfs.ErrInvalidOffset)
	}

	buf := make([]byte, e.store.BlockSize())

	var done int
	for _, s := range spans(ent.Cursor, int64(len(p)), len(buf)) {
		id, err := e.mapper.MapBlock(ent.Inode, s.fbn)
		if errors.Is(err, bfs.ErrNotMapped) {
			id, err = e.mapper.ExtendBlock(ent.Inode, s.fbn)
		}
		if err != nil {
			return 0, fmt.Errorf("write handle %d fbn %d: %w", h, s.fbn, err)
		}

		if err := e.store.ReadBlock(id, buf); err != nil {
			return 0, fmt.Errorf("write handle %d fbn %d: %w", h, s.fbn, err)
		}

		done += copy(buf[s.lo:s.hi], p[done:])

		if err := e.store.WriteBlock(id, buf); err != nil {
			return 0, fmt.Errorf("write handle %d fbn %d: %w", h, s.fbn, err)
		}
	}

	if end := ent.Cursor + int64(len(p)); end > size {
		if err := e.files.SetSize(ent.Inode, end); err != nil {
			return 0, err
		}
	}

	if err := e.seek(h, ent, int64(len(p)), bfs.SeekCur); err != nil {
		return 0, err
	}

	log.WithField("n", done).Debug("write")
	return len(p), nil
}
