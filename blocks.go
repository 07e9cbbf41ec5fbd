package bfs // import "github.com/keks/bfs"

import (
	"io"
)

// Basic Types

// ReadWriterAt is both a ReaderAt and a WriterAt.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// Block Layer

// BlockID identifies a physical block in the image.
type BlockID uint64

// FBN is the zero-based index of a block within one file's byte stream.
type FBN int64

// FBNOf returns the file block that holds byte offset off.
func FBNOf(off int64, blockSize int) FBN {
	return FBN(off / int64(blockSize))
}

// BlockStore reads and writes whole blocks.
type BlockStore interface {
	BlockSize() int

	// ReadBlock fills dst with the contents of block id. A block that was
	// never written reads as zeros.
	ReadBlock(id BlockID, dst []byte) error

	// WriteBlock writes exactly one block.
	WriteBlock(id BlockID, src []byte) error
}

// Allocator hands out and takes back physical blocks.
type Allocator interface {
	Allocate() (BlockID, error)
	Free(BlockID) error
}

// Inode Layer

// InodeID identifies the metadata record of a file.
type InodeID uint32

// BlockMapper translates file blocks to physical blocks.
type BlockMapper interface {
	// MapBlock returns ErrNotMapped if fbn has no physical block yet.
	MapBlock(ino InodeID, fbn FBN) (BlockID, error)

	// ExtendBlock allocates a physical block and binds it to fbn.
	ExtendBlock(ino InodeID, fbn FBN) (BlockID, error)
}

// Sizer gets and sets the byte length of a file.
type Sizer interface {
	GetSize(ino InodeID) (int64, error)
	SetSize(ino InodeID, size int64) error
}

// File Layer

// Handle is returned by open and create and names one open-file-table entry.
type Handle int32

// Entry is the mutable state behind an open Handle.
type Entry struct {
	Inode  InodeID
	Cursor int64
}

// Resolver finds the open-file-table entry for a handle.
type Resolver interface {
	Resolve(h Handle) (*Entry, error)
}

// FileTable is everything the I/O engine needs to know about open files.
type FileTable interface {
	Resolver
	Sizer
}

// Whence selects what a seek offset is relative to.
type Whence int

const (
	// SeekSet positions relative to the start of the file.
	SeekSet Whence = iota

	// SeekCur positions relative to the current cursor.
	SeekCur

	// SeekEnd positions relative to the file size.
	SeekEnd
)

func (w Whence) String() string {
	switch w {
	case SeekSet:
		return "SET"
	case SeekCur:
		return "CUR"
	case SeekEnd:
		return "END"
	default:
		return "INVALID"
	}
}
