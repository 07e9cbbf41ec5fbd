package blkfile

import (
	"errors"
	"io"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"
)

// testReadWriterAt is an in-memory image that grows on write.
type testReadWriterAt struct {
	buf []byte
}

func (rwa *testReadWriterAt) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(rwa.buf)) {
		return 0, io.EOF
	}

	n := copy(buf, rwa.buf[off:])
	if n < len(buf) {
		return n, io.EOF
	}

	return n, nil
}

func (rwa *testReadWriterAt) WriteAt(data []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.ErrShortWrite
	}

	if end := int(off) + len(data); end > len(rwa.buf) {
		rwa.buf = append(rwa.buf, make([]byte, end-len(rwa.buf))...)
	}

	return copy(rwa.buf[off:], data), nil
}

func TestBillyFile(t *testing.T) {
	fs := memfs.New()
	f, err := fs.Create("image")
	require.NoError(t, err)
	defer f.Close()

	rwa := BillyFile(f)

	n, err := rwa.WriteAt([]byte("world"), 6)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	n, err = rwa.WriteAt([]byte("hello "), 0)
	require.NoError(t, err)
	require.Equal(t, 6, n)

	buf := make([]byte, 11)
	n, err = rwa.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.Equal(t, "hello world", string(buf))

	n, err = rwa.ReadAt(buf, 8)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 3, n)
	require.Equal(t, "rld", string(buf[:n]))
}

func TestBlocksOnBilly(t *testing.T) {
	fs := memfs.New()
	f, err := fs.Create("image")
	require.NoError(t, err)
	defer f.Close()

	blks, err := New(BillyFile(f), Config{BlockSize: 128, Blocks: 16, CatalogBlocks: 1})
	require.NoError(t, err)

	id, err := blks.Allocate()
	require.NoError(t, err)

	data := make([]byte, 128)
	copy(data, "on billy")
	require.NoError(t, blks.WriteBlock(id, data))

	reopened, err := Open(BillyFile(f), nil)
	require.NoError(t, err)
	require.Equal(t, 128, reopened.BlockSize())

	got := make([]byte, 128)
	require.NoError(t, reopened.ReadBlock(id, got))
	require.Equal(t, data, got)
}

var errDisk = errors.New("disk on fire")

// faultyReadWriterAt is a testReadWriterAt whose operations can be made to
// fail or to write short.
type faultyReadWriterAt struct {
	testReadWriterAt

	failRead   bool
	failWrite  bool
	shortWrite bool
}

func (rwa *faultyReadWriterAt) ReadAt(buf []byte, off int64) (int, error) {
	if rwa.failRead {
		return 0, errDisk
	}
	return rwa.testReadWriterAt.ReadAt(buf, off)
}

func (rwa *faultyReadWriterAt) WriteAt(data []byte, off int64) (int, error) {
	if rwa.failWrite {
		return 0, errDisk
	}
	if rwa.shortWrite && len(data) > 1 {
		return rwa.testReadWriterAt.WriteAt(data[:len(data)/2], off)
	}
	return rwa.testReadWriterAt.WriteAt(data, off)
}
