package fileio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keks/bfs"
)

type fixture struct {
	e *Engine
	d *fakeDisk
	h bfs.Handle
}

func newFixture(bs, capacity int) *fixture {
	d := newFakeDisk(bs, capacity)
	return &fixture{
		e: New(d, d, d, nil),
		d: d,
		h: d.open(1),
	}
}

type op interface {
	Do(*testing.T, *fixture)
}

type writeOp struct {
	data []byte

	expErr error
}

func (op writeOp) Do(t *testing.T, fx *fixture) {
	n, err := fx.e.Write(fx.h, op.data)
	t.Logf("writeOp, n: %d, err: %v", n, err)

	if op.expErr == nil {
		require.NoError(t, err)
		require.Equal(t, len(op.data), n)
	} else {
		require.ErrorIs(t, err, op.expErr)
		require.Zero(t, n)
	}
}

type readOp struct {
	readlen int

	exp    []byte
	expErr error
}

func (op readOp) Do(t *testing.T, fx *fixture) {
	buf := make([]byte, op.readlen)
	n, err := fx.e.Read(fx.h, buf)
	t.Logf("readOp, n: %d, err: %v", n, err)

	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)
		return
	}

	require.NoError(t, err)
	require.Equal(t, len(op.exp), n)
	require.True(t, bytes.Equal(op.exp, buf[:n]), "read %q", buf[:n])
}

type seekOp struct {
	off    int64
	whence bfs.Whence

	expErr error
}

func (op seekOp) Do(t *testing.T, fx *fixture) {
	err := fx.e.Seek(fx.h, op.off, op.whence)
	if op.expErr == nil {
		require.NoError(t, err)
	} else {
		require.ErrorIs(t, err, op.expErr)
	}
}

type tellOp struct {
	exp int64
}

func (op tellOp) Do(t *testing.T, fx *fixture) {
	cur, err := fx.e.Tell(fx.h)
	require.NoError(t, err)
	require.Equal(t, op.exp, cur, "cursor")
}

type sizeOp struct {
	exp int64
}

func (op sizeOp) Do(t *testing.T, fx *fixture) {
	size, err := fx.e.Size(fx.h)
	require.NoError(t, err)
	require.Equal(t, op.exp, size, "size")
}

// mappedOp checks which file blocks the last operations asked the mapper
// about, then forgets them.
type mappedOp struct {
	exp []bfs.FBN
}

func (op mappedOp) Do(t *testing.T, fx *fixture) {
	require.Equal(t, op.exp, fx.d.mapped, "mapped fbns")
	fx.d.mapped = nil
}

type allocatedOp struct {
	exp int
}

func (op allocatedOp) Do(t *testing.T, fx *fixture) {
	require.Equal(t, op.exp, fx.d.allocated(), "allocated blocks")
}

type faultOp struct {
	read, write bool
}

func (op faultOp) Do(t *testing.T, fx *fixture) {
	fx.d.failRead = op.read
	fx.d.failWrite = op.write
}
