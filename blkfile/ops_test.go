package blkfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keks/bfs"
)

type op interface {
	Do(*testing.T, bfs.ReadWriterAt)
}

func checkErr(t *testing.T, err error, expErr error) {
	if expErr == nil {
		require.NoError(t, err)
	} else {
		require.ErrorIs(t, err, expErr)
	}
}

type blksNewOp struct {
	blks *Blocks
	cfg  Config

	expErr string
}

func (op blksNewOp) Do(t *testing.T, rwa bfs.ReadWriterAt) {
	blks, err := New(rwa, op.cfg)
	if op.expErr == "" {
		require.NoError(t, err)
	} else {
		require.EqualError(t, err, op.expErr)
		return
	}

	op.blks.lower = blks.lower
	op.blks.meta = blks.meta
	op.blks.log = blks.log
}

type blksOpenOp struct {
	blks *Blocks

	expErr error
}

func (op blksOpenOp) Do(t *testing.T, rwa bfs.ReadWriterAt) {
	blks, err := Open(rwa, nil)
	checkErr(t, err, op.expErr)
	if err != nil {
		return
	}

	op.blks.lower = blks.lower
	op.blks.meta = blks.meta
	op.blks.log = blks.log
}

type blksAllocateOp struct {
	blks  *Blocks
	blkid *bfs.BlockID

	expBid bfs.BlockID
	expErr error
}

func (op blksAllocateOp) Do(t *testing.T, rwa bfs.ReadWriterAt) {
	blkid, err := op.blks.Allocate()
	checkErr(t, err, op.expErr)
	if err != nil {
		return
	}

	require.Equal(t, op.expBid, blkid, "block id returned by allocate")
	if op.blkid != nil {
		*op.blkid = blkid
	}
}

type blksFreeOp struct {
	blks  *Blocks
	blkid *bfs.BlockID

	expErr error
}

func (op blksFreeOp) Do(t *testing.T, rwa bfs.ReadWriterAt) {
	checkErr(t, op.blks.Free(*op.blkid), op.expErr)
}

type blksWriteOp struct {
	blks  *Blocks
	blkid *bfs.BlockID
	data  []byte

	expErr error
}

func (op blksWriteOp) Do(t *testing.T, rwa bfs.ReadWriterAt) {
	buf := make([]byte, op.blks.BlockSize())
	copy(buf, op.data)
	checkErr(t, op.blks.WriteBlock(*op.blkid, buf), op.expErr)
}

type blksReadOp struct {
	blks  *Blocks
	blkid *bfs.BlockID

	exp    []byte
	expErr error
}

func (op blksReadOp) Do(t *testing.T, rwa bfs.ReadWriterAt) {
	buf := make([]byte, op.blks.BlockSize())
	for i := range buf {
		buf[i] = 0xff
	}

	err := op.blks.ReadBlock(*op.blkid, buf)
	checkErr(t, err, op.expErr)
	if err != nil {
		return
	}

	exp := make([]byte, op.blks.BlockSize())
	copy(exp, op.exp)
	t.Logf("block %d head %q", *op.blkid, buf[:8])
	require.True(t, bytes.Equal(exp, buf), "block contents")
}

type blksStatOp struct {
	blks *Blocks

	exp Stat
}

func (op blksStatOp) Do(t *testing.T, rwa bfs.ReadWriterAt) {
	require.Equal(t, op.exp, op.blks.Stat())
}

type dumpOp struct {
	name string
	v    interface{}
}

func (op dumpOp) Do(t *testing.T, rwa bfs.ReadWriterAt) {
	t.Logf("%s: %#v", op.name, op.v)
}
