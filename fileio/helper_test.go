package fileio

import (
	"errors"
	"fmt"

	"github.com/keks/bfs"
)

var errInjected = errors.New("injected fault")

// fakeDisk is an in-memory file table, block mapper and block store in one.
type fakeDisk struct {
	bs       int
	capacity int

	next    bfs.BlockID
	blocks  map[bfs.BlockID][]byte
	maps    map[bfs.InodeID][]bfs.BlockID
	sizes   map[bfs.InodeID]int64
	entries map[bfs.Handle]*bfs.Entry
	nextH   bfs.Handle

	mapped    []bfs.FBN
	failRead  bool
	failWrite bool
}

func newFakeDisk(bs, capacity int) *fakeDisk {
	return &fakeDisk{
		bs:       bs,
		capacity: capacity,
		next:     1,
		blocks:   make(map[bfs.BlockID][]byte),
		maps:     make(map[bfs.InodeID][]bfs.BlockID),
		sizes:    make(map[bfs.InodeID]int64),
		entries:  make(map[bfs.Handle]*bfs.Entry),
	}
}

func (d *fakeDisk) open(ino bfs.InodeID) bfs.Handle {
	if _, ok := d.sizes[ino]; !ok {
		d.sizes[ino] = 0
	}
	h := d.nextH
	d.nextH++
	d.entries[h] = &bfs.Entry{Inode: ino}
	return h
}

func (d *fakeDisk) allocated() int {
	return len(d.blocks)
}

func (d *fakeDisk) Resolve(h bfs.Handle) (*bfs.Entry, error) {
	ent, ok := d.entries[h]
	if !ok {
		return nil, fmt.Errorf("handle %d: %w", h, bfs.ErrBadHandle)
	}
	return ent, nil
}

func (d *fakeDisk) GetSize(ino bfs.InodeID) (int64, error) {
	return d.sizes[ino], nil
}

func (d *fakeDisk) SetSize(ino bfs.InodeID, size int64) error {
	d.sizes[ino] = size
	return nil
}

func (d *fakeDisk) MapBlock(ino bfs.InodeID, fbn bfs.FBN) (bfs.BlockID, error) {
	d.mapped = append(d.mapped, fbn)

	m := d.maps[ino]
	if int(fbn) >= len(m) || m[fbn] == 0 {
		return 0, bfs.ErrNotMapped
	}
	return m[fbn], nil
}

func (d *fakeDisk) ExtendBlock(ino bfs.InodeID, fbn bfs.FBN) (bfs.BlockID, error) {
	if len(d.blocks) >= d.capacity {
		return 0, bfs.ErrOutOfSpace
	}

	id := d.next
	d.next++
	d.blocks[id] = make([]byte, d.bs)

	m := d.maps[ino]
	for len(m) <= int(fbn) {
		m = append(m, 0)
	}
	m[fbn] = id
	d.maps[ino] = m

	return id, nil
}

func (d *fakeDisk) BlockSize() int {
	return d.bs
}

func (d *fakeDisk) ReadBlock(id bfs.BlockID, dst []byte) error {
	if d.failRead {
		return fmt.Errorf("%w: %v", bfs.ErrStorageFault, errInjected)
	}
	clear(dst)
	copy(dst, d.blocks[id])
	return nil
}

func (d *fakeDisk) WriteBlock(id bfs.BlockID, src []byte) error {
	if d.failWrite {
		return fmt.Errorf("%w: %v", bfs.ErrStorageFault, errInjected)
	}
	d.blocks[id] = append([]byte(nil), src...)
	return nil
}
