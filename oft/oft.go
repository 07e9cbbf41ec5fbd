// Package oft is the open-file table. Each open handle owns one slot
// holding the inode it refers to and its cursor.
package oft

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/keks/bfs"
)

type slot struct {
	open  bool
	entry bfs.Entry
}

// Table maps handles to entries. Released slots are reused before the
// arena grows.
type Table struct {
	slots []slot
	free  []bfs.Handle

	log logrus.FieldLogger
}

// New returns an empty table.
func New(log logrus.FieldLogger) *Table {
	if log == nil {
		log = bfs.DiscardLogger()
	}
	return &Table{log: log}
}

// Open allocates a handle for ino with the cursor at 0.
func (t *Table) Open(ino bfs.InodeID) bfs.Handle {
	var h bfs.Handle
	if n := len(t.free); n > 0 {
		h = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		h = bfs.Handle(len(t.slots))
		t.slots = append(t.slots, slot{})
	}

	t.slots[h] = slot{
		open:  true,
		entry: bfs.Entry{Inode: ino},
	}

	t.log.WithFields(logrus.Fields{"handle": h, "inode": ino}).Debug("opened handle")
	return h
}

// Resolve implements bfs.Resolver. The returned entry is only valid until
// the next Open or Release.
func (t *Table) Resolve(h bfs.Handle) (*bfs.Entry, error) {
	if h < 0 || int(h) >= len(t.slots) || !t.slots[h].open {
		return nil, fmt.Errorf("handle %d: %w", h, bfs.ErrBadHandle)
	}
	return &t.slots[h].entry, nil
}

// Release closes h.
func (t *Table) Release(h bfs.Handle) error {
	if _, err := t.Resolve(h); err != nil {
		return err
	}

	t.slots[h] = slot{}
	t.free = append(t.free, h)

	t.log.WithField("handle", h).Debug("released handle")
	return nil
}

// OpenCount reports how many handles refer to ino.
func (t *Table) OpenCount(ino bfs.InodeID) int {
	var n int
	for _, s := range t.slots {
		if s.open && s.entry.Inode == ino {
			n++
		}
	}
	return n
}

// Handles lists the open handles in ascending order.
func (t *Table) Handles() []bfs.Handle {
	var hs []bfs.Handle
	for i, s := range t.slots {
		if s.open {
			hs = append(hs, bfs.Handle(i))
		}
	}
	return hs
}
