package inode

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/keks/bfs"
)

// catalogHeaderSize is the length prefix in front of the JSON document.
const catalogHeaderSize = 8

type catalog struct {
	Next   bfs.InodeID      `json:"n"`
	Inodes []*Inode         `json:"in"`
	Dir    []DirectoryEntry `json:"d"`
}

// maxSizeDigits is the widest decimal int64 file size.
const maxSizeDigits = 19

func (t *Table) catalog() catalog {
	cat := catalog{
		Next: t.next,
		Dir:  t.List(),
	}
	for _, e := range cat.Dir {
		cat.Inodes = append(cat.Inodes, t.inodes[e.Inode])
	}
	return cat
}

func (t *Table) capacity() int {
	return t.catLen * t.store.BlockSize()
}

// measure returns how many catalog bytes the table needs: the encoded
// catalog plus room for every size field to grow to its widest.
func (t *Table) measure() (int, error) {
	doc, err := json.Marshal(t.catalog())
	if err != nil {
		return 0, fmt.Errorf("inode: marshal catalog: %w", err)
	}

	n := catalogHeaderSize + len(doc)
	for _, in := range t.inodes {
		n += maxSizeDigits - digits(in.Size)
	}
	return n, nil
}

// reserve claims extra catalog bytes, failing with ErrCatalogFull if the
// catalog would no longer fit its blocks. Nothing is claimed on failure.
func (t *Table) reserve(extra int64) error {
	if t.used < 0 {
		n, err := t.measure()
		if err != nil {
			return err
		}
		t.used = n
	}

	if capacity := int64(t.capacity()); int64(t.used)+extra > capacity {
		return fmt.Errorf("inode: catalog needs %d bytes, has %d: %w", int64(t.used)+extra, capacity, bfs.ErrCatalogFull)
	}

	t.used += int(extra)
	return nil
}

func digits(v int64) int {
	return len(strconv.FormatInt(v, 10))
}

// Save writes the directory and inodes to the catalog blocks.
func (t *Table) Save() error {
	cat := t.catalog()

	doc, err := json.Marshal(cat)
	if err != nil {
		return fmt.Errorf("inode: marshal catalog: %w", err)
	}

	bs := t.store.BlockSize()
	capacity := t.capacity()
	if catalogHeaderSize+len(doc) > capacity {
		return fmt.Errorf("inode: catalog of %d bytes does not fit %d: %w", len(doc), capacity, bfs.ErrCatalogFull)
	}

	raw := make([]byte, capacity)
	binary.LittleEndian.PutUint64(raw, uint64(len(doc)))
	copy(raw[catalogHeaderSize:], doc)

	used := (catalogHeaderSize + len(doc) + bs - 1) / bs
	for i := 0; i < used; i++ {
		id := t.catFirst + bfs.BlockID(i)
		if err := t.store.WriteBlock(id, raw[i*bs:(i+1)*bs]); err != nil {
			return fmt.Errorf("inode: save catalog: %w", err)
		}
	}

	t.log.WithFields(logrus.Fields{
		"files":  len(cat.Dir),
		"bytes":  len(doc),
		"blocks": used,
	}).Debug("saved catalog")

	return nil
}

// Load replaces the table contents with the catalog stored on disk. An
// all-zero catalog is an empty file system.
func (t *Table) Load() error {
	bs := t.store.BlockSize()
	raw := make([]byte, t.catLen*bs)

	if err := t.store.ReadBlock(t.catFirst, raw[:bs]); err != nil {
		return fmt.Errorf("inode: load catalog: %w", err)
	}

	n := binary.LittleEndian.Uint64(raw)
	if n == 0 {
		t.next = 1
		t.inodes = make(map[bfs.InodeID]*Inode)
		t.dir = make(map[string]bfs.InodeID)
		t.used = -1
		return nil
	}
	if n > uint64(len(raw)-catalogHeaderSize) {
		return fmt.Errorf("inode: catalog length %d exceeds %d reserved bytes: %w", n, len(raw), bfs.ErrBadImage)
	}

	used := (catalogHeaderSize + int(n) + bs - 1) / bs
	for i := 1; i < used; i++ {
		id := t.catFirst + bfs.BlockID(i)
		if err := t.store.ReadBlock(id, raw[i*bs:(i+1)*bs]); err != nil {
			return fmt.Errorf("inode: load catalog: %w", err)
		}
	}

	var cat catalog
	if err := json.Unmarshal(raw[catalogHeaderSize:catalogHeaderSize+int(n)], &cat); err != nil {
		return fmt.Errorf("inode: decode catalog: %w: %v", bfs.ErrBadImage, err)
	}

	inodes := make(map[bfs.InodeID]*Inode, len(cat.Inodes))
	for _, in := range cat.Inodes {
		if in == nil {
			continue
		}
		inodes[in.ID] = in
	}

	dir := make(map[string]bfs.InodeID, len(cat.Dir))
	for _, e := range cat.Dir {
		if _, ok := inodes[e.Inode]; !ok {
			return fmt.Errorf("inode: %q points at missing inode %d: %w", e.Name, e.Inode, bfs.ErrBadImage)
		}
		dir[e.Name] = e.Inode
	}

	t.next = cat.Next
	t.inodes = inodes
	t.dir = dir
	t.used = -1

	t.log.WithField("files", len(dir)).Debug("loaded catalog")
	return nil
}
