// Package inode keeps the directory, the inodes and the per-file block maps
// of a bfs image, and persists them as a JSON catalog in reserved blocks.
package inode

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/keks/bfs"
)

// MaxNameLen is the longest file name the directory accepts.
const MaxNameLen = 255

// Inode is the metadata of one file. Blocks is indexed by FBN; a zero
// entry means the FBN has no physical block.
type Inode struct {
	ID     bfs.InodeID   `json:"i"`
	Size   int64         `json:"s"`
	Blocks []bfs.BlockID `json:"b,omitempty"`
}

// DirectoryEntry binds a name to an inode.
type DirectoryEntry struct {
	Name  string      `json:"f"`
	Inode bfs.InodeID `json:"i"`
}

// Table is the inode table and directory of a mounted image. It is the
// BlockMapper and Sizer of the I/O engine.
type Table struct {
	store bfs.BlockStore
	alloc bfs.Allocator

	catFirst bfs.BlockID
	catLen   int

	next   bfs.InodeID
	inodes map[bfs.InodeID]*Inode
	dir    map[string]bfs.InodeID

	// used is an upper bound on the catalog bytes Save will write, or -1
	// if it has to be measured again.
	used int

	log logrus.FieldLogger
}

// Config wires a Table to its block layer.
type Config struct {
	Store bfs.BlockStore
	Alloc bfs.Allocator

	// CatalogFirst and CatalogBlocks name the blocks Save and Load use.
	CatalogFirst  bfs.BlockID
	CatalogBlocks int

	Log logrus.FieldLogger
}

// NewTable returns an empty table. Call Load to read an existing catalog.
func NewTable(cfg Config) *Table {
	log := cfg.Log
	if log == nil {
		log = bfs.DiscardLogger()
	}

	return &Table{
		store:    cfg.Store,
		alloc:    cfg.Alloc,
		catFirst: cfg.CatalogFirst,
		catLen:   cfg.CatalogBlocks,
		next:     1,
		inodes:   make(map[bfs.InodeID]*Inode),
		dir:      make(map[string]bfs.InodeID),
		used:     -1,
		log:      log,
	}
}

func validName(name string) error {
	if name == "" || len(name) > MaxNameLen || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%q: %w", name, bfs.ErrInvalidName)
	}
	return nil
}

func (t *Table) inode(ino bfs.InodeID) (*Inode, error) {
	in, ok := t.inodes[ino]
	if !ok {
		return nil, fmt.Errorf("inode %d: %w", ino, bfs.ErrFileNotFound)
	}
	return in, nil
}

// Lookup finds the inode of name.
func (t *Table) Lookup(name string) (bfs.InodeID, error) {
	ino, ok := t.dir[name]
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, bfs.ErrFileNotFound)
	}
	return ino, nil
}

// Create makes an empty file called name. An existing file of that name is
// truncated to zero length and keeps its inode. A new file fails with
// ErrCatalogFull if the catalog has no room for it.
func (t *Table) Create(name string) (bfs.InodeID, error) {
	if err := validName(name); err != nil {
		return 0, err
	}

	if ino, ok := t.dir[name]; ok {
		if err := t.truncate(t.inodes[ino]); err != nil {
			return 0, err
		}
		t.log.WithFields(logrus.Fields{"name": name, "inode": ino}).Debug("truncated file")
		return ino, nil
	}

	ino := t.next
	t.next++
	t.inodes[ino] = &Inode{ID: ino}
	t.dir[name] = ino

	t.used = -1
	if err := t.reserve(0); err != nil {
		delete(t.dir, name)
		delete(t.inodes, ino)
		t.next--
		t.used = -1
		return 0, fmt.Errorf("create %q: %w", name, err)
	}

	t.log.WithFields(logrus.Fields{"name": name, "inode": ino}).Debug("created file")
	return ino, nil
}

// Remove deletes name and frees its blocks.
func (t *Table) Remove(name string) error {
	ino, err := t.Lookup(name)
	if err != nil {
		return err
	}

	if err := t.truncate(t.inodes[ino]); err != nil {
		return err
	}

	delete(t.dir, name)
	delete(t.inodes, ino)
	t.used = -1

	t.log.WithFields(logrus.Fields{"name": name, "inode": ino}).Debug("removed file")
	return nil
}

func (t *Table) truncate(in *Inode) error {
	for fbn, id := range in.Blocks {
		if id == 0 {
			continue
		}
		if err := t.alloc.Free(id); err != nil {
			return fmt.Errorf("inode %d: free fbn %d: %w", in.ID, fbn, err)
		}
		in.Blocks[fbn] = 0
	}

	in.Blocks = nil
	in.Size = 0
	t.used = -1
	return nil
}

// List returns the directory sorted by name.
func (t *Table) List() []DirectoryEntry {
	entries := make([]DirectoryEntry, 0, len(t.dir))
	for name, ino := range t.dir {
		entries = append(entries, DirectoryEntry{Name: name, Inode: ino})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	return entries
}

// Inode returns a copy of the inode.
func (t *Table) Inode(ino bfs.InodeID) (Inode, error) {
	in, err := t.inode(ino)
	if err != nil {
		return Inode{}, err
	}

	cp := *in
	cp.Blocks = append([]bfs.BlockID(nil), in.Blocks...)
	return cp, nil
}

// GetSize implements bfs.Sizer.
func (t *Table) GetSize(ino bfs.InodeID) (int64, error) {
	in, err := t.inode(ino)
	if err != nil {
		return 0, err
	}
	return in.Size, nil
}

// SetSize implements bfs.Sizer. It does not touch the block map.
func (t *Table) SetSize(ino bfs.InodeID, size int64) error {
	if size < 0 {
		return fmt.Errorf("inode %d: size %d: %w", ino, size, bfs.ErrInvalidOffset)
	}

	in, err := t.inode(ino)
	if err != nil {
		return err
	}

	in.Size = size
	return nil
}

// MapBlock implements bfs.BlockMapper.
func (t *Table) MapBlock(ino bfs.InodeID, fbn bfs.FBN) (bfs.BlockID, error) {
	in, err := t.inode(ino)
	if err != nil {
		return 0, err
	}
	if fbn < 0 {
		return 0, fmt.Errorf("inode %d: fbn %d: %w", ino, fbn, bfs.ErrInvalidOffset)
	}

	if int64(fbn) >= int64(len(in.Blocks)) || in.Blocks[fbn] == 0 {
		return 0, fmt.Errorf("inode %d: fbn %d: %w", ino, fbn, bfs.ErrNotMapped)
	}

	return in.Blocks[fbn], nil
}

// ExtendBlock implements bfs.BlockMapper. Only fbn gets a block; FBNs
// between the old end of the map and fbn stay unmapped. It fails with
// ErrOutOfSpace, also matching ErrCatalogFull, when the grown map would no
// longer fit the catalog; that is checked before anything is allocated.
func (t *Table) ExtendBlock(ino bfs.InodeID, fbn bfs.FBN) (bfs.BlockID, error) {
	in, err := t.inode(ino)
	if err != nil {
		return 0, err
	}
	if fbn < 0 {
		return 0, fmt.Errorf("inode %d: fbn %d: %w", ino, fbn, bfs.ErrInvalidOffset)
	}

	if int64(fbn) < int64(len(in.Blocks)) && in.Blocks[fbn] != 0 {
		return in.Blocks[fbn], nil
	}

	// the cheapest block id is one digit
	if err := t.fitsMap(in, fbn, 1); err != nil {
		return 0, fmt.Errorf("inode %d: extend fbn %d: %w: %w", ino, fbn, bfs.ErrOutOfSpace, err)
	}

	id, err := t.alloc.Allocate()
	if err != nil {
		return 0, fmt.Errorf("inode %d: extend fbn %d: %w", ino, fbn, err)
	}

	growth := mapGrowth(in, fbn, digits(int64(id)))
	if err := t.reserve(growth); err != nil {
		if ferr := t.alloc.Free(id); ferr != nil {
			return 0, fmt.Errorf("inode %d: extend fbn %d: %w (free block %d: %v)", ino, fbn, err, id, ferr)
		}
		return 0, fmt.Errorf("inode %d: extend fbn %d: %w: %w", ino, fbn, bfs.ErrOutOfSpace, err)
	}

	for int64(len(in.Blocks)) <= int64(fbn) {
		in.Blocks = append(in.Blocks, 0)
	}
	in.Blocks[fbn] = id

	t.log.WithFields(logrus.Fields{
		"inode": ino,
		"fbn":   fbn,
		"block": id,
	}).Debug("extended file")

	return id, nil
}

// fitsMap checks that binding fbn to a block id of idDigits digits leaves
// the catalog within its blocks, without claiming the bytes.
func (t *Table) fitsMap(in *Inode, fbn bfs.FBN, idDigits int) error {
	if holes := int64(fbn) - int64(len(in.Blocks)); holes > int64(t.capacity()) {
		return fmt.Errorf("inode: %d unmapped blocks do not fit a catalog of %d bytes: %w", holes, t.capacity(), bfs.ErrCatalogFull)
	}

	growth := mapGrowth(in, fbn, idDigits)
	if err := t.reserve(growth); err != nil {
		return err
	}
	t.used -= int(growth)
	return nil
}

// mapGrowth is how many bytes the JSON block map of in grows by when fbn
// is bound to a block id of idDigits digits. Holes encode as "0,".
func mapGrowth(in *Inode, fbn bfs.FBN, idDigits int) int64 {
	n := int64(len(in.Blocks))
	if int64(fbn) < n {
		return int64(idDigits - 1)
	}

	holes := int64(fbn) - n
	if n == 0 {
		return int64(len(`,"b":[]`)) + 2*holes + int64(idDigits)
	}
	return 2*holes + 1 + int64(idDigits)
}
