// Package volume is the caller-facing side of bfs: it formats and mounts
// images and exposes open, create, close and the byte-level file
// operations.
package volume

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/sirupsen/logrus"

	"github.com/keks/bfs"
	"github.com/keks/bfs/blkfile"
	"github.com/keks/bfs/fileio"
	"github.com/keks/bfs/inode"
	"github.com/keks/bfs/oft"
)

// Volume is a mounted image. It is not safe for concurrent use.
type Volume struct {
	path string
	img  billy.File

	blks   *blkfile.Blocks
	inodes *inode.Table
	files  *oft.Table
	engine *fileio.Engine

	log logrus.FieldLogger
}

// fileTable joins the open-file table and the inode sizes into the
// bfs.FileTable the engine needs.
type fileTable struct {
	open   *oft.Table
	inodes *inode.Table
}

func (ft fileTable) Resolve(h bfs.Handle) (*bfs.Entry, error) {
	return ft.open.Resolve(h)
}

func (ft fileTable) GetSize(ino bfs.InodeID) (int64, error) {
	return ft.inodes.GetSize(ino)
}

func (ft fileTable) SetSize(ino bfs.InodeID, size int64) error {
	return ft.inodes.SetSize(ino, size)
}

// Format creates a new, empty image at path, replacing any file there.
func Format(fs billy.Filesystem, path string, opts ...Option) (*Volume, error) {
	o := buildOptions(opts)
	log := o.Log.WithField("image", path)

	img, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("volume: create %q: %w", path, err)
	}

	blks, err := blkfile.New(blkfile.BillyFile(img), blkfile.Config{
		BlockSize:     o.BlockSize,
		Blocks:        o.Blocks,
		CatalogBlocks: o.CatalogBlocks,
		Log:           log,
	})
	if err != nil {
		img.Close()
		return nil, err
	}

	// size the image so every block reads back, even if never written
	if err := img.Truncate(int64(o.Blocks) * int64(o.BlockSize)); err != nil {
		img.Close()
		return nil, fmt.Errorf("volume: size %q: %w: %v", path, bfs.ErrStorageFault, err)
	}

	v := newVolume(path, img, blks, log)
	if err := v.inodes.Save(); err != nil {
		img.Close()
		return nil, err
	}

	log.Info("formatted image")
	return v, nil
}

// Mount opens an existing image.
func Mount(fs billy.Filesystem, path string, opts ...Option) (*Volume, error) {
	o := buildOptions(opts)
	log := o.Log.WithField("image", path)

	if _, err := fs.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("volume: %q: %w", path, bfs.ErrNoDisk)
		}
		return nil, fmt.Errorf("volume: stat %q: %w", path, err)
	}

	img, err := fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("volume: open %q: %w", path, err)
	}

	blks, err := blkfile.Open(blkfile.BillyFile(img), log)
	if err != nil {
		img.Close()
		return nil, err
	}

	v := newVolume(path, img, blks, log)
	if err := v.inodes.Load(); err != nil {
		img.Close()
		return nil, err
	}

	log.WithField("files", len(v.inodes.List())).Debug("mounted image")
	return v, nil
}

func newVolume(path string, img billy.File, blks *blkfile.Blocks, log logrus.FieldLogger) *Volume {
	first, n := blks.CatalogBlocks()
	inodes := inode.NewTable(inode.Config{
		Store:         blks,
		Alloc:         blks,
		CatalogFirst:  first,
		CatalogBlocks: n,
		Log:           log,
	})
	files := oft.New(log)

	return &Volume{
		path:   path,
		img:    img,
		blks:   blks,
		inodes: inodes,
		files:  files,
		engine: fileio.New(fileTable{open: files, inodes: inodes}, inodes, blks, log),
		log:    log,
	}
}

// Open opens an existing file with the cursor at 0.
func (v *Volume) Open(name string) (bfs.Handle, error) {
	ino, err := v.inodes.Lookup(name)
	if err != nil {
		return 0, err
	}
	return v.files.Open(ino), nil
}

// Create creates name, or truncates it if it exists, and opens it. An
// existing file that is open cannot be truncated.
func (v *Volume) Create(name string) (bfs.Handle, error) {
	if ino, err := v.inodes.Lookup(name); err == nil {
		if n := v.files.OpenCount(ino); n > 0 {
			return 0, fmt.Errorf("volume: create %q: %d open handles: %w", name, n, bfs.ErrFileBusy)
		}
	}

	ino, err := v.inodes.Create(name)
	if err != nil {
		return 0, err
	}
	return v.files.Open(ino), nil
}

// Close releases h. It does not persist anything; see Sync.
func (v *Volume) Close(h bfs.Handle) error {
	return v.files.Release(h)
}

// Remove deletes name. Open files cannot be removed.
func (v *Volume) Remove(name string) error {
	ino, err := v.inodes.Lookup(name)
	if err != nil {
		return err
	}
	if n := v.files.OpenCount(ino); n > 0 {
		return fmt.Errorf("volume: remove %q: %d open handles: %w", name, n, bfs.ErrFileBusy)
	}
	return v.inodes.Remove(name)
}

// List returns the directory sorted by name.
func (v *Volume) List() []inode.DirectoryEntry {
	return v.inodes.List()
}

// Stat returns the inode of name.
func (v *Volume) Stat(name string) (inode.Inode, error) {
	ino, err := v.inodes.Lookup(name)
	if err != nil {
		return inode.Inode{}, err
	}
	return v.inodes.Inode(ino)
}

// Seek moves the cursor of h; see fileio.Engine.Seek.
func (v *Volume) Seek(h bfs.Handle, offset int64, whence bfs.Whence) error {
	return v.engine.Seek(h, offset, whence)
}

// Tell returns the cursor of h.
func (v *Volume) Tell(h bfs.Handle) (int64, error) {
	return v.engine.Tell(h)
}

// Size returns the size of the file open on h.
func (v *Volume) Size(h bfs.Handle) (int64, error) {
	return v.engine.Size(h)
}

// Read reads from the cursor of h; see fileio.Engine.Read.
func (v *Volume) Read(h bfs.Handle, p []byte) (int, error) {
	return v.engine.Read(h, p)
}

// Write writes at the cursor of h; see fileio.Engine.Write.
func (v *Volume) Write(h bfs.Handle, p []byte) (int, error) {
	return v.engine.Write(h, p)
}

// File wraps h in an io.ReadWriteSeeker whose Close closes h.
func (v *Volume) File(h bfs.Handle) (*fileio.File, error) {
	if _, err := v.files.Resolve(h); err != nil {
		return nil, err
	}
	return fileio.NewFile(v.engine, h, v.Close), nil
}

// Info summarizes the image.
type Info struct {
	Path      string `json:"path"`
	BlockSize int    `json:"block_size"`
	Blocks    uint64 `json:"data_blocks"`
	Used      uint64 `json:"used_blocks"`
	Free      uint64 `json:"free_blocks"`
	Files     int    `json:"files"`
}

// Info reports block usage and the number of files.
func (v *Volume) Info() Info {
	st := v.blks.Stat()
	return Info{
		Path:      v.path,
		BlockSize: st.BlockSize,
		Blocks:    st.Total,
		Used:      st.Used,
		Free:      st.Free,
		Files:     len(v.inodes.List()),
	}
}

// Sync writes the catalog to the image.
func (v *Volume) Sync() error {
	return v.inodes.Save()
}

// Unmount syncs and closes the image. Handles still open are dropped.
func (v *Volume) Unmount() error {
	if hs := v.files.Handles(); len(hs) > 0 {
		v.log.WithField("handles", len(hs)).Warn("unmounting with open handles")
		for _, h := range hs {
			if err := v.files.Release(h); err != nil {
				return err
			}
		}
	}

	if err := v.Sync(); err != nil {
		v.img.Close()
		return err
	}

	if err := v.img.Close(); err != nil {
		return fmt.Errorf("volume: close %q: %w", v.path, err)
	}

	v.log.Debug("unmounted image")
	return nil
}
