package blkfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/keks/bfs"
)

// MinBlockSize is the smallest block that can hold the image metadata.
const MinBlockSize = 64

var magic = [4]byte{'B', 'F', 'S', '1'}

// meta is stored at the start of block 0.
type meta struct {
	Magic     [4]byte
	BlockSize uint32
	Total     uint64
	Next      uint64
	FreeHead  uint64
	FreeLen   uint64
	Catalog   uint32
}

// Config describes the geometry of a new image.
type Config struct {
	BlockSize     int
	Blocks        int
	CatalogBlocks int

	Log logrus.FieldLogger
}

// Blocks is a BlockStore and Allocator over a flat image. Block 0 holds
// the metadata, blocks 1 through CatalogBlocks are reserved for the
// catalog and the rest are handed out by Allocate.
type Blocks struct {
	l sync.Mutex

	lower bfs.ReadWriterAt
	meta  meta
	log   logrus.FieldLogger
}

// New formats a fresh image on rwa.
func New(rwa bfs.ReadWriterAt, cfg Config) (*Blocks, error) {
	if cfg.BlockSize < MinBlockSize || cfg.BlockSize&(cfg.BlockSize-1) != 0 {
		return nil, fmt.Errorf("blkfile: block size %d must be a power of two >= %d", cfg.BlockSize, MinBlockSize)
	}
	if cfg.CatalogBlocks < 1 {
		return nil, fmt.Errorf("blkfile: need at least one catalog block, got %d", cfg.CatalogBlocks)
	}
	if cfg.Blocks <= 1+cfg.CatalogBlocks {
		return nil, fmt.Errorf("blkfile: %d blocks leave no room for data", cfg.Blocks)
	}

	blks := &Blocks{
		lower: rwa,
		log:   cfg.Log,
		meta: meta{
			Magic:     magic,
			BlockSize: uint32(cfg.BlockSize),
			Total:     uint64(cfg.Blocks),
			Next:      uint64(1 + cfg.CatalogBlocks),
			Catalog:   uint32(cfg.CatalogBlocks),
		},
	}
	if blks.log == nil {
		blks.log = bfs.DiscardLogger()
	}

	if err := blks.writeMeta(); err != nil {
		return nil, err
	}

	zero := make([]byte, cfg.BlockSize)
	for i := 1; i <= cfg.CatalogBlocks; i++ {
		if err := blks.WriteBlock(bfs.BlockID(i), zero); err != nil {
			return nil, err
		}
	}

	blks.log.WithFields(logrus.Fields{
		"blocksize": cfg.BlockSize,
		"blocks":    cfg.Blocks,
		"catalog":   cfg.CatalogBlocks,
	}).Debug("formatted block image")

	return blks, nil
}

// Open reads the metadata of an existing image.
func Open(rwa bfs.ReadWriterAt, log logrus.FieldLogger) (*Blocks, error) {
	if log == nil {
		log = bfs.DiscardLogger()
	}

	blks := &Blocks{
		lower: rwa,
		log:   log,
	}

	err := binary.Read(readerFromReaderAt(rwa, 0), binary.LittleEndian, &blks.meta)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("blkfile: short metadata block: %w", bfs.ErrBadImage)
		}
		return nil, fmt.Errorf("blkfile: read metadata: %w: %v", bfs.ErrStorageFault, err)
	}

	if blks.meta.Magic != magic {
		return nil, fmt.Errorf("blkfile: bad magic %q: %w", blks.meta.Magic[:], bfs.ErrBadImage)
	}
	bs := blks.meta.BlockSize
	if bs < MinBlockSize || bs&(bs-1) != 0 {
		return nil, fmt.Errorf("blkfile: bad block size %d: %w", bs, bfs.ErrBadImage)
	}

	return blks, nil
}

func (blks *Blocks) writeMeta() error {
	err := binary.Write(writerFromWriterAt(blks.lower, 0), binary.LittleEndian, &blks.meta)
	if err != nil {
		return fmt.Errorf("blkfile: write metadata: %w: %v", bfs.ErrStorageFault, err)
	}
	return nil
}

// BlockSize implements bfs.BlockStore.
func (blks *Blocks) BlockSize() int {
	return int(blks.meta.BlockSize)
}

// CatalogBlocks returns the first reserved catalog block and how many
// there are.
func (blks *Blocks) CatalogBlocks() (bfs.BlockID, int) {
	return 1, int(blks.meta.Catalog)
}

// offset returns where block id starts in the image. Block 0 holds the
// metadata and is only written through writeMeta.
func (blks *Blocks) offset(id bfs.BlockID) (int64, error) {
	if id == 0 || uint64(id) >= blks.meta.Total {
		return 0, fmt.Errorf("blkfile: block %d outside image of %d blocks: %w", id, blks.meta.Total, bfs.ErrStorageFault)
	}
	return int64(id) * int64(blks.meta.BlockSize), nil
}

// ReadBlock implements bfs.BlockStore. Bytes past the end of the backing
// image read as zero.
func (blks *Blocks) ReadBlock(id bfs.BlockID, dst []byte) error {
	if len(dst) != blks.BlockSize() {
		return fmt.Errorf("blkfile: read block %d: buffer of %d bytes: %w", id, len(dst), bfs.ErrStorageFault)
	}

	off, err := blks.offset(id)
	if err != nil {
		return err
	}

	n, err := blks.lower.ReadAt(dst, off)
	if errors.Is(err, io.EOF) {
		clear(dst[n:])
		return nil
	}
	if err != nil {
		return fmt.Errorf("blkfile: read block %d: %w: %v", id, bfs.ErrStorageFault, err)
	}

	return nil
}

// WriteBlock implements bfs.BlockStore.
func (blks *Blocks) WriteBlock(id bfs.BlockID, src []byte) error {
	if len(src) != blks.BlockSize() {
		return fmt.Errorf("blkfile: write block %d: buffer of %d bytes: %w", id, len(src), bfs.ErrStorageFault)
	}

	off, err := blks.offset(id)
	if err != nil {
		return err
	}

	n, err := blks.lower.WriteAt(src, off)
	if err != nil {
		return fmt.Errorf("blkfile: write block %d: %w: %v", id, bfs.ErrStorageFault, err)
	}
	if n != len(src) {
		return fmt.Errorf("blkfile: write block %d: wrote %d of %d bytes: %w", id, n, len(src), bfs.ErrStorageFault)
	}

	return nil
}

func (blks *Blocks) isData(id bfs.BlockID) bool {
	return uint64(id) > uint64(blks.meta.Catalog) && uint64(id) < blks.meta.Next
}

// Allocate implements bfs.Allocator. Freed blocks are reused before the
// image grows. The returned block is zeroed.
func (blks *Blocks) Allocate() (bfs.BlockID, error) {
	blks.l.Lock()
	defer blks.l.Unlock()

	buf := make([]byte, blks.BlockSize())
	prev := blks.meta

	var id bfs.BlockID
	switch {
	case blks.meta.FreeLen > 0:
		id = bfs.BlockID(blks.meta.FreeHead)
		if err := blks.ReadBlock(id, buf); err != nil {
			return 0, err
		}
		blks.meta.FreeHead = binary.LittleEndian.Uint64(buf)
		blks.meta.FreeLen--
		clear(buf)
	case blks.meta.Next < blks.meta.Total:
		id = bfs.BlockID(blks.meta.Next)
		blks.meta.Next++
	default:
		blks.log.WithField("blocks", blks.meta.Total).Warn("block image is full")
		return 0, fmt.Errorf("blkfile: allocate: %w", bfs.ErrOutOfSpace)
	}

	if err := blks.WriteBlock(id, buf); err != nil {
		blks.meta = prev
		return 0, err
	}
	if err := blks.writeMeta(); err != nil {
		blks.meta = prev
		return 0, err
	}

	blks.log.WithField("block", id).Debug("allocated block")
	return id, nil
}

// Free implements bfs.Allocator. The freed block stores the previous free
// list head in its first 8 bytes.
func (blks *Blocks) Free(id bfs.BlockID) error {
	blks.l.Lock()
	defer blks.l.Unlock()

	if !blks.isData(id) {
		return fmt.Errorf("blkfile: free block %d: not an allocated data block: %w", id, bfs.ErrStorageFault)
	}

	buf := make([]byte, blks.BlockSize())
	binary.LittleEndian.PutUint64(buf, blks.meta.FreeHead)
	if err := blks.WriteBlock(id, buf); err != nil {
		return err
	}

	blks.meta.FreeHead = uint64(id)
	blks.meta.FreeLen++

	blks.log.WithField("block", id).Debug("freed block")
	return blks.writeMeta()
}

// Stat counts data blocks, leaving out the metadata and catalog blocks.
type Stat struct {
	BlockSize int
	Total     uint64
	Used      uint64
	Free      uint64
}

// Stat reports block usage.
func (blks *Blocks) Stat() Stat {
	blks.l.Lock()
	defer blks.l.Unlock()

	reserved := 1 + uint64(blks.meta.Catalog)
	total := blks.meta.Total - reserved
	used := blks.meta.Next - reserved - blks.meta.FreeLen

	return Stat{
		BlockSize: blks.BlockSize(),
		Total:     total,
		Used:      used,
		Free:      total - used,
	}
}
