package bfs

import "errors"

var (
	ErrBadHandle       = errors.New("bad file handle")
	ErrInvalidOffset   = errors.New("invalid offset")
	ErrInvalidSeekMode = errors.New("invalid seek mode")
	ErrOutOfSpace      = errors.New("out of space")
	ErrStorageFault    = errors.New("storage fault")
	ErrNotMapped       = errors.New("block not mapped")

	ErrFileNotFound = errors.New("file not found")
	ErrInvalidName  = errors.New("invalid file name")
	ErrCatalogFull  = errors.New("catalog is full")
	ErrFileBusy     = errors.New("file is open")
	ErrBadImage     = errors.New("not a bfs image")
	ErrNoDisk       = errors.New("disk image not found")
)
