package blkfile

import (
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"

	"github.com/keks/bfs"
)

// billyFile gives a billy.File the WriteAt it lacks.
type billyFile struct {
	f billy.File
}

// BillyFile wraps f so it can back a block image. Writes seek and then
// write, so the wrapper must not be shared with other users of f.
func BillyFile(f billy.File) bfs.ReadWriterAt {
	return &billyFile{f: f}
}

func (bf *billyFile) ReadAt(p []byte, off int64) (int, error) {
	n, err := bf.f.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("billy: readat %q off=%d: %w", bf.f.Name(), off, err)
	}
	return n, err
}

func (bf *billyFile) WriteAt(p []byte, off int64) (int, error) {
	if _, err := bf.f.Seek(off, io.SeekStart); err != nil {
		return 0, fmt.Errorf("billy: seek %q off=%d: %w", bf.f.Name(), off, err)
	}
	n, err := bf.f.Write(p)
	if err != nil {
		return n, fmt.Errorf("billy: write %q off=%d: %w", bf.f.Name(), off, err)
	}
	return n, nil
}
