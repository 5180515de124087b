package resource

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/mmap"
)

// Source is a byte-addressable view of the input file. The file is
// streamed through record-aligned chunk reads; it is never materialized
// in memory at once.
type Source struct {
	ra   io.ReaderAt
	size int64

	closers []io.Closer
}

// OpenSource opens a file for chunked reading. It prefers a memory map
// and falls back to plain file reads when mapping fails (some platforms
// and filesystems refuse maps).
func OpenSource(path string) (*Source, error) {
	if ra, err := mmap.Open(path); err == nil {
		return &Source{
			ra:      ra,
			size:    int64(ra.Len()),
			closers: []io.Closer{ra},
		}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("resource: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("resource: stat %s: %w", path, err)
	}
	return &Source{
		ra:      f,
		size:    info.Size(),
		closers: []io.Closer{f},
	}, nil
}

// Size returns the file size in bytes.
func (s *Source) Size() int64 { return s.size }

// ReaderAt exposes the underlying reader for format probing.
func (s *Source) ReaderAt() io.ReaderAt { return s.ra }

// ReadRange reads [off, off+len(dst)) into dst. Short reads are errors:
// chunk boundaries are planned inside the file, so anything short means
// the file changed or the read failed.
func (s *Source) ReadRange(dst []byte, off int64) error {
	n, err := s.ra.ReadAt(dst, off)
	if err != nil && err != io.EOF {
		return fmt.Errorf("resource: read %d bytes at %d: %w", len(dst), off, err)
	}
	if n != len(dst) {
		return fmt.Errorf("resource: short read at %d: %d of %d bytes", off, n, len(dst))
	}
	return nil
}

// Close releases the map or file handle.
func (s *Source) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
