package container

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// Reader provides read-only access to an assembled archive.
type Reader struct {
	// path is the archive location on disk.
	path string
	// rc is the underlying ZIP reader.
	rc *zip.ReadCloser
}

// Open opens an existing archive for reading.
func Open(path string) (*Reader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}

	return &Reader{path: path, rc: rc}, nil
}

// Close releases the archive.
func (r *Reader) Close() error {
	return r.rc.Close()
}

// Path returns the archive location on disk.
func (r *Reader) Path() string {
	return r.path
}

// Names lists the entry names in archive order.
func (r *Reader) Names() []string {
	names := make([]string, 0, len(r.rc.File))
	for _, f := range r.rc.File {
		names = append(names, f.Name)
	}

	return names
}

// Has reports whether the archive contains the named entry.
func (r *Reader) Has(name string) bool {
	_, err := r.find(name)
	return err == nil
}

// EntryOffsetSize resolves the byte offset of the entry's first content
// byte and the content length. For stored entries this range maps directly
// onto the archive file, which is what streaming clients fetch.
func (r *Reader) EntryOffsetSize(name string) (offset, size int64, err error) {
	f, err := r.find(name)
	if err != nil {
		return 0, 0, err
	}

	offset, err = f.DataOffset()
	if err != nil {
		return 0, 0, fmt.Errorf("entry %s: %w", name, err)
	}

	return offset, int64(f.UncompressedSize64), nil
}

// ReadEntry returns the full decompressed content of the named entry.
func (r *Reader) ReadEntry(name string) ([]byte, error) {
	f, err := r.find(name)
	if err != nil {
		return nil, err
	}

	rd, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", name, err)
	}
	defer rd.Close()

	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", name, err)
	}

	return data, nil
}

// ReadEntryPrefix returns the first n content bytes of the named entry.
func (r *Reader) ReadEntryPrefix(name string, n int) ([]byte, error) {
	f, err := r.find(name)
	if err != nil {
		return nil, err
	}

	rd, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", name, err)
	}
	defer rd.Close()

	buf := make([]byte, n)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return nil, fmt.Errorf("read entry %s: %w", name, err)
	}

	return buf, nil
}

// ExtractEntry writes the decompressed content of the named entry to a
// local file.
func (r *Reader) ExtractEntry(name, destPath string) error {
	data, err := r.ReadEntry(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("extract entry %s: %w", name, err)
	}

	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return fmt.Errorf("extract entry %s: %w", name, err)
	}

	return nil
}

// find locates an entry by exact name.
func (r *Reader) find(name string) (*zip.File, error) {
	for _, f := range r.rc.File {
		if f.Name == name {
			return f, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", name, ErrEntryNotFound)
}
