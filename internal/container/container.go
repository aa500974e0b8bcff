package container

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// ErrEntryNotFound is returned when a named entry is absent from an archive.
var ErrEntryNotFound = errors.New("entry not found in archive")

// Writer assembles a ZIP archive. Writes go to a temporary file that
// replaces the destination only on Close, so an aborted run never leaves
// a partial archive behind.
type Writer struct {
	// dest is the final archive path.
	dest string
	// tmp is the temporary file receiving writes.
	tmp *os.File
	// zw is the underlying ZIP writer.
	zw *zip.Writer
}

// Create starts a new empty archive at the given path.
func Create(path string) (*Writer, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	return &Writer{
		dest: path,
		tmp:  tmp,
		zw:   zip.NewWriter(tmp),
	}, nil
}

// Append reopens an existing archive for adding entries. Existing entries
// are carried over byte-for-byte, preserving their compression method.
func Append(path string) (*Writer, error) {
	w, err := Create(path)
	if err != nil {
		return nil, err
	}

	if err := copyEntries(path, w.zw, nil); err != nil {
		w.abort()
		return nil, err
	}

	return w, nil
}

// WriteBytes adds an entry with the given content. Entries that must be
// byte-range addressable are stored uncompressed.
func (w *Writer) WriteBytes(name string, data []byte, store bool) error {
	header := &zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	}
	if store {
		header.Method = zip.Store
	}

	entry, err := w.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}

	if _, err := entry.Write(data); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}

	return nil
}

// WriteFile adds an entry with the content of a local file.
func (w *Writer) WriteFile(name, srcPath string) error {
	return w.writeFile(name, srcPath, false)
}

// WriteStoredFile adds an uncompressed entry with the content of a local
// file, keeping it byte-range addressable.
func (w *Writer) WriteStoredFile(name, srcPath string) error {
	return w.writeFile(name, srcPath, true)
}

func (w *Writer) writeFile(name, srcPath string, store bool) error {
	src, err := os.Open(filepath.Clean(srcPath))
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	header := &zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	}
	if store {
		header.Method = zip.Store
	}

	entry, err := w.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}

	if _, err := io.Copy(entry, src); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}

	return nil
}

// Close finishes the archive and atomically moves it into place.
func (w *Writer) Close() error {
	if err := w.zw.Close(); err != nil {
		w.abort()
		return fmt.Errorf("finish archive: %w", err)
	}

	if err := w.tmp.Close(); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("close archive: %w", err)
	}

	if err := os.Rename(w.tmp.Name(), w.dest); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("replace archive: %w", err)
	}

	return nil
}

// abort drops the temporary file after a failed write.
func (w *Writer) abort() {
	_ = w.zw.Close()
	_ = w.tmp.Close()
	_ = os.Remove(w.tmp.Name())
}

// Delete rewrites the archive without the named entries.
// Absent names are ignored.
func Delete(path string, names ...string) error {
	skip := make(map[string]struct{}, len(names))
	for _, name := range names {
		skip[name] = struct{}{}
	}

	w, err := Create(path)
	if err != nil {
		return err
	}

	if err := copyEntries(path, w.zw, skip); err != nil {
		w.abort()
		return err
	}

	return w.Close()
}

// copyEntries copies every entry of the archive at path into zw,
// byte-for-byte, skipping the given names.
func copyEntries(path string, zw *zip.Writer, skip map[string]struct{}) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if _, drop := skip[f.Name]; drop {
			continue
		}

		header := f.FileHeader

		entry, err := zw.CreateRaw(&header)
		if err != nil {
			return fmt.Errorf("copy entry %s: %w", f.Name, err)
		}

		raw, err := f.OpenRaw()
		if err != nil {
			return fmt.Errorf("copy entry %s: %w", f.Name, err)
		}

		if _, err := io.Copy(entry, raw); err != nil {
			return fmt.Errorf("copy entry %s: %w", f.Name, err)
		}
	}

	return nil
}
