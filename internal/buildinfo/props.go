package buildinfo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ParseProps reads a key=value property listing. Blank lines and lines
// starting with '#' are skipped; values may contain '='.
func ParseProps(contents string) map[string]string {
	props := make(map[string]string)

	scanner := bufio.NewScanner(strings.NewReader(contents))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return props
}

// LoadOemDicts reads the OEM property files named on the command line.
// The first dictionary is authoritative for identity; the rest feed
// assertion checks only.
func LoadOemDicts(paths []string) ([]map[string]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	dicts := make([]map[string]string, 0, len(paths))

	for _, path := range paths {
		contents, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read OEM properties: %w", err)
		}

		dicts = append(dicts, ParseProps(string(contents)))
	}

	return dicts, nil
}

// FstabEntry describes one mount point of the recovery fstab.
type FstabEntry struct {
	// Device is the block device backing the mount point.
	Device string
	// MountPoint is the filesystem location.
	MountPoint string
	// Type is the filesystem or raw partition type.
	Type string
}

// ParseFstab reads a recovery fstab listing mapping mount points to their
// backing devices and types. Lines are "device mountpoint type ...".
func ParseFstab(contents string) map[string]FstabEntry {
	fstab := make(map[string]FstabEntry)

	scanner := bufio.NewScanner(strings.NewReader(contents))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}

		fstab[fields[1]] = FstabEntry{
			Device:     fields[0],
			MountPoint: fields[1],
			Type:       fields[2],
		}
	}

	return fstab
}
