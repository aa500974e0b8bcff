package payload

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/oshokin/ota-packager/internal/container"
)

// The payload file opens with a fixed header: a 4-byte magic, the format
// version, the manifest size and the metadata signature size, all
// big-endian.
const (
	headerMagic = "CrAU"
	headerSize  = 24
)

// ErrBadPayloadMagic is returned when an entry claimed to be a payload
// does not open with the payload magic.
var ErrBadPayloadMagic = errors.New("payload magic mismatch")

// MetadataRange resolves the archive byte range covering the payload's
// metadata region: the header itself, the manifest and the metadata
// signature. The entry must be stored uncompressed for the range to map
// onto the archive file.
func MetadataRange(r *container.Reader, entryName string) (offset, size int64, err error) {
	entryOffset, entrySize, err := r.EntryOffsetSize(entryName)
	if err != nil {
		return 0, 0, err
	}

	header, err := r.ReadEntryPrefix(entryName, headerSize)
	if err != nil {
		return 0, 0, err
	}

	if string(header[:4]) != headerMagic {
		return 0, 0, fmt.Errorf("entry %s: %w", entryName, ErrBadPayloadMagic)
	}

	manifestSize := binary.BigEndian.Uint64(header[12:20])
	signatureSize := binary.BigEndian.Uint32(header[20:24])

	metadataSize := int64(headerSize) + int64(manifestSize) + int64(signatureSize)
	if metadataSize >= entrySize {
		return 0, 0, fmt.Errorf("entry %s: metadata region %d exceeds payload size %d",
			entryName, metadataSize, entrySize)
	}

	return entryOffset, metadataSize, nil
}
