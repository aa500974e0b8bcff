package streaming

import (
	"github.com/oshokin/ota-packager/internal/container"
	"github.com/oshokin/ota-packager/internal/payload"
)

// Metadata keys the property-files strings are stored under.
const (
	// StreamingKey names the streaming group for payload packages.
	StreamingKey = "ota-streaming-property-files"
	// PropertyKey names the general group present in every package.
	PropertyKey = "ota-property-files"
)

// Optional entries tokenized when the package carries them.
const (
	careMapEntry       = "care_map.txt"
	compatibilityEntry = "compatibility.zip"
)

// NewStreamingGroup returns the group listing everything a client needs
// to stream a payload package: the payload, its properties, and the
// optional care map and compatibility entries.
func NewStreamingGroup() *Group {
	return &Group{
		name:     StreamingKey,
		required: []string{payload.EntryName, payload.PropertiesEntryName},
		optional: []string{careMapEntry, compatibilityEntry},
	}
}

// NewPayloadGroup returns the streaming group under the general key,
// extended with a leading token covering the payload's own metadata
// region so clients can vet the payload before fetching the rest.
func NewPayloadGroup() *Group {
	group := NewStreamingGroup()
	group.name = PropertyKey
	group.precompute = payloadMetadataToken

	return group
}

// NewBlockGroup returns the general group for block-based packages,
// which expose only the metadata entry.
func NewBlockGroup() *Group {
	return &Group{name: PropertyKey}
}

// payloadMetadataToken resolves the archive range holding the payload
// header, manifest and metadata signature.
func payloadMetadataToken(r *container.Reader) ([]string, error) {
	offset, size, err := payload.MetadataRange(r, payload.EntryName)
	if err != nil {
		return nil, err
	}

	return []string{rangeToken(payload.MetadataTokenName, offset, size)}, nil
}
