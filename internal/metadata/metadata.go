package metadata

import (
	"sort"
	"strings"
)

// Path is the fixed container location of the metadata entry.
const Path = "META-INF/com/android/metadata"

// Well-known metadata keys.
const (
	KeyPostBuild            = "post-build"
	KeyPostBuildIncremental = "post-build-incremental"
	KeyPostSDKLevel         = "post-sdk-level"
	KeyPostSecurityPatch    = "post-security-patch-level"
	KeyPostTimestamp        = "post-timestamp"
	KeyPreBuild             = "pre-build"
	KeyPreBuildIncremental  = "pre-build-incremental"
	KeyPreDevice            = "pre-device"
	KeyType                 = "ota-type"
	KeyRequiredCache        = "ota-required-cache"
	KeyWipe                 = "ota-wipe"
	KeyDowngrade            = "ota-downgrade"
)

// Package type values for KeyType.
const (
	// TypeAB marks a payload-based package.
	TypeAB = "AB"
	// TypeBlock marks a block-patch-based package.
	TypeBlock = "BLOCK"
)

// Metadata is the package metadata record: unique string keys mapped to
// string values. Values may be replaced while the package is finalized,
// never merged.
type Metadata struct {
	values map[string]string
}

// New returns an empty metadata record.
func New() *Metadata {
	return &Metadata{values: make(map[string]string)}
}

// Set stores a value, replacing any previous one.
func (m *Metadata) Set(key, value string) {
	m.values[key] = value
}

// Get returns the value for a key.
func (m *Metadata) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Marshal renders the record as a newline-separated key=value listing
// with keys sorted ascending.
func (m *Metadata) Marshal() []byte {
	keys := make([]string, 0, len(m.values))
	for key := range m.values {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(m.values[key])
		b.WriteByte('\n')
	}

	return []byte(b.String())
}
