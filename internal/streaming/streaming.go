package streaming

import (
	"fmt"
	"path"
	"strings"

	"github.com/oshokin/ota-packager/internal/container"
	"github.com/oshokin/ota-packager/internal/metadata"
)

// metadataPlaceholderWidth reserves room for the metadata token value:
// a 10-digit offset, a separating colon and a 4-digit length. Packages
// whose metadata entry falls outside those bounds cannot be described.
const metadataPlaceholderWidth = 15

// InsufficientSpaceError is returned when the final property-files
// string does not fit the space reserved for it during the first pass.
type InsufficientSpaceError struct {
	// Reserved is the length reserved by Compute.
	Reserved int
	// Actual is the length the final string turned out to need.
	Actual int
}

// Error names both lengths.
func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient space for property files: reserved %d bytes, need %d", e.Reserved, e.Actual)
}

// VerificationError is returned when a stored property-files string no
// longer matches the archive it describes.
type VerificationError struct {
	// Name is the property-files group that failed.
	Name string
	// Expected is the stored string, trailing padding stripped.
	Expected string
	// Actual is the string recomputed from the archive.
	Actual string
}

// Error names the group and both strings.
func (e *VerificationError) Error() string {
	return fmt.Sprintf("property files %s mismatch: stored %q, computed %q", e.Name, e.Expected, e.Actual)
}

// Group describes one property-files string: a named, ordered list of
// entry tokens resolved against an assembled archive. A token is
// "name:offset:length" where name is the base name of the entry and the
// offset and length bound the entry's content bytes in the archive file.
type Group struct {
	// name is the metadata key the string is stored under.
	name string
	// required lists entries that must be present in the archive.
	required []string
	// optional lists entries tokenized only when present.
	optional []string
	// precompute, when set, yields tokens placed before all entry
	// tokens. Used for ranges that are not whole archive entries.
	precompute func(r *container.Reader) ([]string, error)
}

// Name returns the metadata key the group's string is stored under.
func (g *Group) Name() string {
	return g.name
}

// Compute resolves the property-files string over an archive that does
// not carry its final metadata entry yet. The metadata token is emitted
// as a fixed-width placeholder so the string's length survives the
// second pass.
func (g *Group) Compute(r *container.Reader) (string, error) {
	return g.build(r, true)
}

// Finalize resolves the definitive property-files string over the
// finished archive and pads it with spaces to reservedLength, the length
// Compute reserved during the first pass.
func (g *Group) Finalize(r *container.Reader, reservedLength int) (string, error) {
	result, err := g.build(r, false)
	if err != nil {
		return "", err
	}

	if len(result) > reservedLength {
		return "", &InsufficientSpaceError{Reserved: reservedLength, Actual: len(result)}
	}

	return result + strings.Repeat(" ", reservedLength-len(result)), nil
}

// Verify recomputes the string from the archive and checks it against
// the stored value, tolerating the trailing padding Finalize added.
func (g *Group) Verify(r *container.Reader, expected string) error {
	actual, err := g.build(r, false)
	if err != nil {
		return err
	}

	trimmed := strings.TrimRight(expected, " ")
	if actual != trimmed {
		return &VerificationError{Name: g.name, Expected: trimmed, Actual: actual}
	}

	return nil
}

// build assembles the comma-separated token list: precomputed tokens
// first, then required entries, then whichever optional entries exist,
// with the metadata token always last.
func (g *Group) build(r *container.Reader, reserveMetadata bool) (string, error) {
	var tokens []string

	if g.precompute != nil {
		precomputed, err := g.precompute(r)
		if err != nil {
			return "", err
		}

		tokens = append(tokens, precomputed...)
	}

	for _, name := range g.required {
		token, err := entryToken(r, name)
		if err != nil {
			return "", err
		}

		tokens = append(tokens, token)
	}

	for _, name := range g.optional {
		if !r.Has(name) {
			continue
		}

		token, err := entryToken(r, name)
		if err != nil {
			return "", err
		}

		tokens = append(tokens, token)
	}

	if reserveMetadata {
		tokens = append(tokens, "metadata:"+strings.Repeat(" ", metadataPlaceholderWidth))
	} else {
		token, err := entryToken(r, metadata.Path)
		if err != nil {
			return "", err
		}

		tokens = append(tokens, token)
	}

	return strings.Join(tokens, ","), nil
}

// entryToken renders the token for one archive entry.
func entryToken(r *container.Reader, name string) (string, error) {
	offset, size, err := r.EntryOffsetSize(name)
	if err != nil {
		return "", err
	}

	return rangeToken(path.Base(name), offset, size), nil
}

// rangeToken renders a name:offset:length token.
func rangeToken(name string, offset, size int64) string {
	return fmt.Sprintf("%s:%d:%d", name, offset, size)
}
