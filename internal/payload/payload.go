package payload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/oshokin/ota-packager/internal/container"
	"github.com/oshokin/ota-packager/internal/run"
)

// Archive entry names for embedded payloads. A secondary payload updates
// the inactive slot without switching to it and lives under its own
// prefix so both payloads can share one package.
const (
	// EntryName is the payload entry of the primary payload.
	EntryName = "payload.bin"
	// PropertiesEntryName is the properties entry of the primary payload.
	PropertiesEntryName = "payload_properties.txt"
	// SecondaryEntryName is the payload entry of the secondary payload.
	SecondaryEntryName = "secondary/payload.bin"
	// SecondaryPropertiesEntryName is the properties entry of the
	// secondary payload.
	SecondaryPropertiesEntryName = "secondary/payload_properties.txt"
	// MetadataTokenName labels the payload metadata range in
	// property-files strings.
	MetadataTokenName = "payload_metadata.bin"
)

// signatureSize is the RSA signature size in bytes the generator is told
// to leave room for.
const signatureSize = 256

// Payload produces one update payload through the external generator
// tool and tracks the files it leaves behind.
type Payload struct {
	// tool is the generator command name.
	tool string
	// scratch is the directory intermediate files are written to.
	scratch string
	// secondary marks a payload for the inactive slot.
	secondary bool
	// path is the payload file, set by Generate and replaced by Sign.
	path string
	// propsPath is the payload properties file, set by Sign.
	propsPath string
}

// New returns a payload backed by the given generator tool, writing its
// intermediate files under scratchDir.
func New(tool, scratchDir string, secondary bool) *Payload {
	return &Payload{tool: tool, scratch: scratchDir, secondary: secondary}
}

// Generate produces the unsigned payload from a target build archive
// and, for incremental payloads, the source build archive.
func (p *Payload) Generate(ctx context.Context, targetPath, sourcePath string, extraArgs ...string) error {
	p.path = p.scratchFile("payload.bin")

	args := []string{
		"generate",
		"--payload", p.path,
		"--target_image", targetPath,
	}
	if sourcePath != "" {
		args = append(args, "--source_image", sourcePath)
	}

	args = append(args, extraArgs...)

	if _, err := run.Command(ctx, p.tool, args...); err != nil {
		return fmt.Errorf("generate payload: %w", err)
	}

	return nil
}

// Sign replaces the unsigned payload with a signed one and produces the
// payload properties. The generator hashes the payload, the signer signs
// both hashes out of band, and the generator stitches the signatures
// back in.
func (p *Payload) Sign(ctx context.Context, signer Signer, wipe bool) error {
	payloadHash := p.scratchFile("payload.hash")
	metadataHash := p.scratchFile("metadata.hash")

	hashArgs := []string{
		"hash",
		"--unsigned_payload", p.path,
		"--signature_size", strconv.Itoa(signatureSize),
		"--payload_hash_file", payloadHash,
		"--metadata_hash_file", metadataHash,
	}
	if _, err := run.Command(ctx, p.tool, hashArgs...); err != nil {
		return fmt.Errorf("hash payload: %w", err)
	}

	payloadSig, err := signer.Sign(ctx, payloadHash)
	if err != nil {
		return fmt.Errorf("sign payload hash: %w", err)
	}

	metadataSig, err := signer.Sign(ctx, metadataHash)
	if err != nil {
		return fmt.Errorf("sign payload metadata hash: %w", err)
	}

	signedPath := p.scratchFile("signed-payload.bin")

	signArgs := []string{
		"sign",
		"--unsigned_payload", p.path,
		"--payload", signedPath,
		"--signature_size", strconv.Itoa(signatureSize),
		"--payload_signature_file", payloadSig,
		"--metadata_signature_file", metadataSig,
	}
	if _, err := run.Command(ctx, p.tool, signArgs...); err != nil {
		return fmt.Errorf("sign payload: %w", err)
	}

	p.path = signedPath
	p.propsPath = p.scratchFile("payload_properties.txt")

	propArgs := []string{
		"properties",
		"--payload", p.path,
		"--properties_file", p.propsPath,
	}
	if _, err := run.Command(ctx, p.tool, propArgs...); err != nil {
		return fmt.Errorf("write payload properties: %w", err)
	}

	var extra []string
	if p.secondary {
		extra = append(extra, "SWITCH_SLOT_ON_REBOOT=0")
	}

	if wipe {
		extra = append(extra, "POWERWASH=1")
	}

	if err := appendProperties(p.propsPath, extra...); err != nil {
		return fmt.Errorf("write payload properties: %w", err)
	}

	return nil
}

// Embed writes the payload and its properties into the package as
// stored entries so clients can fetch them over ranged reads.
func (p *Payload) Embed(w *container.Writer) error {
	payloadName, propsName := EntryName, PropertiesEntryName
	if p.secondary {
		payloadName, propsName = SecondaryEntryName, SecondaryPropertiesEntryName
	}

	if err := w.WriteStoredFile(payloadName, p.path); err != nil {
		return err
	}

	return w.WriteStoredFile(propsName, p.propsPath)
}

// scratchFile returns a unique path under the scratch directory.
func (p *Payload) scratchFile(suffix string) string {
	return filepath.Join(p.scratch, uuid.NewString()+"-"+suffix)
}

// appendProperties appends key=value lines to a properties file.
func appendProperties(path string, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(f, line); err != nil {
			f.Close()
			return err
		}
	}

	return f.Close()
}
