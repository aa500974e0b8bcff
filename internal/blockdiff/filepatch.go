package blockdiff

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/oshokin/ota-packager/internal/container"
	"github.com/oshokin/ota-packager/internal/run"
	"github.com/oshokin/ota-packager/internal/script"
)

// FilePatch is a whole-file binary patch between two partition images,
// used for partitions updated as single files rather than block lists.
type FilePatch struct {
	// partition is the partition name, for example "boot".
	partition string
	// device is the block device holding the image.
	device string
	// patchPath is the patch file on disk.
	patchPath string
	// targetSize is the patched image size in bytes.
	targetSize int64
	// targetSHA1 and sourceSHA1 identify the two image states.
	targetSHA1 string
	sourceSHA1 string
}

// ComputeFilePatch diffs two partition images with the given patching
// tool, which is invoked as "tool source target patch".
func ComputeFilePatch(ctx context.Context, tool, scratchDir, partition, device,
	targetImage, sourceImage string) (*FilePatch, error) {
	target, err := readImage(targetImage)
	if err != nil {
		return nil, err
	}

	source, err := readImage(sourceImage)
	if err != nil {
		return nil, err
	}

	p := &FilePatch{
		partition:  partition,
		device:     device,
		patchPath:  filepath.Join(scratchDir, partition+".img.p"),
		targetSize: int64(len(target)),
		targetSHA1: sha1Hex(target),
		sourceSHA1: sha1Hex(source),
	}

	if _, err := run.Command(ctx, tool, sourceImage, targetImage, p.patchPath); err != nil {
		return nil, fmt.Errorf("diff %s image: %w", partition, err)
	}

	return p, nil
}

// sha1Hex renders the SHA-1 of data, the digest the install-time
// patcher checks images against.
func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// PatchEntry names the patch entry in the package.
func (p *FilePatch) PatchEntry() string {
	return "patch/" + p.partition + ".img.p"
}

// targetSpec renders the partition reference the install-time patcher
// understands: device, size and digest of one image state.
func (p *FilePatch) targetSpec(sha string) string {
	return fmt.Sprintf("EMMC:%s:%d:%s", p.device, p.targetSize, sha)
}

// Embed writes the patch file into the package.
func (p *FilePatch) Embed(w *container.Writer) error {
	return w.WriteFile(p.PatchEntry(), p.patchPath)
}

// WriteVerify emits the check that the partition holds either image
// state, so an interrupted install can resume.
func (p *FilePatch) WriteVerify(sink script.Sink) {
	sink.PatchCheck(p.targetSpec(p.targetSHA1), p.sourceSHA1)
}

// WriteApply emits the in-place patch of the partition.
func (p *FilePatch) WriteApply(sink script.Sink) {
	sink.ApplyPatch(p.targetSpec(p.sourceSHA1), "-", p.targetSize,
		p.targetSHA1, p.sourceSHA1, p.PatchEntry())
}
