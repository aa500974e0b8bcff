package builder

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oshokin/ota-packager/internal/container"
	"github.com/oshokin/ota-packager/internal/logger"
	"github.com/oshokin/ota-packager/internal/metadata"
	"github.com/oshokin/ota-packager/internal/payload"
)

// Supplementary entries of a payload package.
const (
	careMapSourceEntry     = "META/care_map.txt"
	careMapEntry           = "care_map.txt"
	compatibilityEntry     = "compatibility.zip"
	matrixEntrySuffix      = "_matrix.xml"
	matrixEntryPrefix      = "META/"
	postinstallConfigEntry = "META/postinstall_config.txt"
)

// stagePayloadPackage assembles the staged archive of a payload-based
// package: the signed payload, its properties and the supplementary
// entries streaming clients fetch alongside it.
func (b *builder) stagePayloadPackage(ctx context.Context, stagingPath string) error {
	w, err := container.Create(stagingPath)
	if err != nil {
		return err
	}

	if err := b.writePayloads(ctx, w); err != nil {
		w.Close()
		return err
	}

	if err := b.writeCareMap(ctx, w); err != nil {
		w.Close()
		return err
	}

	if err := b.writeCompatibility(ctx, w); err != nil {
		w.Close()
		return err
	}

	return w.Close()
}

// writePayloads generates, signs and embeds the primary payload and,
// when requested, a full secondary-slot payload.
func (b *builder) writePayloads(ctx context.Context, w *container.Writer) error {
	maxTimestamp, err := b.payloadTimestampBound()
	if err != nil {
		return err
	}

	targetFile, err := b.payloadTarget(ctx)
	if err != nil {
		return err
	}

	// The timestamp bound travels inside the payload so the updater can
	// refuse it on builds newer than the bound.
	extra := []string{"--max_timestamp", strconv.FormatInt(maxTimestamp, 10)}

	primary := payload.New(b.opts.PayloadTool, b.scratch, false)
	if err := primary.Generate(ctx, targetFile, b.opts.IncrementalSource, extra...); err != nil {
		return err
	}

	psigner := b.payloadSigner()

	if err := primary.Sign(ctx, psigner, b.opts.WipeUserData); err != nil {
		return err
	}

	if err := primary.Embed(w); err != nil {
		return err
	}

	if !b.opts.IncludeSecondary {
		return nil
	}

	logger.Info(ctx, "Generating secondary-slot payload")

	// The secondary payload is always a full one and never wipes: it only
	// freshens the inactive slot.
	secondary := payload.New(b.opts.PayloadTool, b.scratch, true)
	if err := secondary.Generate(ctx, targetFile, "",
		"--secondary", "--max_timestamp", strconv.FormatInt(maxTimestamp, 10)); err != nil {
		return err
	}

	if err := secondary.Sign(ctx, psigner, false); err != nil {
		return err
	}

	return secondary.Embed(w)
}

// payloadTarget returns the build archive the payload is generated
// from: the target itself, or a scratch copy with the postinstall
// configuration removed when postinstall hooks are to be dropped.
func (b *builder) payloadTarget(ctx context.Context) (string, error) {
	if !b.opts.SkipPostinstall {
		return b.opts.TargetFile, nil
	}

	logger.Info(ctx, "Stripping postinstall configuration from the target build")

	stripped := filepath.Join(b.scratch, "target-no-postinstall.zip")
	if err := copyFile(b.opts.TargetFile, stripped); err != nil {
		return "", err
	}

	if err := container.Delete(stripped, postinstallConfigEntry); err != nil {
		return "", err
	}

	return stripped, nil
}

// payloadTimestampBound returns the newest build timestamp the payload
// may be applied on top of. Downgrade packages are bounded by the source
// build so the device still accepts them.
func (b *builder) payloadTimestampBound() (int64, error) {
	if b.opts.Downgrade {
		return metadata.BuildTimestamp(b.sourceInfo)
	}

	return metadata.BuildTimestamp(b.targetInfo)
}

// payloadSigner returns the payload-hash signer for the run.
func (b *builder) payloadSigner() payload.Signer {
	if b.opts.PayloadSigner != "" {
		return payload.NewCommandSigner(b.opts.PayloadSigner, b.opts.PayloadSignerArgs, b.scratch)
	}

	return payload.NewOpenSSLSigner(b.opts.PackageKey+".pem", b.scratch)
}

// writeCareMap carries the partition care map over from the target
// build, stored so clients can fetch it by range. The care map only
// means anything on verified builds.
func (b *builder) writeCareMap(ctx context.Context, w *container.Writer) error {
	verity, _ := b.targetInfo.Value("verity")
	avb, _ := b.targetInfo.Value("avb_enable")

	if verity != "true" && avb != "true" {
		return nil
	}

	if !b.target.Has(careMapSourceEntry) {
		return nil
	}

	data, err := b.target.ReadEntry(careMapSourceEntry)
	if err != nil {
		return err
	}

	logger.DebugKV(ctx, "Embedding care map", "bytes", len(data))

	return w.WriteBytes(careMapEntry, data, true)
}

// writeCompatibility bundles the target build's compatibility matrices
// into a nested archive checked by the updater before installing.
// Builds without enforced interface versioning carry no matrices worth
// checking.
func (b *builder) writeCompatibility(ctx context.Context, w *container.Writer) error {
	if treble, _ := b.targetInfo.Value("treble_enabled"); treble != "true" {
		return nil
	}

	var matrices []string

	for _, name := range b.target.Names() {
		if strings.HasPrefix(name, matrixEntryPrefix) && strings.HasSuffix(name, matrixEntrySuffix) {
			matrices = append(matrices, name)
		}
	}

	if len(matrices) == 0 {
		return nil
	}

	logger.DebugKV(ctx, "Embedding compatibility matrices", "count", len(matrices))

	nestedPath := filepath.Join(b.scratch, compatibilityEntry)

	nested, err := container.Create(nestedPath)
	if err != nil {
		return err
	}

	for _, name := range matrices {
		data, err := b.target.ReadEntry(name)
		if err != nil {
			nested.Close()
			return err
		}

		if err := nested.WriteBytes(filepath.Base(name), data, false); err != nil {
			nested.Close()
			return err
		}
	}

	if err := nested.Close(); err != nil {
		return err
	}

	return w.WriteStoredFile(compatibilityEntry, nestedPath)
}
