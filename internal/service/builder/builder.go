package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oshokin/ota-packager/internal/buildinfo"
	"github.com/oshokin/ota-packager/internal/config"
	"github.com/oshokin/ota-packager/internal/container"
	"github.com/oshokin/ota-packager/internal/finalize"
	"github.com/oshokin/ota-packager/internal/logger"
	"github.com/oshokin/ota-packager/internal/metadata"
	"github.com/oshokin/ota-packager/internal/signer"
	"github.com/oshokin/ota-packager/internal/streaming"
)

var (
	// errAlreadyRunning indicates another packaging run owns the machine.
	errAlreadyRunning = errors.New("another packager instance is running now")
	// errTwoStepOnPayload indicates the staged install flow was requested
	// for a payload-based build, which installs in one pass by design of
	// its updater.
	errTwoStepOnPayload = errors.New("two-step flow is not available for payload-based builds")
)

// builder carries the state of one packaging run.
type builder struct {
	// opts are the validated run options.
	opts *config.Options
	// scratch is the run's private temporary directory.
	scratch string
	// target reads the target build archive.
	target *container.Reader
	// source reads the source build archive, nil for full packages.
	source *container.Reader
	// targetInfo and sourceInfo are the resolved build identities.
	targetInfo *buildinfo.Info
	sourceInfo *buildinfo.Info
}

// Run executes the packaging workflow end to end. On failure no output
// file is left behind.
func Run(ctx context.Context, opts *config.Options) error {
	ctx = logger.WithName(ctx, "ota-packager")

	if err := opts.Validate(); err != nil {
		return err
	}

	if IsAnotherInstanceRunning(ctx) {
		return errAlreadyRunning
	}

	b, err := newBuilder(ctx, opts)
	if err != nil {
		return err
	}
	defer b.cleanup(ctx)

	if err := b.run(ctx); err != nil {
		// A half-written package must not be mistaken for a good one.
		_ = os.Remove(opts.OutputFile)
		return err
	}

	logger.InfoKV(ctx, "Package written", "path", opts.OutputFile)

	return nil
}

// newBuilder opens the build archives and resolves both build identities.
func newBuilder(ctx context.Context, opts *config.Options) (*builder, error) {
	scratch, err := os.MkdirTemp("", "ota-packager-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}

	b := &builder{opts: opts, scratch: scratch}

	oemDicts, err := buildinfo.LoadOemDicts(opts.OemSettings)
	if err != nil {
		b.cleanup(ctx)
		return nil, err
	}

	if b.target, err = container.Open(opts.TargetFile); err != nil {
		b.cleanup(ctx)
		return nil, err
	}

	if b.targetInfo, err = buildinfo.Load(b.target, oemDicts, opts.DeviceOverride); err != nil {
		b.cleanup(ctx)
		return nil, err
	}

	logger.InfoKV(ctx, "Target build resolved",
		"fingerprint", b.targetInfo.Fingerprint(), "device", b.targetInfo.Device())

	if opts.IncrementalSource != "" {
		if b.source, err = container.Open(opts.IncrementalSource); err != nil {
			b.cleanup(ctx)
			return nil, err
		}

		if b.sourceInfo, err = buildinfo.Load(b.source, oemDicts, opts.DeviceOverride); err != nil {
			b.cleanup(ctx)
			return nil, err
		}

		logger.InfoKV(ctx, "Source build resolved",
			"fingerprint", b.sourceInfo.Fingerprint(), "device", b.sourceInfo.Device())
	}

	return b, nil
}

// run stages the package for the build's install flavor and finalizes it.
func (b *builder) run(ctx context.Context) error {
	md, err := metadata.FromBuildInfo(b.targetInfo, b.sourceInfo, b.opts)
	if err != nil {
		return err
	}

	stagingPath := filepath.Join(b.scratch, "staging.zip")

	var groups []*streaming.Group

	if b.targetInfo.IsAB() {
		if b.opts.TwoStep {
			return errTwoStepOnPayload
		}

		if err := b.stagePayloadPackage(ctx, stagingPath); err != nil {
			return err
		}

		groups = []*streaming.Group{streaming.NewStreamingGroup(), streaming.NewPayloadGroup()}
	} else {
		if err := b.stageBlockPackage(ctx, stagingPath, md); err != nil {
			return err
		}

		groups = []*streaming.Group{streaming.NewBlockGroup()}
	}

	return finalize.Package(ctx, md, stagingPath, b.opts.OutputFile,
		groups, b.packageSigner(), b.scratch)
}

// packageSigner returns the whole-package signer for the run.
func (b *builder) packageSigner() signer.Signer {
	if b.opts.NoSigning {
		return signer.CopySigner{}
	}

	return signer.NewCommandSigner(b.opts.SignerCommand, b.opts.SignerArgs,
		b.opts.PackageKey, b.opts.KeyPassword)
}

// copyFile duplicates a local file.
func copyFile(srcPath, destPath string) error {
	src, err := os.Open(filepath.Clean(srcPath))
	if err != nil {
		return fmt.Errorf("copy %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("copy %s: %w", srcPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy %s: %w", srcPath, err)
	}

	return dst.Close()
}

// extractImage pulls a target archive entry into the scratch directory.
func (b *builder) extractImage(r *container.Reader, entryName string) (string, error) {
	path := filepath.Join(b.scratch, filepath.Base(entryName))
	if err := r.ExtractEntry(entryName, path); err != nil {
		return "", err
	}

	return path, nil
}

// cleanup releases the archives and the scratch directory.
func (b *builder) cleanup(ctx context.Context) {
	if b.target != nil {
		if err := b.target.Close(); err != nil {
			logger.WarnKV(ctx, "Closing target archive failed", "error", err)
		}

		b.target = nil
	}

	if b.source != nil {
		if err := b.source.Close(); err != nil {
			logger.WarnKV(ctx, "Closing source archive failed", "error", err)
		}

		b.source = nil
	}

	if b.scratch != "" {
		if err := os.RemoveAll(b.scratch); err != nil {
			logger.WarnKV(ctx, "Removing scratch directory failed", "error", err)
		}

		b.scratch = ""
	}
}
