package builder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/oshokin/ota-packager/internal/blockdiff"
	"github.com/oshokin/ota-packager/internal/buildinfo"
	"github.com/oshokin/ota-packager/internal/container"
	"github.com/oshokin/ota-packager/internal/logger"
	"github.com/oshokin/ota-packager/internal/metadata"
	"github.com/oshokin/ota-packager/internal/script"
	"github.com/oshokin/ota-packager/internal/twostep"
)

// Build archive entries consumed by block packaging.
const (
	bootImageEntry     = "IMAGES/boot.img"
	recoveryImageEntry = "IMAGES/recovery.img"
	systemImageEntry   = "IMAGES/system.img"
	vendorImageEntry   = "IMAGES/vendor.img"
	updaterBinaryEntry = "OTA/bin/updater"
)

// Package entries produced by block packaging.
const (
	packageBootEntry     = "boot.img"
	packageRecoveryEntry = "recovery.img"
)

// imagePatchTool diffs whole partition images for in-place patching.
const imagePatchTool = "imgdiff"

// stageBlockPackage assembles the staged archive of a block-based
// package: the install script, the interpreter binary and the data the
// script applies.
func (b *builder) stageBlockPackage(ctx context.Context, stagingPath string, md *metadata.Metadata) error {
	w, err := container.Create(stagingPath)
	if err != nil {
		return err
	}

	sink := script.NewEdify()

	if b.sourceInfo == nil {
		err = b.writeFullBlock(ctx, w, sink)
	} else {
		err = b.writeIncrementalBlock(ctx, w, sink)
	}

	if err != nil {
		w.Close()
		return err
	}

	md.Set(metadata.KeyRequiredCache, strconv.FormatInt(sink.RequiredCache(), 10))

	updaterPath, err := b.updaterBinary()
	if err != nil {
		w.Close()
		return err
	}

	if err := sink.AddToContainer(w, updaterPath); err != nil {
		w.Close()
		return err
	}

	return w.Close()
}

// writeFullBlock stages a full rewrite of every updated partition.
func (b *builder) writeFullBlock(ctx context.Context, w *container.Writer, sink script.Sink) error {
	if err := b.writeIdentityChecks(sink, b.targetInfo); err != nil {
		return err
	}

	machine, err := b.openTwoStep(w, sink, func(m *twostep.Machine) { m.OpenFull() })
	if err != nil {
		return err
	}

	sink.ShowProgress(0.75, 0)

	if b.opts.WipeUserData {
		sink.FormatPartition("/data")
	}

	diffs, err := b.partitionDiffs(ctx, false)
	if err != nil {
		return err
	}

	for _, d := range diffs {
		sink.Print(fmt.Sprintf("Writing %s partition...", d.Partition()))
		d.WriteUpdate(sink)

		if err := d.Embed(w); err != nil {
			return err
		}
	}

	if err := b.embedEntry(w, bootImageEntry, packageBootEntry); err != nil {
		return err
	}

	sink.ShowProgress(0.05, 5)
	sink.WriteRawImage("/boot", packageBootEntry)

	if err := b.appendExtraScript(sink); err != nil {
		return err
	}

	if machine != nil {
		machine.CloseFull()
	}

	sink.SetProgress(1.0)
	sink.UnmountAll()

	return nil
}

// writeIncrementalBlock stages a source-to-target update: everything is
// verified against the source build before the first write.
func (b *builder) writeIncrementalBlock(ctx context.Context, w *container.Writer, sink script.Sink) error {
	if err := b.writeIdentityChecks(sink, b.sourceInfo); err != nil {
		return err
	}

	b.writeBuildChecks(sink)

	machine, err := b.openTwoStep(w, sink, func(m *twostep.Machine) { m.OpenIncremental() })
	if err != nil {
		return err
	}

	// A staged install boots from the flashed image between stages, so
	// the boot partition is always rewritten in full there.
	var bootPatch *blockdiff.FilePatch

	if !b.opts.TwoStep {
		if bootPatch, err = b.bootPatch(ctx); err != nil {
			return err
		}
	}

	diffs, err := b.partitionDiffs(ctx, true)
	if err != nil {
		return err
	}

	// Verification stage.
	sink.ShowProgress(0.1, 0)

	if bootPatch != nil {
		bootPatch.WriteVerify(sink)
	}

	for _, d := range diffs {
		d.WriteVerify(sink)
	}

	if machine != nil {
		machine.ScheduleUpdate()
	}

	// Update stage.
	sink.ShowProgress(0.8, 0)

	if b.opts.WipeUserData {
		sink.FormatPartition("/data")
	}

	for _, d := range diffs {
		sink.Print(fmt.Sprintf("Patching %s partition...", d.Partition()))
		d.WriteUpdate(sink)

		if err := d.Embed(w); err != nil {
			return err
		}
	}

	switch {
	case b.opts.TwoStep:
		if err := b.embedEntry(w, bootImageEntry, packageBootEntry); err != nil {
			return err
		}

		sink.Print("Writing boot image...")
		sink.WriteRawImage("/boot", packageBootEntry)
	case bootPatch != nil:
		sink.Print("Patching boot image...")
		bootPatch.WriteApply(sink)

		if err := bootPatch.Embed(w); err != nil {
			return err
		}
	default:
		sink.Print("Boot image unchanged, skipping...")
	}

	if err := b.appendExtraScript(sink); err != nil {
		return err
	}

	if machine != nil {
		machine.CloseIncremental()
	}

	sink.SetProgress(1.0)
	sink.UnmountAll()

	return nil
}

// writeIdentityChecks emits the device identity assertions, mounting the
// OEM partition first when identity lives there. An OEM-scoped property
// no dictionary defines is an error: a package missing any of its
// identity assertions could install on the wrong device.
func (b *builder) writeIdentityChecks(sink script.Sink, info *buildinfo.Info) error {
	if info.UsesOEMProperties() && !b.opts.OemNoMount {
		info.WriteMountOemScript(sink)
	}

	return info.WriteDeviceAssertions(sink, b.opts.OemNoMount)
}

// writeBuildChecks emits the source-or-target build check so a resumed
// install is accepted on an already half-updated device.
func (b *builder) writeBuildChecks(sink script.Sink) {
	if b.targetInfo.UsesOEMProperties() || b.sourceInfo.UsesOEMProperties() {
		sourceTP, err := b.sourceInfo.Property(buildinfo.NamespaceBuild, "ro.build.thumbprint")
		if err != nil {
			sourceTP = ""
		}

		targetTP, err := b.targetInfo.Property(buildinfo.NamespaceBuild, "ro.build.thumbprint")
		if err != nil {
			targetTP = ""
		}

		sink.AssertSomeThumbprint(targetTP, sourceTP)

		return
	}

	sink.AssertSomeFingerprint(b.sourceInfo.Fingerprint(), b.targetInfo.Fingerprint())
}

// openTwoStep validates and opens the staged install flow when it was
// requested, embedding the recovery image the middle stage flashes.
func (b *builder) openTwoStep(w *container.Writer, sink script.Sink, open func(*twostep.Machine)) (*twostep.Machine, error) {
	if !b.opts.TwoStep {
		return nil, nil
	}

	markerDev, err := twostep.MarkerDevice(b.targetInfo)
	if err != nil {
		return nil, err
	}

	if err := b.embedEntry(w, recoveryImageEntry, packageRecoveryEntry); err != nil {
		return nil, err
	}

	machine := twostep.New(sink, markerDev, packageRecoveryEntry)
	open(machine)

	return machine, nil
}

// partitionDiffs computes the block-level updates of every diffable
// partition the target build carries.
func (b *builder) partitionDiffs(ctx context.Context, incremental bool) ([]*blockdiff.Difference, error) {
	var diffs []*blockdiff.Difference

	for _, part := range []struct {
		name       string
		mountPoint string
		entry      string
	}{
		{name: "system", mountPoint: "/system", entry: systemImageEntry},
		{name: "vendor", mountPoint: "/vendor", entry: vendorImageEntry},
	} {
		if !b.target.Has(part.entry) {
			continue
		}

		device, err := b.partitionDevice(part.mountPoint)
		if err != nil {
			return nil, err
		}

		targetImage, err := b.extractImage(b.target, part.entry)
		if err != nil {
			return nil, err
		}

		var sourceImage string

		if incremental {
			if sourceImage, err = b.extractImage(b.source, part.entry); err != nil {
				return nil, err
			}
		}

		logger.InfoKV(ctx, "Computing block difference", "partition", part.name)

		d, err := blockdiff.Compute(ctx, b.opts.BlockDiffTool, b.scratch, part.name,
			device, targetImage, sourceImage, b.opts.WorkerThreads)
		if err != nil {
			return nil, err
		}

		diffs = append(diffs, d)
	}

	return diffs, nil
}

// bootPatch diffs the boot images of the two builds, or reports nil when
// they are identical.
func (b *builder) bootPatch(ctx context.Context) (*blockdiff.FilePatch, error) {
	targetBoot, err := b.target.ReadEntry(bootImageEntry)
	if err != nil {
		return nil, err
	}

	sourceBoot, err := b.source.ReadEntry(bootImageEntry)
	if err != nil {
		return nil, err
	}

	if bytes.Equal(targetBoot, sourceBoot) {
		return nil, nil
	}

	device, err := b.partitionDevice("/boot")
	if err != nil {
		return nil, err
	}

	targetPath, err := b.extractImage(b.target, bootImageEntry)
	if err != nil {
		return nil, err
	}

	sourcePath := targetPath + ".src"
	if err := b.source.ExtractEntry(bootImageEntry, sourcePath); err != nil {
		return nil, err
	}

	logger.Info(ctx, "Computing boot image patch")

	return blockdiff.ComputeFilePatch(ctx, imagePatchTool, b.scratch, "boot",
		device, targetPath, sourcePath)
}

// partitionDevice resolves the block device behind a mount point.
func (b *builder) partitionDevice(mountPoint string) (string, error) {
	entry, ok := b.targetInfo.Fstab(mountPoint)
	if !ok {
		return "", fmt.Errorf("no fstab entry for %s", mountPoint)
	}

	return entry.Device, nil
}

// embedEntry copies a build archive entry into the package.
func (b *builder) embedEntry(w *container.Writer, sourceEntry, packageEntry string) error {
	data, err := b.target.ReadEntry(sourceEntry)
	if err != nil {
		return err
	}

	return w.WriteBytes(packageEntry, data, false)
}

// updaterBinary resolves the install interpreter: an explicit override,
// or the one the target build ships.
func (b *builder) updaterBinary() (string, error) {
	if b.opts.UpdaterBinary != "" {
		return b.opts.UpdaterBinary, nil
	}

	if !b.target.Has(updaterBinaryEntry) {
		return "", nil
	}

	return b.extractImage(b.target, updaterBinaryEntry)
}

// appendExtraScript appends the operator-supplied script fragment.
func (b *builder) appendExtraScript(sink script.Sink) error {
	if b.opts.ExtraScript == "" {
		return nil
	}

	content, err := os.ReadFile(b.opts.ExtraScript)
	if err != nil {
		return fmt.Errorf("read extra script: %w", err)
	}

	sink.AppendExtra(string(content))

	return nil
}
