package blockdiff

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oshokin/ota-packager/internal/container"
	"github.com/oshokin/ota-packager/internal/run"
	"github.com/oshokin/ota-packager/internal/script"
)

// Difference is one partition's block-level update: a transfer list
// plus the new-data and patch-data blobs the diffing tool produced.
type Difference struct {
	// partition is the partition name, for example "system".
	partition string
	// device is the block device the update is applied to.
	device string
	// transferPath, newDataPath and patchPath are the tool's output
	// files on disk.
	transferPath string
	newDataPath  string
	patchPath    string
	// incremental marks an update computed against a source image.
	incremental bool
	// requiredCache is the stash space the transfer list needs on
	// /cache, in bytes.
	requiredCache int64
}

// Compute runs the diffing tool over the partition images. An empty
// sourceImage produces a full rewrite of the partition; otherwise the
// transfer list patches the source in place, stashing through /cache.
func Compute(ctx context.Context, tool, scratchDir, partition, device,
	targetImage, sourceImage string, workers int) (*Difference, error) {
	d := &Difference{
		partition:    partition,
		device:       device,
		transferPath: filepath.Join(scratchDir, partition+".transfer.list"),
		newDataPath:  filepath.Join(scratchDir, partition+".new.dat"),
		patchPath:    filepath.Join(scratchDir, partition+".patch.dat"),
		incremental:  sourceImage != "",
	}

	args := []string{
		"--threads", strconv.Itoa(workers),
		"--transfer_list", d.transferPath,
		"--new_data", d.newDataPath,
		"--patch_data", d.patchPath,
		"--target", targetImage,
	}
	if sourceImage != "" {
		args = append(args, "--source", sourceImage)
	}

	out, err := run.Command(ctx, tool, args...)
	if err != nil {
		return nil, fmt.Errorf("diff %s partition: %w", partition, err)
	}

	d.requiredCache = parseStashedSize(out)

	return d, nil
}

// parseStashedSize extracts the tool's reported peak stash size.
// Tools that never stash report nothing, which means zero.
func parseStashedSize(output string) int64 {
	for _, line := range strings.Split(output, "\n") {
		value, found := strings.CutPrefix(strings.TrimSpace(line), "max_stashed_size=")
		if !found {
			continue
		}

		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}

	return 0
}

// Partition returns the partition name.
func (d *Difference) Partition() string {
	return d.partition
}

// RequiredCache returns the stash space the update needs on /cache.
func (d *Difference) RequiredCache() int64 {
	return d.requiredCache
}

// TransferEntry names the transfer list entry in the package.
func (d *Difference) TransferEntry() string {
	return d.partition + ".transfer.list"
}

// NewDataEntry names the new-data entry in the package.
func (d *Difference) NewDataEntry() string {
	return d.partition + ".new.dat"
}

// PatchEntry names the patch-data entry in the package.
func (d *Difference) PatchEntry() string {
	return d.partition + ".patch.dat"
}

// Embed writes the tool's output files into the package.
func (d *Difference) Embed(w *container.Writer) error {
	if err := w.WriteFile(d.TransferEntry(), d.transferPath); err != nil {
		return err
	}

	if err := w.WriteFile(d.NewDataEntry(), d.newDataPath); err != nil {
		return err
	}

	return w.WriteFile(d.PatchEntry(), d.patchPath)
}

// WriteVerify emits the pre-update check that the partition is still in
// a state the transfer list can be applied to.
func (d *Difference) WriteVerify(sink script.Sink) {
	if !d.incremental {
		return
	}

	sink.BlockImageVerify(d.device, d.TransferEntry(), d.NewDataEntry(), d.PatchEntry())
}

// WriteUpdate emits the update itself, preceded by the cache-space
// check when the transfer list stashes.
func (d *Difference) WriteUpdate(sink script.Sink) {
	if d.incremental && d.requiredCache > 0 {
		sink.CacheFreeSpaceCheck(d.requiredCache)
	}

	sink.BlockImageUpdate(d.device, d.TransferEntry(), d.NewDataEntry(), d.PatchEntry())
}

// readImage loads an image file for hashing.
func readImage(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	return data, nil
}
