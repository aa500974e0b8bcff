package script

import "github.com/oshokin/ota-packager/internal/container"

// Sink receives ordered install actions while a package is assembled and
// finally serializes the accumulated script into the output container.
//
// Implementations decide the concrete grammar; the pipeline only sequences
// calls. Methods never fail: a sink accumulates state and reports problems,
// if any, from AddToContainer.
type Sink interface {
	// Comment records an explanatory comment in the script.
	Comment(text string)
	// Print shows a message to the user at install time.
	Print(text string)
	// AppendExtra appends a raw fragment in the sink's native grammar.
	AppendExtra(text string)

	// Mount mounts the partition at the given mount point.
	Mount(mountPoint, options string)
	// Unmount unmounts the partition at the given mount point.
	Unmount(mountPoint string)
	// UnmountAll unmounts everything mounted by the script.
	UnmountAll()

	// AssertDevice aborts the install unless it runs on the named device.
	AssertDevice(device string)
	// AssertOemProperty aborts the install unless the runtime value of the
	// OEM property is among the expected values.
	AssertOemProperty(name string, values []string, oemNoMount bool)
	// AssertSomeFingerprint aborts unless the device fingerprint matches
	// one of the given fingerprints.
	AssertSomeFingerprint(fingerprints ...string)
	// AssertSomeThumbprint aborts unless the device thumbprint matches one
	// of the given thumbprints.
	AssertSomeThumbprint(thumbprints ...string)
	// AssertFingerprintOrThumbprint aborts unless either identity matches.
	AssertFingerprintOrThumbprint(fingerprint, thumbprint string)

	// ShowProgress advances the progress bar over the given span.
	ShowProgress(fraction float64, seconds int)
	// SetProgress sets the progress bar position.
	SetProgress(fraction float64)

	// WriteRawImage writes a package entry verbatim to a partition.
	WriteRawImage(partition, entryName string)
	// PatchCheck verifies a partition is in a known pre- or post-patch state.
	PatchCheck(target string, sources ...string)
	// ApplyPatch patches a partition in place using a package entry.
	ApplyPatch(target, source string, targetSize int64, targetSHA1, sourceSHA1, patchEntry string)
	// BlockImageVerify checks a block image can be updated from its
	// current state.
	BlockImageVerify(partition, transferEntry, newEntry, patchEntry string)
	// BlockImageUpdate applies a block-level update to a partition.
	BlockImageUpdate(partition, transferEntry, newEntry, patchEntry string)
	// CacheFreeSpaceCheck requires this many free bytes on /cache and
	// records the requirement for package metadata.
	CacheFreeSpaceCheck(bytes int64)
	// FormatPartition reformats the partition at the given mount point.
	FormatPartition(mountPoint string)

	// IfStageEquals opens a branch taken when the stage marker equals stage.
	IfStageEquals(markerDevice, stage string)
	// ElseIfStageEquals continues branching on marker equality.
	ElseIfStageEquals(markerDevice, stage string)
	// ElseIfStageNotEquals continues branching on marker inequality.
	ElseIfStageNotEquals(markerDevice, stage string)
	// Else opens the fallback branch.
	Else()
	// EndIf closes the innermost open branch.
	EndIf()
	// SetStage writes the stage marker through the control block device.
	SetStage(markerDevice, stage string)
	// RebootNow reboots immediately into the named partition.
	RebootNow(markerDevice, partition string)

	// RecordRequiredCache notes a cache-space requirement; the largest
	// recorded value is reported by RequiredCache.
	RecordRequiredCache(bytes int64)
	// RequiredCache returns the largest recorded cache requirement.
	RequiredCache() int64

	// AddToContainer serializes the script and the interpreter binary into
	// the output container.
	AddToContainer(w *container.Writer, updaterBinary string) error
}
