package script

import (
	"fmt"
	"strings"

	"github.com/oshokin/ota-packager/internal/container"
)

const (
	// ScriptEntryName is where the serialized script lands in the package.
	ScriptEntryName = "META-INF/com/google/android/updater-script"
	// BinaryEntryName is where the interpreter binary lands in the package.
	BinaryEntryName = "META-INF/com/google/android/update-binary"
)

// Edify accumulates install actions as Edify-flavoured script text.
// It implements Sink.
type Edify struct {
	// lines are the accumulated script lines.
	lines []string
	// requiredCache is the largest recorded cache requirement in bytes.
	requiredCache int64
}

// NewEdify returns an empty Edify script.
func NewEdify() *Edify {
	return &Edify{}
}

// emit appends one line of script text.
func (e *Edify) emit(format string, args ...any) {
	e.lines = append(e.lines, fmt.Sprintf(format, args...))
}

// Comment records an explanatory comment.
func (e *Edify) Comment(text string) {
	for _, line := range strings.Split(text, "\n") {
		e.emit("# %s", line)
	}
}

// Print shows a message to the user at install time.
func (e *Edify) Print(text string) {
	e.emit("ui_print(%q);", text)
}

// AppendExtra appends a raw script fragment verbatim.
func (e *Edify) AppendExtra(text string) {
	e.lines = append(e.lines, text)
}

// Mount mounts the partition at the given mount point.
func (e *Edify) Mount(mountPoint, options string) {
	if options == "" {
		e.emit("mount(%q);", mountPoint)
		return
	}

	e.emit("mount(%q, %q);", mountPoint, options)
}

// Unmount unmounts the partition at the given mount point.
func (e *Edify) Unmount(mountPoint string) {
	e.emit("unmount(%q);", mountPoint)
}

// UnmountAll unmounts everything mounted by the script.
func (e *Edify) UnmountAll() {
	e.emit("unmount_all();")
}

// AssertDevice aborts the install unless it runs on the named device.
func (e *Edify) AssertDevice(device string) {
	e.emit(`getprop("ro.product.device") == %q || abort("This package is for %q devices; this is a \"" + getprop("ro.product.device") + "\".");`,
		device, device)
}

// AssertOemProperty aborts unless the runtime OEM property value is among
// the expected ones.
func (e *Edify) AssertOemProperty(name string, values []string, oemNoMount bool) {
	getProp := fmt.Sprintf("file_getprop(\"/oem/oem.prop\", %q)", name)
	if oemNoMount {
		getProp = fmt.Sprintf("getprop(%q)", name)
	}

	checks := make([]string, 0, len(values))
	for _, v := range values {
		checks = append(checks, fmt.Sprintf("%s == %q", getProp, v))
	}

	e.emit(`%s || abort("OEM property %s has unexpected value");`,
		strings.Join(checks, " || "), name)
}

// AssertSomeFingerprint aborts unless the device fingerprint matches one
// of the given fingerprints.
func (e *Edify) AssertSomeFingerprint(fingerprints ...string) {
	checks := make([]string, 0, len(fingerprints))
	for _, fp := range fingerprints {
		checks = append(checks, fmt.Sprintf(`getprop("ro.build.fingerprint") == %q`, fp))
	}

	e.emit(`%s || abort("Package expects another build fingerprint");`, strings.Join(checks, " || "))
}

// AssertSomeThumbprint aborts unless the device thumbprint matches one of
// the given thumbprints.
func (e *Edify) AssertSomeThumbprint(thumbprints ...string) {
	checks := make([]string, 0, len(thumbprints))
	for _, tp := range thumbprints {
		checks = append(checks, fmt.Sprintf(`getprop("ro.build.thumbprint") == %q`, tp))
	}

	e.emit(`%s || abort("Package expects another build thumbprint");`, strings.Join(checks, " || "))
}

// AssertFingerprintOrThumbprint aborts unless either identity matches.
func (e *Edify) AssertFingerprintOrThumbprint(fingerprint, thumbprint string) {
	e.emit(`getprop("ro.build.fingerprint") == %q || getprop("ro.build.thumbprint") == %q || abort("Package expects another build");`,
		fingerprint, thumbprint)
}

// ShowProgress advances the progress bar over the given span.
func (e *Edify) ShowProgress(fraction float64, seconds int) {
	e.emit("show_progress(%f, %d);", fraction, seconds)
}

// SetProgress sets the progress bar position.
func (e *Edify) SetProgress(fraction float64) {
	e.emit("set_progress(%f);", fraction)
}

// WriteRawImage writes a package entry verbatim to a partition.
func (e *Edify) WriteRawImage(partition, entryName string) {
	e.emit("package_extract_file(%q, %q);", entryName, partition)
}

// PatchCheck verifies a partition is in a known pre- or post-patch state.
func (e *Edify) PatchCheck(target string, sources ...string) {
	args := []string{fmt.Sprintf("%q", target)}
	for _, src := range sources {
		args = append(args, fmt.Sprintf("%q", src))
	}

	e.emit(`apply_patch_check(%s) || abort("%s has unexpected contents");`,
		strings.Join(args, ", "), target)
}

// ApplyPatch patches a partition in place using a package entry.
func (e *Edify) ApplyPatch(target, source string, targetSize int64, targetSHA1, sourceSHA1, patchEntry string) {
	e.emit("apply_patch(%q, %q, %s, %d, %s, package_extract_file(%q));",
		target, source, targetSHA1, targetSize, sourceSHA1, patchEntry)
}

// BlockImageVerify checks a block image can be updated from its current state.
func (e *Edify) BlockImageVerify(partition, transferEntry, newEntry, patchEntry string) {
	e.emit(`block_image_verify(%q, package_extract_file(%q), %q, %q) || abort("%s partition has unexpected contents");`,
		partition, transferEntry, newEntry, patchEntry, partition)
}

// BlockImageUpdate applies a block-level update to a partition.
func (e *Edify) BlockImageUpdate(partition, transferEntry, newEntry, patchEntry string) {
	e.emit(`block_image_update(%q, package_extract_file(%q), %q, %q) || abort("Failed to update %s partition");`,
		partition, transferEntry, newEntry, patchEntry, partition)
}

// CacheFreeSpaceCheck requires free cache space and records the requirement.
func (e *Edify) CacheFreeSpaceCheck(bytes int64) {
	e.RecordRequiredCache(bytes)
	e.emit(`apply_patch_space(%d) || abort("Not enough free space on /cache");`, bytes)
}

// FormatPartition reformats the partition at the given mount point.
func (e *Edify) FormatPartition(mountPoint string) {
	e.emit("format(%q);", mountPoint)
}

// IfStageEquals opens a branch taken when the stage marker equals stage.
func (e *Edify) IfStageEquals(markerDevice, stage string) {
	e.emit("if get_stage(%q) == %q then", markerDevice, stage)
}

// ElseIfStageEquals continues branching on marker equality.
func (e *Edify) ElseIfStageEquals(markerDevice, stage string) {
	e.emit("else if get_stage(%q) == %q then", markerDevice, stage)
}

// ElseIfStageNotEquals continues branching on marker inequality.
func (e *Edify) ElseIfStageNotEquals(markerDevice, stage string) {
	e.emit("else if get_stage(%q) != %q then", markerDevice, stage)
}

// Else opens the fallback branch.
func (e *Edify) Else() {
	e.emit("else")
}

// EndIf closes the innermost open branch.
func (e *Edify) EndIf() {
	e.emit("endif;")
}

// SetStage writes the stage marker through the control block device.
func (e *Edify) SetStage(markerDevice, stage string) {
	e.emit("set_stage(%q, %q);", markerDevice, stage)
}

// RebootNow reboots immediately into the named partition.
func (e *Edify) RebootNow(markerDevice, partition string) {
	e.emit("reboot_now(%q, %q);", markerDevice, partition)
}

// RecordRequiredCache keeps the largest cache requirement seen so far.
func (e *Edify) RecordRequiredCache(bytes int64) {
	if bytes > e.requiredCache {
		e.requiredCache = bytes
	}
}

// RequiredCache returns the largest recorded cache requirement.
func (e *Edify) RequiredCache() int64 {
	return e.requiredCache
}

// Marshal renders the accumulated script text.
func (e *Edify) Marshal() []byte {
	return []byte(strings.Join(e.lines, "\n") + "\n")
}

// AddToContainer writes the script and, when provided, the interpreter
// binary into the output container.
func (e *Edify) AddToContainer(w *container.Writer, updaterBinary string) error {
	if err := w.WriteBytes(ScriptEntryName, e.Marshal(), false); err != nil {
		return err
	}

	if updaterBinary == "" {
		return nil
	}

	return w.WriteFile(BinaryEntryName, updaterBinary)
}
