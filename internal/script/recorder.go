package script

import (
	"fmt"
	"strings"

	"github.com/oshokin/ota-packager/internal/container"
)

// Recorder captures install actions as readable call traces.
// It implements Sink and exists for tests and dry runs.
type Recorder struct {
	// Actions lists the recorded calls in order.
	Actions []string
	// requiredCache is the largest recorded cache requirement in bytes.
	requiredCache int64
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// record appends one call trace.
func (r *Recorder) record(name string, args ...any) {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, fmt.Sprint(arg))
	}

	r.Actions = append(r.Actions, name+"("+strings.Join(parts, ", ")+")")
}

// Contains reports whether any recorded action contains the substring.
func (r *Recorder) Contains(substring string) bool {
	for _, action := range r.Actions {
		if strings.Contains(action, substring) {
			return true
		}
	}

	return false
}

func (r *Recorder) Comment(text string)      { r.record("Comment", text) }
func (r *Recorder) Print(text string)        { r.record("Print", text) }
func (r *Recorder) AppendExtra(text string)  { r.record("AppendExtra", text) }
func (r *Recorder) Mount(mp, opts string)    { r.record("Mount", mp, opts) }
func (r *Recorder) Unmount(mp string)        { r.record("Unmount", mp) }
func (r *Recorder) UnmountAll()              { r.record("UnmountAll") }
func (r *Recorder) AssertDevice(device string) {
	r.record("AssertDevice", device)
}

func (r *Recorder) AssertOemProperty(name string, values []string, oemNoMount bool) {
	r.record("AssertOemProperty", name, strings.Join(values, "|"), oemNoMount)
}

func (r *Recorder) AssertSomeFingerprint(fingerprints ...string) {
	r.record("AssertSomeFingerprint", strings.Join(fingerprints, "|"))
}

func (r *Recorder) AssertSomeThumbprint(thumbprints ...string) {
	r.record("AssertSomeThumbprint", strings.Join(thumbprints, "|"))
}

func (r *Recorder) AssertFingerprintOrThumbprint(fingerprint, thumbprint string) {
	r.record("AssertFingerprintOrThumbprint", fingerprint, thumbprint)
}

func (r *Recorder) ShowProgress(fraction float64, seconds int) {
	r.record("ShowProgress", fraction, seconds)
}

func (r *Recorder) SetProgress(fraction float64) {
	r.record("SetProgress", fraction)
}

func (r *Recorder) WriteRawImage(partition, entryName string) {
	r.record("WriteRawImage", partition, entryName)
}

func (r *Recorder) PatchCheck(target string, sources ...string) {
	r.record("PatchCheck", target, strings.Join(sources, "|"))
}

func (r *Recorder) ApplyPatch(target, source string, targetSize int64, targetSHA1, sourceSHA1, patchEntry string) {
	r.record("ApplyPatch", target, source, targetSize, targetSHA1, sourceSHA1, patchEntry)
}

func (r *Recorder) BlockImageVerify(partition, transferEntry, newEntry, patchEntry string) {
	r.record("BlockImageVerify", partition, transferEntry, newEntry, patchEntry)
}

func (r *Recorder) BlockImageUpdate(partition, transferEntry, newEntry, patchEntry string) {
	r.record("BlockImageUpdate", partition, transferEntry, newEntry, patchEntry)
}

func (r *Recorder) CacheFreeSpaceCheck(bytes int64) {
	r.RecordRequiredCache(bytes)
	r.record("CacheFreeSpaceCheck", bytes)
}

func (r *Recorder) FormatPartition(mountPoint string) {
	r.record("FormatPartition", mountPoint)
}

func (r *Recorder) IfStageEquals(markerDevice, stage string) {
	r.record("IfStageEquals", markerDevice, stage)
}

func (r *Recorder) ElseIfStageEquals(markerDevice, stage string) {
	r.record("ElseIfStageEquals", markerDevice, stage)
}

func (r *Recorder) ElseIfStageNotEquals(markerDevice, stage string) {
	r.record("ElseIfStageNotEquals", markerDevice, stage)
}

func (r *Recorder) Else()  { r.record("Else") }
func (r *Recorder) EndIf() { r.record("EndIf") }

func (r *Recorder) SetStage(markerDevice, stage string) {
	r.record("SetStage", markerDevice, stage)
}

func (r *Recorder) RebootNow(markerDevice, partition string) {
	r.record("RebootNow", markerDevice, partition)
}

func (r *Recorder) RecordRequiredCache(bytes int64) {
	if bytes > r.requiredCache {
		r.requiredCache = bytes
	}
}

func (r *Recorder) RequiredCache() int64 {
	return r.requiredCache
}

func (r *Recorder) AddToContainer(w *container.Writer, updaterBinary string) error {
	r.record("AddToContainer", updaterBinary)
	return w.WriteBytes(ScriptEntryName, []byte(strings.Join(r.Actions, "\n")), false)
}
