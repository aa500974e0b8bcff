package twostep

import (
	"errors"
	"strings"

	"github.com/oshokin/ota-packager/internal/buildinfo"
	"github.com/oshokin/ota-packager/internal/script"
)

// Stage marker values written to the control block device. An empty
// marker means no staged install is in progress.
const (
	// StageIdle is the cleared marker.
	StageIdle = ""
	// StageBoot schedules refreshing the recovery slot, running from the
	// image already flashed onto /boot.
	StageBoot = "2/3"
	// StageMain schedules the main install.
	StageMain = "3/3"
)

// Validation errors for builds that cannot host a staged install.
var (
	// ErrNotSupported is returned when the build lacks multistage
	// support.
	ErrNotSupported = errors.New("build does not declare multistage support")
	// ErrMarkerNotEMMC is returned when /misc is not an EMMC partition,
	// so no stage marker can be written.
	ErrMarkerNotEMMC = errors.New("stage marker requires an EMMC /misc partition")
)

// MarkerDevice validates that the build can host a staged install and
// returns the block device the stage marker is written through.
func MarkerDevice(info *buildinfo.Info) (string, error) {
	if v, _ := info.Value("multistage_support"); v == "" {
		return "", ErrNotSupported
	}

	misc, ok := info.Fstab("/misc")
	if !ok || !strings.EqualFold(misc.Type, "emmc") {
		return "", ErrMarkerNotEMMC
	}

	return misc.Device, nil
}

// NextStage simulates one recovery run of a staged package: given the
// marker the run starts with, it returns the marker left behind and
// whether the install is complete. The progression is identical for
// full and incremental packages; only the work done per stage differs.
func NextStage(marker string) (next string, done bool) {
	switch marker {
	case StageBoot:
		return StageMain, false
	case StageMain:
		return StageIdle, true
	default:
		return StageBoot, false
	}
}

// Machine emits the stage branches of a staged install script. Callers
// open the machine, write the per-stage bodies between the phase calls,
// and close it; the machine owns every marker write and reboot.
type Machine struct {
	// sink receives the emitted actions.
	sink script.Sink
	// dev is the marker block device.
	dev string
	// bootEntry is the package entry flashed between stages: onto /boot
	// first, then onto /recovery while running from /boot.
	bootEntry string
}

// New returns a machine writing the marker through dev and flashing
// bootEntry between stages.
func New(sink script.Sink, dev, bootEntry string) *Machine {
	return &Machine{sink: sink, dev: dev, bootEntry: bootEntry}
}

// flashRecoveryStage emits the middle stage: running from /boot,
// refresh the recovery slot, advance the marker and reboot into it.
func (m *Machine) flashRecoveryStage(delay bool) {
	m.sink.IfStageEquals(m.dev, StageBoot)

	if delay {
		// Leave a window to pull the plug on a runaway reboot loop.
		m.sink.AppendExtra("sleep(20);")
	}

	m.sink.WriteRawImage("/recovery", m.bootEntry)
	m.sink.SetStage(m.dev, StageMain)
	m.sink.RebootNow(m.dev, "recovery")
}

// OpenFull opens the branches of a full package. The install body
// follows the call and runs in the final stage.
func (m *Machine) OpenFull() {
	m.flashRecoveryStage(false)
	m.sink.ElseIfStageEquals(m.dev, StageMain)
}

// CloseFull clears the marker behind the install body and emits the
// first stage, which only schedules the boot flash.
func (m *Machine) CloseFull() {
	m.sink.SetStage(m.dev, StageIdle)
	m.sink.Else()
	m.sink.WriteRawImage("/boot", m.bootEntry)
	m.sink.SetStage(m.dev, StageBoot)
	m.sink.RebootNow(m.dev, StageIdle)
	m.sink.EndIf()
	m.sink.EndIf()
}

// OpenIncremental opens the branches of an incremental package. The
// verification body follows the call and runs in the first stage,
// before anything is modified.
func (m *Machine) OpenIncremental() {
	// Incrementals risk a reboot loop if verification keeps passing on a
	// half-updated device, so the middle stage waits before flashing.
	m.flashRecoveryStage(true)
	m.sink.ElseIfStageNotEquals(m.dev, StageMain)
}

// ScheduleUpdate ends the verification body: advance the marker and
// reboot so the boot flash runs next. The update body follows the call
// and runs in the final stage.
func (m *Machine) ScheduleUpdate() {
	m.sink.SetStage(m.dev, StageBoot)
	m.sink.RebootNow(m.dev, StageIdle)
	m.sink.Else()
}

// CloseIncremental clears the marker behind the update body.
func (m *Machine) CloseIncremental() {
	m.sink.SetStage(m.dev, StageIdle)
	m.sink.EndIf()
	m.sink.EndIf()
}
