package twostep

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/ota-packager/internal/buildinfo"
	"github.com/oshokin/ota-packager/internal/script"
)

func stagedBuild(t *testing.T, multistage string, miscType string) *buildinfo.Info {
	t.Helper()

	values := map[string]string{}
	if multistage != "" {
		values["multistage_support"] = multistage
	}

	fstab := map[string]buildinfo.FstabEntry{}
	if miscType != "" {
		fstab["/misc"] = buildinfo.FstabEntry{
			Device:     "/dev/block/misc",
			MountPoint: "/misc",
			Type:       miscType,
		}
	}

	info, err := buildinfo.New(values, map[string]map[string]string{
		buildinfo.NamespaceBuild: {
			"ro.build.fingerprint": "fp",
			"ro.product.device":    "widget-x",
		},
		buildinfo.NamespaceVendor: {},
	}, fstab, nil, "auto")
	require.NoError(t, err)

	return info
}

// TestMarkerDevice covers build validation for staged installs.
func TestMarkerDevice(t *testing.T) {
	t.Parallel()

	t.Run("supported build", func(t *testing.T) {
		t.Parallel()

		dev, err := MarkerDevice(stagedBuild(t, "1", "emmc"))
		require.NoError(t, err)
		require.Equal(t, "/dev/block/misc", dev)
	})

	t.Run("no multistage support", func(t *testing.T) {
		t.Parallel()

		_, err := MarkerDevice(stagedBuild(t, "", "emmc"))
		require.ErrorIs(t, err, ErrNotSupported)
	})

	t.Run("misc not emmc", func(t *testing.T) {
		t.Parallel()

		_, err := MarkerDevice(stagedBuild(t, "1", "mtd"))
		require.ErrorIs(t, err, ErrMarkerNotEMMC)
	})

	t.Run("no misc entry", func(t *testing.T) {
		t.Parallel()

		_, err := MarkerDevice(stagedBuild(t, "1", ""))
		require.ErrorIs(t, err, ErrMarkerNotEMMC)
	})
}

// TestNextStageCompletesInThreeRuns walks the marker progression from a
// clean device to completion.
func TestNextStageCompletesInThreeRuns(t *testing.T) {
	t.Parallel()

	marker := StageIdle

	marker, done := NextStage(marker)
	require.Equal(t, StageBoot, marker)
	require.False(t, done)

	marker, done = NextStage(marker)
	require.Equal(t, StageMain, marker)
	require.False(t, done)

	marker, done = NextStage(marker)
	require.Equal(t, StageIdle, marker)
	require.True(t, done)
}

// TestFullMachineLayout checks the branch arrangement of a full package.
func TestFullMachineLayout(t *testing.T) {
	t.Parallel()

	rec := script.NewRecorder()
	m := New(rec, "/dev/block/misc", "recovery.img")

	m.OpenFull()
	rec.Print("installing")
	m.CloseFull()

	require.Equal(t, []string{
		"IfStageEquals(/dev/block/misc, 2/3)",
		"WriteRawImage(/recovery, recovery.img)",
		"SetStage(/dev/block/misc, 3/3)",
		"RebootNow(/dev/block/misc, recovery)",
		"ElseIfStageEquals(/dev/block/misc, 3/3)",
		"Print(installing)",
		"SetStage(/dev/block/misc, )",
		"Else()",
		"WriteRawImage(/boot, recovery.img)",
		"SetStage(/dev/block/misc, 2/3)",
		"RebootNow(/dev/block/misc, )",
		"EndIf()",
		"EndIf()",
	}, rec.Actions)
}

// TestIncrementalMachineLayout checks verification runs before the
// marker ever advances and the update body sits in the final branch.
func TestIncrementalMachineLayout(t *testing.T) {
	t.Parallel()

	rec := script.NewRecorder()
	m := New(rec, "/dev/block/misc", "recovery.img")

	m.OpenIncremental()
	rec.Print("verifying")
	m.ScheduleUpdate()
	rec.Print("updating")
	m.CloseIncremental()

	actions := strings.Join(rec.Actions, "\n")

	// The middle stage waits, then refreshes the recovery slot it is
	// about to reboot into.
	require.Less(t, strings.Index(actions, "AppendExtra(sleep(20);)"),
		strings.Index(actions, "WriteRawImage(/recovery, recovery.img)"))
	require.Less(t, strings.Index(actions, "WriteRawImage(/recovery, recovery.img)"),
		strings.Index(actions, "RebootNow(/dev/block/misc, recovery)"))

	require.Less(t, strings.Index(actions, "ElseIfStageNotEquals(/dev/block/misc, 3/3)"),
		strings.Index(actions, "Print(verifying)"))
	require.Less(t, strings.Index(actions, "Print(verifying)"),
		strings.Index(actions, "SetStage(/dev/block/misc, 2/3)"))
	require.Less(t, strings.Index(actions, "Else()"),
		strings.Index(actions, "Print(updating)"))
	require.Equal(t, "EndIf()", rec.Actions[len(rec.Actions)-1])
}

// TestEdifyRendering spot checks the emitted script grammar.
func TestEdifyRendering(t *testing.T) {
	t.Parallel()

	sink := script.NewEdify()
	m := New(sink, "/dev/block/misc", "recovery.img")

	m.OpenFull()
	m.CloseFull()

	text := string(sink.Marshal())
	require.Contains(t, text, `if get_stage("/dev/block/misc") == "2/3" then`)
	require.Contains(t, text, `package_extract_file("recovery.img", "/recovery")`)
	require.Contains(t, text, `else if get_stage("/dev/block/misc") == "3/3" then`)
	require.Equal(t, 2, strings.Count(text, "endif;"))
	require.NotContains(t, text, "sleep(20);")
}
