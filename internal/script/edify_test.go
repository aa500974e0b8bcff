package script

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/ota-packager/internal/container"
)

// TestEdifyGrammar spot checks the emitted statements.
func TestEdifyGrammar(t *testing.T) {
	t.Parallel()

	e := NewEdify()
	e.Comment("first line\nsecond line")
	e.Print("Installing update...")
	e.Mount("/oem", "")
	e.AssertDevice("widget-x")
	e.AssertSomeFingerprint("fp-a", "fp-b")
	e.WriteRawImage("/boot", "boot.img")
	e.FormatPartition("/data")
	e.UnmountAll()

	text := string(e.Marshal())
	require.Contains(t, text, "# first line\n# second line")
	require.Contains(t, text, `ui_print("Installing update...");`)
	require.Contains(t, text, `mount("/oem");`)
	require.Contains(t, text, `getprop("ro.product.device") == "widget-x"`)
	require.Contains(t, text, `getprop("ro.build.fingerprint") == "fp-a" || getprop("ro.build.fingerprint") == "fp-b"`)
	require.Contains(t, text, `package_extract_file("boot.img", "/boot");`)
	require.Contains(t, text, `format("/data");`)
	require.True(t, strings.HasSuffix(text, "unmount_all();\n"))
}

// TestEdifyRequiredCacheTracksLargest verifies the cache requirement is
// the maximum over all checks.
func TestEdifyRequiredCacheTracksLargest(t *testing.T) {
	t.Parallel()

	e := NewEdify()
	require.Zero(t, e.RequiredCache())

	e.CacheFreeSpaceCheck(4096)
	e.CacheFreeSpaceCheck(1024)
	require.Equal(t, int64(4096), e.RequiredCache())
}

// TestEdifyAddToContainer verifies the script entry is written and the
// interpreter is optional.
func TestEdifyAddToContainer(t *testing.T) {
	t.Parallel()

	e := NewEdify()
	e.Print("hello")

	path := filepath.Join(t.TempDir(), "package.zip")

	w, err := container.Create(path)
	require.NoError(t, err)
	require.NoError(t, e.AddToContainer(w, ""))
	require.NoError(t, w.Close())

	r, err := container.Open(path)
	require.NoError(t, err)
	defer r.Close()

	content, err := r.ReadEntry(ScriptEntryName)
	require.NoError(t, err)
	require.Equal(t, "ui_print(\"hello\");\n", string(content))

	require.False(t, r.Has(BinaryEntryName))
}
