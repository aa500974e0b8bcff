package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/ota-packager/internal/script"
)

const rawFingerprint = "acme/widget/widget-x:9/AB1/12345:user/release-keys"

// plainBuild returns property data for a build without OEM scoping.
func plainBuild() (map[string]string, map[string]map[string]string) {
	values := map[string]string{
		"ab_update": "true",
	}
	props := map[string]map[string]string{
		NamespaceBuild: {
			"ro.build.fingerprint": rawFingerprint,
			"ro.product.device":    "widget-x",
		},
		NamespaceVendor: {},
	}

	return values, props
}

// oemBuild returns property data for a build with OEM-scoped identity.
func oemBuild() (map[string]string, map[string]map[string]string) {
	values := map[string]string{
		"oem_fingerprint_properties": "ro.product.brand ro.product.name ro.product.device",
	}
	props := map[string]map[string]string{
		NamespaceBuild: {
			"ro.build.thumbprint": "abc123",
		},
		NamespaceVendor: {},
	}

	return values, props
}

// TestFingerprintWithoutOEM verifies the raw fingerprint property is used
// verbatim when no OEM scoping is declared.
func TestFingerprintWithoutOEM(t *testing.T) {
	t.Parallel()

	values, props := plainBuild()

	info, err := New(values, props, nil, nil, "auto")
	require.NoError(t, err)
	require.Equal(t, rawFingerprint, info.Fingerprint())
	require.Equal(t, "widget-x", info.Device())
	require.True(t, info.IsAB())
}

// TestFingerprintWithOEM verifies composition from OEM values plus the
// build thumbprint.
func TestFingerprintWithOEM(t *testing.T) {
	t.Parallel()

	values, props := oemBuild()
	oem := []map[string]string{{
		"ro.product.brand":  "acme",
		"ro.product.name":   "widget",
		"ro.product.device": "widget-x",
	}}

	info, err := New(values, props, nil, oem, "auto")
	require.NoError(t, err)
	require.Equal(t, "acme/widget/widget-x:abc123", info.Fingerprint())
	require.Equal(t, "widget-x", info.Device())
	require.False(t, info.IsAB())
}

// TestOEMSourceRequired verifies construction fails when OEM scoping is
// declared without OEM dictionaries.
func TestOEMSourceRequired(t *testing.T) {
	t.Parallel()

	values, props := oemBuild()

	_, err := New(values, props, nil, nil, "auto")
	require.ErrorIs(t, err, ErrOEMSourceRequired)
}

// TestDeviceOverride verifies the override replaces the device name but
// not the fingerprint's device component.
func TestDeviceOverride(t *testing.T) {
	t.Parallel()

	values, props := oemBuild()
	oem := []map[string]string{{
		"ro.product.brand":  "acme",
		"ro.product.name":   "widget",
		"ro.product.device": "widget-x",
	}}

	info, err := New(values, props, nil, oem, "widget-y")
	require.NoError(t, err)
	require.Equal(t, "widget-y", info.Device())
	require.Equal(t, "acme/widget/widget-x:abc123", info.Fingerprint())
}

// TestPropertyMissing verifies lookups never default.
func TestPropertyMissing(t *testing.T) {
	t.Parallel()

	values, props := plainBuild()

	info, err := New(values, props, nil, nil, "auto")
	require.NoError(t, err)

	_, err = info.Property(NamespaceBuild, "ro.build.version.sdk")

	var missing *MissingPropertyError

	require.ErrorAs(t, err, &missing)
	require.Equal(t, NamespaceBuild, missing.Namespace)
	require.Equal(t, "ro.build.version.sdk", missing.Key)
}

// TestDeviceAssertionsWithoutOEM verifies the single-device assertion.
func TestDeviceAssertionsWithoutOEM(t *testing.T) {
	t.Parallel()

	values, props := plainBuild()

	info, err := New(values, props, nil, nil, "auto")
	require.NoError(t, err)

	sink := script.NewRecorder()
	require.NoError(t, info.WriteDeviceAssertions(sink, false))
	require.Equal(t, []string{"AssertDevice(widget-x)"}, sink.Actions)
}

// TestDeviceAssertionsWithOEM verifies per-property assertions covering
// the union of values across all OEM dictionaries.
func TestDeviceAssertionsWithOEM(t *testing.T) {
	t.Parallel()

	values, props := oemBuild()
	oem := []map[string]string{
		{
			"ro.product.brand":  "acme",
			"ro.product.name":   "widget",
			"ro.product.device": "widget-x",
		},
		{
			"ro.product.brand":  "acme",
			"ro.product.name":   "widget-intl",
			"ro.product.device": "widget-y",
		},
	}

	info, err := New(values, props, nil, oem, "auto")
	require.NoError(t, err)

	sink := script.NewRecorder()
	require.NoError(t, info.WriteDeviceAssertions(sink, false))
	require.True(t, sink.Contains("AssertOemProperty(ro.product.name, widget|widget-intl, false)"))
	require.True(t, sink.Contains("AssertOemProperty(ro.product.device, widget-x|widget-y, false)"))
}

// TestDeviceAssertionsMissingOEMProperty verifies the failure when no
// dictionary defines an OEM-scoped property.
func TestDeviceAssertionsMissingOEMProperty(t *testing.T) {
	t.Parallel()

	values, props := oemBuild()
	oem := []map[string]string{{
		"ro.product.brand":  "acme",
		"ro.product.name":   "widget",
		"ro.product.device": "widget-x",
	}}

	values["oem_fingerprint_properties"] += " ro.product.locale"

	info, err := New(values, props, nil, oem, "auto")
	require.NoError(t, err)

	var missing *MissingOEMPropertyError

	err = info.WriteDeviceAssertions(script.NewRecorder(), false)
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "ro.product.locale", missing.Key)
}

// TestParseProps checks comment and whitespace handling.
func TestParseProps(t *testing.T) {
	t.Parallel()

	props := ParseProps("# comment\n\nkey=value\nwith.equals=a=b\n  spaced = padded \n")
	require.Equal(t, map[string]string{
		"key":         "value",
		"with.equals": "a=b",
		"spaced":      "padded",
	}, props)
}

// TestParseFstab checks mount point mapping.
func TestParseFstab(t *testing.T) {
	t.Parallel()

	fstab := ParseFstab("# device mount type\n/dev/block/misc /misc emmc defaults\n/dev/block/system /system ext4 ro\n")
	require.Len(t, fstab, 2)
	require.Equal(t, FstabEntry{
		Device:     "/dev/block/misc",
		MountPoint: "/misc",
		Type:       "emmc",
	}, fstab["/misc"])
}
