package metadata

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/ota-packager/internal/buildinfo"
	"github.com/oshokin/ota-packager/internal/config"
)

// testBuild constructs a build info with the given timestamp.
func testBuild(t *testing.T, device, fingerprint string, timestamp int64, ab bool) *buildinfo.Info {
	t.Helper()

	values := map[string]string{}
	if ab {
		values["ab_update"] = "true"
	}

	info, err := buildinfo.New(values, map[string]map[string]string{
		buildinfo.NamespaceBuild: {
			"ro.build.fingerprint":            fingerprint,
			"ro.product.device":               device,
			"ro.build.version.incremental":    "eng.100",
			"ro.build.version.sdk":            "28",
			"ro.build.version.security_patch": "2018-07-05",
			"ro.build.date.utc":               strconv.FormatInt(timestamp, 10),
		},
		buildinfo.NamespaceVendor: {},
	}, nil, nil, "auto")
	require.NoError(t, err)

	return info
}

// TestFullPackageMetadata checks the record for a full payload-based package.
func TestFullPackageMetadata(t *testing.T) {
	t.Parallel()

	target := testBuild(t, "widget-x", "acme/widget/widget-x:9/1", 1500000000, true)

	md, err := FromBuildInfo(target, nil, config.Default())
	require.NoError(t, err)

	expect := map[string]string{
		KeyPostBuild:            "acme/widget/widget-x:9/1",
		KeyPostBuildIncremental: "eng.100",
		KeyPostSDKLevel:         "28",
		KeyPostSecurityPatch:    "2018-07-05",
		KeyPostTimestamp:        "1500000000",
		KeyType:                 TypeAB,
		KeyRequiredCache:        "0",
		KeyPreDevice:            "widget-x",
	}
	for key, want := range expect {
		got, ok := md.Get(key)
		require.True(t, ok, key)
		require.Equal(t, want, got, key)
	}

	_, ok := md.Get(KeyPreBuild)
	require.False(t, ok)

	_, ok = md.Get(KeyDowngrade)
	require.False(t, ok)
}

// TestIncrementalPackageMetadata checks pre-build fields and the BLOCK type.
func TestIncrementalPackageMetadata(t *testing.T) {
	t.Parallel()

	target := testBuild(t, "widget-x", "acme/widget/widget-x:9/2", 1500000001, false)
	source := testBuild(t, "widget-x", "acme/widget/widget-x:9/1", 1500000000, false)

	md, err := FromBuildInfo(target, source, config.Default())
	require.NoError(t, err)

	got, _ := md.Get(KeyType)
	require.Equal(t, TypeBlock, got)

	got, _ = md.Get(KeyPreBuild)
	require.Equal(t, "acme/widget/widget-x:9/1", got)

	got, _ = md.Get(KeyPreDevice)
	require.Equal(t, "widget-x", got)

	// Post-timestamp is always the target's.
	got, _ = md.Get(KeyPostTimestamp)
	require.Equal(t, "1500000001", got)

	_, ok := md.Get(KeyRequiredCache)
	require.False(t, ok)
}

// TestDowngradePolicy covers both directions of the timestamp check.
func TestDowngradePolicy(t *testing.T) {
	t.Parallel()

	newer := testBuild(t, "widget-x", "fp-new", 2000, false)
	older := testBuild(t, "widget-x", "fp-old", 1000, false)
	same := testBuild(t, "widget-x", "fp-same", 2000, false)

	tests := []struct {
		name          string
		target        *buildinfo.Info
		source        *buildinfo.Info
		downgrade     bool
		wantViolation bool
		wantMarker    bool
	}{
		{
			name:   "upgrade without downgrade mode",
			target: newer, source: older,
		},
		{
			name:   "identical timestamps are not a downgrade",
			target: same, source: newer,
		},
		{
			name:   "downgrade without downgrade mode",
			target: older, source: newer,
			wantViolation: true,
		},
		{
			name:   "downgrade with downgrade mode",
			target: older, source: newer,
			downgrade:  true,
			wantMarker: true,
		},
		{
			name:   "downgrade mode without actual downgrade",
			target: newer, source: older,
			downgrade:     true,
			wantViolation: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := config.Default()
			opts.Downgrade = tt.downgrade

			md, err := FromBuildInfo(tt.target, tt.source, opts)
			if tt.wantViolation {
				var violation *DowngradeError

				require.ErrorAs(t, err, &violation)
				require.Equal(t, tt.downgrade, violation.Requested)

				return
			}

			require.NoError(t, err)

			_, marked := md.Get(KeyDowngrade)
			require.Equal(t, tt.wantMarker, marked)
		})
	}
}

// TestDowngradeRequiresIncremental verifies downgrade mode never combines
// with full packaging.
func TestDowngradeRequiresIncremental(t *testing.T) {
	t.Parallel()

	target := testBuild(t, "widget-x", "fp", 1000, true)

	opts := config.Default()
	opts.Downgrade = true

	_, err := FromBuildInfo(target, nil, opts)
	require.ErrorIs(t, err, ErrDowngradeNeedsSource)
}

// TestBadTimestampFailsFast verifies non-numeric timestamps abort instead
// of being treated as zero.
func TestBadTimestampFailsFast(t *testing.T) {
	t.Parallel()

	target := testBuild(t, "widget-x", "fp", 1000, false)

	source, err := buildinfo.New(map[string]string{}, map[string]map[string]string{
		buildinfo.NamespaceBuild: {
			"ro.build.fingerprint":            "fp-src",
			"ro.product.device":               "widget-x",
			"ro.build.version.incremental":    "eng.99",
			"ro.build.version.sdk":            "28",
			"ro.build.version.security_patch": "2018-07-05",
			"ro.build.date.utc":               "yesterday",
		},
		buildinfo.NamespaceVendor: {},
	}, nil, nil, "auto")
	require.NoError(t, err)

	_, err = FromBuildInfo(target, source, config.Default())
	require.ErrorContains(t, err, "parse build timestamp")
}

// TestMarshalSortsKeys verifies the serialized listing is sorted.
func TestMarshalSortsKeys(t *testing.T) {
	t.Parallel()

	md := New()
	md.Set("zebra", "1")
	md.Set("alpha", "2")
	md.Set("middle", "3")

	require.Equal(t, "alpha=2\nmiddle=3\nzebra=1\n", string(md.Marshal()))
}
