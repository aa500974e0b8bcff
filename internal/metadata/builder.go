package metadata

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/oshokin/ota-packager/internal/buildinfo"
	"github.com/oshokin/ota-packager/internal/config"
)

// timestampProperty is the build property carrying the UTC build time in
// integer seconds.
const timestampProperty = "ro.build.date.utc"

// ErrDowngradeNeedsSource is returned when downgrade mode is combined
// with full packaging. Full packages skip downgrade analysis entirely.
var ErrDowngradeNeedsSource = errors.New("downgrade mode is only valid for incremental packages")

// DowngradeError reports a downgrade-policy violation, carrying both
// compared timestamps for diagnosis.
type DowngradeError struct {
	// PreTimestamp is the source build timestamp in UTC seconds.
	PreTimestamp int64
	// PostTimestamp is the target build timestamp in UTC seconds.
	PostTimestamp int64
	// Requested reports whether downgrade mode was asked for.
	Requested bool
}

// Error explains which direction the policy was violated in.
func (e *DowngradeError) Error() string {
	if e.Requested {
		return fmt.Sprintf(
			"downgrade requested but no downgrade detected: pre: %d, post: %d",
			e.PreTimestamp, e.PostTimestamp)
	}

	return fmt.Sprintf(
		"downgrade detected based on timestamp check: pre: %d, post: %d; enable downgrade mode to allow building it",
		e.PreTimestamp, e.PostTimestamp)
}

// FromBuildInfo derives the package metadata record from the target build
// and, for incremental packages, the source build. Downgrade analysis
// runs only for incrementals and enforces the policy in both directions.
func FromBuildInfo(target, source *buildinfo.Info, opts *config.Options) (*Metadata, error) {
	md := New()

	md.Set(KeyPostBuild, target.Fingerprint())

	for key, prop := range map[string]string{
		KeyPostBuildIncremental: "ro.build.version.incremental",
		KeyPostSDKLevel:         "ro.build.version.sdk",
		KeyPostSecurityPatch:    "ro.build.version.security_patch",
		KeyPostTimestamp:        timestampProperty,
	} {
		value, err := target.Property(buildinfo.NamespaceBuild, prop)
		if err != nil {
			return nil, err
		}

		md.Set(key, value)
	}

	if target.IsAB() {
		md.Set(KeyType, TypeAB)
		// Payload-based installs never stage patches on /cache.
		md.Set(KeyRequiredCache, "0")
	} else {
		md.Set(KeyType, TypeBlock)
	}

	if opts.WipeUserData {
		md.Set(KeyWipe, "yes")
	}

	if source == nil {
		if opts.Downgrade {
			return nil, ErrDowngradeNeedsSource
		}

		md.Set(KeyPreDevice, target.Device())

		return md, nil
	}

	md.Set(KeyPreBuild, source.Fingerprint())
	md.Set(KeyPreDevice, source.Device())

	preIncremental, err := source.Property(buildinfo.NamespaceBuild, "ro.build.version.incremental")
	if err != nil {
		return nil, err
	}

	md.Set(KeyPreBuildIncremental, preIncremental)

	if err := applyDowngradePolicy(md, target, source, opts.Downgrade); err != nil {
		return nil, err
	}

	return md, nil
}

// applyDowngradePolicy compares the build timestamps and enforces the
// downgrade policy: an undetected downgrade may not be requested, and a
// detected downgrade may not ship unrequested.
func applyDowngradePolicy(md *Metadata, target, source *buildinfo.Info, requested bool) error {
	postTimestamp, err := buildTimestamp(target)
	if err != nil {
		return err
	}

	preTimestamp, err := buildTimestamp(source)
	if err != nil {
		return err
	}

	isDowngrade := postTimestamp < preTimestamp

	if requested {
		if !isDowngrade {
			return &DowngradeError{
				PreTimestamp:  preTimestamp,
				PostTimestamp: postTimestamp,
				Requested:     true,
			}
		}

		md.Set(KeyDowngrade, "yes")

		return nil
	}

	if isDowngrade {
		return &DowngradeError{
			PreTimestamp:  preTimestamp,
			PostTimestamp: postTimestamp,
		}
	}

	return nil
}

// buildTimestamp reads the integer UTC build timestamp of a build.
// A missing or non-numeric value fails fast: silently treating it as zero
// could flip downgrade detection.
func buildTimestamp(info *buildinfo.Info) (int64, error) {
	value, err := info.Property(buildinfo.NamespaceBuild, timestampProperty)
	if err != nil {
		return 0, err
	}

	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse build timestamp %q: %w", value, err)
	}

	return ts, nil
}

// BuildTimestamp exposes the parsed UTC build timestamp for callers that
// bound payload applicability.
func BuildTimestamp(info *buildinfo.Info) (int64, error) {
	return buildTimestamp(info)
}
