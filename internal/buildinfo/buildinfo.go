package buildinfo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oshokin/ota-packager/internal/container"
	"github.com/oshokin/ota-packager/internal/script"
)

// Property namespaces recognized by Info.
const (
	// NamespaceBuild holds the main build properties.
	NamespaceBuild = "build"
	// NamespaceVendor holds the vendor partition build properties.
	NamespaceVendor = "vendor"
)

// Entry names inside a build archive that feed Info construction.
const (
	miscInfoEntry    = "META/misc_info.txt"
	buildPropsEntry  = "SYSTEM/build.prop"
	vendorPropsEntry = "VENDOR/build.prop"
	fstabEntry       = "META/recovery.fstab"
)

// ErrOEMSourceRequired is returned when a build declares OEM-scoped
// identity properties but no OEM dictionary was supplied.
var ErrOEMSourceRequired = errors.New("build uses OEM properties but no OEM source was provided")

// MissingPropertyError reports a property lookup with no value and no
// permitted default.
type MissingPropertyError struct {
	// Namespace is the property namespace that was queried.
	Namespace string
	// Key is the property that was absent.
	Key string
}

// Error names the missing property and its namespace.
func (e *MissingPropertyError) Error() string {
	return fmt.Sprintf("property %s not found in %s namespace", e.Key, e.Namespace)
}

// MissingOEMPropertyError reports an OEM-scoped property that no supplied
// OEM dictionary defines.
type MissingOEMPropertyError struct {
	// Key is the OEM property that was absent from every dictionary.
	Key string
}

// Error names the property missing from the OEM files.
func (e *MissingOEMPropertyError) Error() string {
	return fmt.Sprintf("the OEM files are missing the property %s", e.Key)
}

// Info is the immutable per-build identity view.
type Info struct {
	// values are the build-time misc info values.
	values map[string]string
	// props maps namespaces to their build property dictionaries.
	props map[string]map[string]string
	// fstab maps mount points to their recovery fstab entries.
	fstab map[string]FstabEntry
	// oemDicts are the OEM override dictionaries, authoritative-first.
	oemDicts []map[string]string
	// oemProps lists the OEM-scoped identity property names, empty when
	// the build declares none.
	oemProps []string
	// device is the resolved device name.
	device string
	// fingerprint is the resolved canonical build identity.
	fingerprint string
	// isAB reports whether the build updates via payload rather than
	// block patches.
	isAB bool
}

// New constructs an Info from raw property data. deviceOverride other than
// "auto" replaces the property-derived device name. Construction fails
// when OEM-scoped identity is declared without OEM dictionaries, or when
// an identity property cannot be resolved.
func New(values map[string]string, props map[string]map[string]string,
	fstab map[string]FstabEntry, oemDicts []map[string]string, deviceOverride string) (*Info, error) {
	info := &Info{
		values:   values,
		props:    props,
		fstab:    fstab,
		oemDicts: oemDicts,
		oemProps: strings.Fields(values["oem_fingerprint_properties"]),
		isAB:     values["ab_update"] == "true",
	}

	if len(info.oemProps) > 0 && len(oemDicts) == 0 {
		return nil, ErrOEMSourceRequired
	}

	// Device and fingerprint are resolved once, after OEM scoping is known.
	if deviceOverride != "" && deviceOverride != "auto" {
		info.device = deviceOverride
	} else {
		device, err := info.OEMProperty("ro.product.device")
		if err != nil {
			return nil, err
		}

		info.device = device
	}

	fingerprint, err := info.resolveFingerprint()
	if err != nil {
		return nil, err
	}

	info.fingerprint = fingerprint

	return info, nil
}

// Load constructs an Info from the property entries of a build archive.
func Load(r *container.Reader, oemDicts []map[string]string, deviceOverride string) (*Info, error) {
	misc, err := r.ReadEntry(miscInfoEntry)
	if err != nil {
		return nil, fmt.Errorf("load build info: %w", err)
	}

	props := map[string]map[string]string{
		NamespaceBuild:  {},
		NamespaceVendor: {},
	}

	if r.Has(buildPropsEntry) {
		contents, err := r.ReadEntry(buildPropsEntry)
		if err != nil {
			return nil, fmt.Errorf("load build info: %w", err)
		}

		props[NamespaceBuild] = ParseProps(string(contents))
	}

	if r.Has(vendorPropsEntry) {
		contents, err := r.ReadEntry(vendorPropsEntry)
		if err != nil {
			return nil, fmt.Errorf("load build info: %w", err)
		}

		props[NamespaceVendor] = ParseProps(string(contents))
	}

	fstab := map[string]FstabEntry{}

	if r.Has(fstabEntry) {
		contents, err := r.ReadEntry(fstabEntry)
		if err != nil {
			return nil, fmt.Errorf("load build info: %w", err)
		}

		fstab = ParseFstab(string(contents))
	}

	return New(ParseProps(string(misc)), props, fstab, oemDicts, deviceOverride)
}

// Device returns the resolved device name.
func (i *Info) Device() string {
	return i.device
}

// Fingerprint returns the resolved canonical build identity.
func (i *Info) Fingerprint() string {
	return i.fingerprint
}

// IsAB reports whether the build updates via payload rather than block
// patches.
func (i *Info) IsAB() bool {
	return i.isAB
}

// UsesOEMProperties reports whether the build declares OEM-scoped
// identity properties.
func (i *Info) UsesOEMProperties() bool {
	return len(i.oemProps) > 0
}

// Value returns a build-time misc info value.
func (i *Info) Value(key string) (string, bool) {
	v, ok := i.values[key]
	return v, ok
}

// Fstab returns the recovery fstab entry for a mount point.
func (i *Info) Fstab(mountPoint string) (FstabEntry, bool) {
	entry, ok := i.fstab[mountPoint]
	return entry, ok
}

// Property returns a build property from the given namespace.
// There is no defaulting: an absent property is an error.
func (i *Info) Property(namespace, key string) (string, error) {
	v, ok := i.props[namespace][key]
	if !ok {
		return "", &MissingPropertyError{Namespace: namespace, Key: key}
	}

	return v, nil
}

// OEMProperty resolves a property OEM-first: when the property is
// OEM-scoped, the first OEM dictionary is authoritative; otherwise the
// build properties answer.
func (i *Info) OEMProperty(key string) (string, error) {
	if i.isOEMScoped(key) {
		if v, ok := i.oemDicts[0][key]; ok {
			return v, nil
		}

		return "", &MissingOEMPropertyError{Key: key}
	}

	return i.Property(NamespaceBuild, key)
}

// resolveFingerprint computes the canonical build identity.
// Builds without OEM scoping use the raw fingerprint property verbatim;
// OEM builds compose brand/name/device from OEM-preferred values with the
// thumbprint always taken from build properties.
func (i *Info) resolveFingerprint() (string, error) {
	if len(i.oemProps) == 0 {
		return i.Property(NamespaceBuild, "ro.build.fingerprint")
	}

	brand, err := i.OEMProperty("ro.product.brand")
	if err != nil {
		return "", err
	}

	name, err := i.OEMProperty("ro.product.name")
	if err != nil {
		return "", err
	}

	// The device component deliberately ignores any command-line override.
	device, err := i.OEMProperty("ro.product.device")
	if err != nil {
		return "", err
	}

	thumbprint, err := i.Property(NamespaceBuild, "ro.build.thumbprint")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/%s/%s:%s", brand, name, device, thumbprint), nil
}

// isOEMScoped reports whether the key is among the OEM-scoped identity
// properties.
func (i *Info) isOEMScoped(key string) bool {
	for _, prop := range i.oemProps {
		if prop == key {
			return true
		}
	}

	return false
}

// WriteMountOemScript emits the OEM partition mount into the script.
func (i *Info) WriteMountOemScript(sink script.Sink) {
	options, _ := i.Value("recovery_mount_options")
	sink.Mount("/oem", options)
}

// WriteDeviceAssertions emits the device identity assertions into the
// script: a single device assertion for non-OEM builds, or one assertion
// per OEM-scoped property covering the union of values across all
// supplied OEM dictionaries.
func (i *Info) WriteDeviceAssertions(sink script.Sink, oemNoMount bool) error {
	if len(i.oemProps) == 0 {
		sink.AssertDevice(i.device)
		return nil
	}

	if len(i.oemDicts) == 0 {
		return ErrOEMSourceRequired
	}

	for _, prop := range i.oemProps {
		var values []string

		for _, dict := range i.oemDicts {
			if v, ok := dict[prop]; ok {
				values = append(values, v)
			}
		}

		if len(values) == 0 {
			return &MissingOEMPropertyError{Key: prop}
		}

		sink.AssertOemProperty(prop, values, oemNoMount)
	}

	return nil
}
