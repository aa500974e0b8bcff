// Package buildinfo resolves the identity of a device software build.
//
// An Info value wraps the build-time property namespaces, the optional
// OEM override dictionaries supplied at packaging time, and the resolved
// device name and fingerprint. It is constructed once per build at the
// start of package generation and read-only afterwards.
package buildinfo
