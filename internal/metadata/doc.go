// Package metadata builds the declarative metadata record embedded in an
// update package.
//
// The record drives install-time applicability checks on the device:
// build fingerprints, timestamps, package type, and the downgrade and
// wipe markers. Serialization is a newline-separated key=value listing
// with keys sorted ascending, stored uncompressed at a fixed path so
// update clients can fetch it by byte range.
package metadata
