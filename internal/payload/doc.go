// Package payload drives the external payload generator to produce,
// sign and embed the update payload of a package.
package payload
