// Package streaming computes the property-files strings that let an
// update client fetch the critical entries of a package over ranged
// reads, without downloading the whole archive first.
package streaming
