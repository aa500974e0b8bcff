// Package blockdiff produces block-level partition updates through the
// external diffing tool and emits the script actions that apply them.
package blockdiff
