// Package config defines the per-run packaging options and the persistent
// tool settings, with helpers to load, validate and save the latter in
// YAML format.
//
// Options is an immutable value threaded through every stage of a package
// build. Settings holds machine-level defaults (package key, external tool
// commands) that command-line flags may override.
package config
