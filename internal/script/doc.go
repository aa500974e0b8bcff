// Package script defines the install-script sink consumed by the
// packaging pipeline.
//
// The sink accepts ordered high-level install actions (mounts, raw image
// writes, patch application, assertions, stage-marker manipulation) and
// serializes itself plus an interpreter binary into the output container.
// The packaging core never depends on a concrete scripting grammar; Edify
// is the default text implementation and Recorder captures actions for
// tests.
package script
