// Package run executes external tools synchronously, capturing their
// combined output for diagnostics.
//
// Every packaging step that delegates to an outside process (diff engine,
// payload generator, signers) goes through Command; a nonzero exit status
// is fatal and surfaces as a CommandError carrying the captured output.
package run
