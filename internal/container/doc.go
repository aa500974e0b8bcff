// Package container wraps ZIP-compatible archive access for package
// assembly.
//
// It covers the narrow surface the pipeline needs: creating an archive,
// appending or deleting entries (by atomic rewrite), and resolving the
// byte offset and length of an entry's content for streaming metadata.
// Entries that update clients fetch by byte range must be written with
// store=true so the recorded range maps to the raw bytes on disk.
package container
