// Package logging provides structured logging setup with file rotation.
//
// Logs are written as JSON lines via log/slog to a size-rotated file under
// ~/.temario/logs/, optionally mirrored to stderr for interactive runs.
// The Viewer type parses those files back for the `temario logs` command.
package logging
