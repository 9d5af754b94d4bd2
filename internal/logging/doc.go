// Package logging provides the diagnostic log for teelog.
//
// Diagnostics are JSON lines written through log/slog to debug.log inside a
// state directory. They never go to stdout or stderr: while a capture is
// active both descriptors point at the transcript, and a diagnostic written
// there would become part of the captured output.
//
// A capture session derives its loggers once, one per phase:
//
//	log := logger.Capture("/tmp/run.log")
//	log.Read.WithStream("stdout").Debug("drained", "bytes", n)
//
// Entries written this way carry the [KeyTranscript], [KeyPhase] and
// [KeyStream] attributes that [ReadEntries] and [Filter] understand.
//
// [NewLoggerWithRotation] bounds the log by size through a [RotatingWriter].
// [ArchiveFile] uses the same numbered-backup scheme to keep older copies of
// a file before it is truncated.
//
// All types in this package are safe for concurrent use.
package logging
