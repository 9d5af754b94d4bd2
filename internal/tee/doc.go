// Package tee captures everything the process writes to stdout and stderr
// into a transcript file while optionally echoing it back to the terminal.
//
// A [Session] points both standard descriptors at the transcript, so output
// from the Go runtime, cgo code, and inherited child processes all lands in
// one file in write order. A background reader follows the file, records
// each line in memory, and echoes it to a duplicate of the original stdout.
//
// # Lifecycle
//
//	s, err := tee.New("/tmp/run.log", tee.Options{Echo: true})
//	if err != nil {
//	    return err
//	}
//	if err := s.Start(); err != nil {
//	    return err
//	}
//	fmt.Println("captured")
//	err = s.Stop()
//	lines := s.Lines()
//
// Sessions are one-shot: Start after Stop fails with errors.ErrSessionClosed.
// [Run] wraps the sequence so Stop happens on every exit path.
//
// # Guarantees
//
// Every byte written to either stream before Stop returns is in the
// transcript and in Lines. A trailing line without a newline is kept
// as-is. With Echo, the terminal sees exactly the captured lines.
//
// Diagnostics go through [logging.Logger], which writes to its own file;
// nothing in this package writes to stdout or stderr directly.
package tee
