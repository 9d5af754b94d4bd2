// Package stream redirects one of the process's standard output streams at
// the OS descriptor level and restores it afterwards.
//
// A [Handle] owns the redirection state for exactly one stream identity
// ([Stdout] or [Stderr]). Because the swap happens on the descriptor rather
// than on the *os.File value, everything that writes to the descriptor is
// redirected: the Go runtime, cgo libraries, and child processes that inherit
// it.
//
// # Lifecycle
//
// A Handle is built once and may be engaged many times:
//
//	h, err := stream.New(stream.Stdout)
//	if err != nil {
//	    return err
//	}
//	if err := h.RedirectTo(logFile.Fd()); err != nil {
//	    return err
//	}
//	// ... writes to fd 1 now land in logFile ...
//	if err := h.Restore(); err != nil {
//	    return err
//	}
//
// New saves a duplicate of the stream's current descriptor. Restore points
// the stream back at that duplicate and closes it; a second Restore without
// an intervening RedirectTo fails with errors.ErrAlreadyRestored and changes
// nothing. RedirectTo after a Restore takes a fresh duplicate first.
//
// # Flushing
//
// *os.File performs no user-space buffering, so the only flush that matters
// is the platform's native one: fsync on Unix, FlushFileBuffers on Windows.
// Descriptors that cannot be synced (terminals, pipes) are treated as already
// flushed. Flush may be called concurrently from several goroutines.
//
// fsync forces a disk writeback, which costs far more than the write itself.
// [FlushAll] syncs each distinct open file once, so a capture that points
// stdout and stderr at one transcript pays for a single sync per pass.
//
// # Thread Safety
//
// All exported methods on Handle are safe for concurrent use. Swapping the
// descriptor is process-wide state, so at most one Handle per stream may be
// engaged at a time. RedirectTo on a second Handle for a stream that is
// already redirected fails with errors.ErrStreamEngaged; the owning Handle
// may keep layering targets.
package stream
