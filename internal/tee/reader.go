package tee

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/teelog/internal/errors"
	"github.com/Iron-Ham/teelog/internal/logging"
	"github.com/Iron-Ham/teelog/internal/stream"
)

const readChunkSize = 32 * 1024

// reader follows the transcript from the start and turns it into lines.
// It owns src, echo, and watcher and closes them when run returns.
type reader struct {
	src      *os.File
	echo     *echoWriter
	watcher  *fsnotify.Watcher
	interval time.Duration

	flush func() error
	emit  func([]string)

	logger *logging.Logger

	buf     []byte
	pending []byte
}

// run polls until cancel is closed, then makes one final pass that also
// emits any unterminated trailing line.
func (r *reader) run(cancel <-chan struct{}) (err error) {
	defer func() {
		err = errors.Join(err, r.close())
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if r.watcher != nil {
		events = r.watcher.Events
		watchErrs = r.watcher.Errors
	}

	for {
		final := false
		select {
		case <-cancel:
			final = true
		case <-ticker.C:
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case werr, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			r.logger.Warn("file watch error", "error", werr.Error())
			continue
		}

		if err := r.pass(final); err != nil {
			return err
		}
		if final {
			return nil
		}
	}
}

// pass flushes the captured streams and consumes everything the transcript
// holds right now.
func (r *reader) pass(final bool) error {
	if err := r.flush(); err != nil {
		r.logger.Warn("flush failed", "error", err.Error())
	}

	lines, err := r.drain()
	if final && len(r.pending) > 0 {
		lines = append(lines, string(r.pending))
		r.pending = nil
	}
	if len(lines) > 0 {
		r.emit(lines)
		r.echo.writeLines(lines, r.logger)
		r.logger.Debug("lines captured", "count", len(lines), "final", final)
	}
	return err
}

// drain reads src to its current end and returns every complete line.
// Bytes after the last newline stay pending.
func (r *reader) drain() ([]string, error) {
	if r.buf == nil {
		r.buf = make([]byte, readChunkSize)
	}

	var lines []string
	for {
		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = append(r.pending, r.buf[:n]...)
			lines = r.splitPending(lines)
		}
		if err == io.EOF || (n == 0 && err == nil) {
			return lines, nil
		}
		if err != nil {
			return lines, errors.NewCaptureError("read log file", err).WithPath(r.src.Name()).WithPhase("read")
		}
	}
}

func (r *reader) splitPending(lines []string) []string {
	for {
		i := bytes.IndexByte(r.pending, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(r.pending[:i+1]))
		r.pending = r.pending[i+1:]
	}
	if len(r.pending) == 0 {
		r.pending = nil
	}
	return lines
}

func (r *reader) close() error {
	var errs []error
	if r.watcher != nil {
		errs = append(errs, r.watcher.Close())
	}
	errs = append(errs, r.echo.close())
	if err := r.src.Close(); err != nil {
		errs = append(errs, errors.NewCaptureError("close log reader", err).WithPath(r.src.Name()).WithPhase("read"))
	}
	return errors.Join(errs...)
}

// newWatcher watches the directory holding path. Watching the directory
// keeps working when the file is replaced.
func newWatcher(path string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// echoWriter copies captured lines to the terminal the session started on.
// The first write failure disables echoing; capture continues.
type echoWriter struct {
	f   *os.File
	out *bufio.Writer
	err error
}

func newEchoWriter(f *os.File) *echoWriter {
	if f == nil {
		return &echoWriter{}
	}
	return &echoWriter{f: f, out: bufio.NewWriter(f)}
}

func (e *echoWriter) writeLines(lines []string, logger *logging.Logger) {
	if e.out == nil || e.err != nil {
		return
	}
	for _, line := range lines {
		if _, err := e.out.WriteString(line); err != nil {
			e.fail(err, logger)
			return
		}
		if err := e.out.Flush(); err != nil {
			e.fail(err, logger)
			return
		}
	}
}

func (e *echoWriter) fail(err error, logger *logging.Logger) {
	e.err = errors.NewCaptureError("echo", err).WithPhase("read")
	logger.Warn("echo disabled after write failure", "error", err.Error())
}

func (e *echoWriter) close() error {
	if e.f == nil {
		return nil
	}
	var errs []error
	if e.err == nil {
		if err := e.out.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := stream.SyncFile(e.f); err != nil {
			errs = append(errs, err)
		}
	} else {
		errs = append(errs, e.err)
	}
	errs = append(errs, e.f.Close())
	e.f, e.out = nil, nil
	return errors.Join(errs...)
}
