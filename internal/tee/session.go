package tee

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/teelog/internal/errors"
	"github.com/Iron-Ham/teelog/internal/logging"
	"github.com/Iron-Ham/teelog/internal/stream"
)

// DefaultPollInterval is how long the reader waits between passes when
// nothing wakes it earlier.
const DefaultPollInterval = 100 * time.Millisecond

// Options configures a Session.
type Options struct {
	// Echo copies every captured line to the stdout the session started with.
	Echo bool

	// PollInterval bounds the time between reader passes.
	// Zero means DefaultPollInterval.
	PollInterval time.Duration

	// StopTimeout bounds how long Stop waits for the reader to exit.
	// Zero waits indefinitely.
	StopTimeout time.Duration

	// Watch wakes the reader on filesystem write events in addition to polling.
	Watch bool

	// Logger receives diagnostics. Nil discards them.
	Logger *logging.Logger

	// Stdout and Stderr override the streams being captured. Nil means the
	// process's real standard streams.
	Stdout *stream.Handle
	Stderr *stream.Handle
}

type state int

const (
	stateInactive state = iota
	stateActive
	stateStopped
)

func (s state) String() string {
	switch s {
	case stateInactive:
		return "inactive"
	case stateActive:
		return "active"
	case stateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session tees the standard streams into a transcript file.
//
// Thread Safety: All methods are safe for concurrent use.
type Session struct {
	mu    sync.Mutex
	path  string
	opts  Options
	log   logging.CaptureLog
	state state

	stdout, stderr *stream.Handle
	ownStreams     bool

	write *os.File

	cancel  chan struct{}
	wg      conc.WaitGroup
	readErr error

	linesMu   sync.Mutex
	lines     []string
	abandoned bool
}

// New prepares a session writing to path. It does not touch any
// descriptor; Start does.
func New(path string, opts Options) (*Session, error) {
	if path == "" {
		return nil, errors.NewCaptureError("transcript path is empty", errors.ErrInvalidInput).WithPhase("start")
	}
	if opts.PollInterval < 0 {
		return nil, errors.NewCaptureError(fmt.Sprintf("negative poll interval %s", opts.PollInterval), errors.ErrInvalidInput).WithPath(path)
	}
	if opts.StopTimeout < 0 {
		return nil, errors.NewCaptureError(fmt.Sprintf("negative stop timeout %s", opts.StopTimeout), errors.ErrInvalidInput).WithPath(path)
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Session{
		path: path,
		opts: opts,
		log:  logger.Capture(path),
	}, nil
}

// Path returns the transcript path.
func (s *Session) Path() string {
	return s.path
}

// Active reports whether the session is currently capturing.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateActive
}

// Lines returns the captured lines, each with its line terminator except a
// final unterminated one. The slice is complete once Stop has returned. It
// is nil if Stop gave up waiting for the reader.
func (s *Session) Lines() []string {
	s.linesMu.Lock()
	defer s.linesMu.Unlock()

	if s.abandoned {
		return nil
	}
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Session) lineCount() int {
	s.linesMu.Lock()
	defer s.linesMu.Unlock()
	return len(s.lines)
}

func (s *Session) appendLines(lines []string) {
	s.linesMu.Lock()
	s.lines = append(s.lines, lines...)
	s.linesMu.Unlock()
}

// Start truncates the transcript, points stdout and stderr at it, and
// starts the background reader. If any step fails the streams are left as
// they were. A stream already redirected by another session fails with
// errors.ErrStreamEngaged.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateActive:
		return errors.NewCaptureError("start", errors.ErrSessionAlreadyActive).WithPath(s.path).WithPhase("start")
	case stateStopped:
		return errors.NewCaptureError("start", errors.ErrSessionClosed).WithPath(s.path).WithPhase("start")
	}

	log := s.log.Start

	if err := s.openStreams(); err != nil {
		return err
	}

	write, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		_ = s.closeOwnedStreams()
		return s.openError(err)
	}
	read, err := os.Open(s.path)
	if err != nil {
		_ = write.Close()
		_ = s.closeOwnedStreams()
		return s.openError(err)
	}

	var echo *os.File
	if s.opts.Echo {
		if echo, err = s.stdout.DupOriginal(); err != nil {
			_ = read.Close()
			_ = write.Close()
			_ = s.closeOwnedStreams()
			return err
		}
	}

	rollback := func(cause error) error {
		errs := []error{cause}
		if echo != nil {
			errs = append(errs, echo.Close())
		}
		errs = append(errs, read.Close(), write.Close(), s.closeOwnedStreams())
		return errors.Join(errs...)
	}

	if err := s.stdout.RedirectTo(write.Fd()); err != nil {
		return rollback(err)
	}
	if err := s.stderr.RedirectTo(write.Fd()); err != nil {
		return rollback(errors.Join(err, s.stdout.Restore()))
	}

	var watcher *fsnotify.Watcher
	if s.opts.Watch {
		watcher, err = newWatcher(s.path)
		if err != nil {
			log.Warn("file watch unavailable, polling only", "error", err.Error())
			watcher = nil
		}
	}

	r := &reader{
		src:      read,
		echo:     newEchoWriter(echo),
		watcher:  watcher,
		interval: s.opts.PollInterval,
		flush:    s.flushStreams,
		emit:     s.appendLines,
		logger:   s.log.Read,
	}

	s.write = write
	s.cancel = make(chan struct{})
	s.readErr = nil
	cancel := s.cancel
	s.wg.Go(func() {
		err := r.run(cancel)
		s.mu.Lock()
		s.readErr = err
		s.mu.Unlock()
	})
	s.state = stateActive

	log.Info("capture started",
		"echo", s.opts.Echo,
		"watch", watcher != nil,
		"poll_interval_ms", s.opts.PollInterval.Milliseconds())
	return nil
}

func (s *Session) openError(err error) error {
	return errors.NewCaptureError("open log file", fmt.Errorf("%w: %w", errors.ErrLogFileOpen, err)).
		WithPath(s.path).
		WithPhase("start")
}

// openStreams fills in the stream handles when none were injected.
func (s *Session) openStreams() error {
	if s.opts.Stdout != nil && s.opts.Stderr != nil {
		s.stdout, s.stderr = s.opts.Stdout, s.opts.Stderr
		return nil
	}

	stdout, stderr := s.opts.Stdout, s.opts.Stderr
	var created []*stream.Handle
	if stdout == nil {
		h, err := stream.New(stream.Stdout)
		if err != nil {
			return err
		}
		stdout = h
		created = append(created, h)
	}
	if stderr == nil {
		h, err := stream.New(stream.Stderr)
		if err != nil {
			for _, c := range created {
				_ = c.Close()
			}
			return err
		}
		stderr = h
		created = append(created, h)
	}

	s.stdout, s.stderr = stdout, stderr
	s.ownStreams = len(created) > 0
	return nil
}

// closeOwnedStreams releases handles the session created itself.
func (s *Session) closeOwnedStreams() error {
	if !s.ownStreams {
		return nil
	}
	var errs []error
	if s.opts.Stdout == nil {
		errs = append(errs, s.stdout.Close())
	}
	if s.opts.Stderr == nil {
		errs = append(errs, s.stderr.Close())
	}
	s.ownStreams = false
	return errors.Join(errs...)
}

// flushStreams syncs the transcript once; both streams point at it.
func (s *Session) flushStreams() error {
	return stream.FlushAll(s.stdout, s.stderr)
}

// Stop drains the transcript, restores stdout and stderr, and releases the
// session's files. Every failure along the way is reported; none of them
// stops the remaining cleanup.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != stateActive {
		st := s.state
		s.mu.Unlock()
		return errors.NewCaptureError(fmt.Sprintf("stop from %s state", st), errors.ErrSessionNotActive).
			WithPath(s.path).
			WithPhase("stop")
	}
	s.state = stateStopped
	cancel := s.cancel
	s.mu.Unlock()

	log := s.log.Stop
	var errs []error

	if err := s.flushStreams(); err != nil {
		log.Warn("flush before stop failed", "error", err.Error())
		errs = append(errs, err)
	}

	close(cancel)
	if err := s.join(); err != nil {
		errs = append(errs, err)
	}

	for _, h := range []*stream.Handle{s.stderr, s.stdout} {
		if err := h.Restore(); err != nil {
			log.WithStream(h.Identity().String()).Error("restore failed", "error", err.Error())
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeOwnedStreams(); err != nil {
		errs = append(errs, err)
	}
	if err := s.write.Close(); err != nil {
		errs = append(errs, errors.NewCaptureError("close log file", err).WithPath(s.path).WithPhase("stop"))
	}
	s.write = nil
	if s.readErr != nil {
		errs = append(errs, s.readErr)
	}

	err := errors.Join(errs...)
	if err != nil {
		log.Error("capture stopped with errors", "error", err.Error())
	} else {
		log.Info("capture stopped", "lines", s.lineCount())
	}
	return err
}

// join waits for the reader, bounded by StopTimeout when set.
func (s *Session) join() error {
	done := make(chan error, 1)
	go func() {
		if r := s.wg.WaitAndRecover(); r != nil {
			done <- errors.NewCaptureError("background reader panicked", r.AsError()).
				WithPath(s.path).
				WithPhase("read").
				WithSeverity(errors.SeverityCritical)
			return
		}
		done <- nil
	}()

	if s.opts.StopTimeout <= 0 {
		return <-done
	}

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		s.linesMu.Lock()
		s.abandoned = true
		s.linesMu.Unlock()
		s.log.Stop.Error("background reader did not exit", "timeout", s.opts.StopTimeout.String())
		return errors.NewTimeoutError("join background reader", s.opts.StopTimeout).WithCause(errors.ErrJoinTimeout)
	}
}

// Run captures output for the duration of fn. Stop runs on every exit
// path; a panic in fn propagates after the streams are restored. The
// returned error joins fn's error with any Stop failure.
func Run(path string, opts Options, fn func() error) (lines []string, err error) {
	s, err := New(path, opts)
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}

	defer func() {
		r := recover()
		stopErr := s.Stop()
		if r != nil {
			if stopErr != nil {
				s.log.Stop.Error("stop during panic failed", "error", stopErr.Error())
			}
			panic(r)
		}
		lines = s.Lines()
		err = errors.Join(err, stopErr)
	}()

	return nil, fn()
}
