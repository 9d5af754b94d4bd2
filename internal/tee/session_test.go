//go:build !windows

package tee

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/teelog/internal/errors"
	"github.com/Iron-Ham/teelog/internal/stream"
	"github.com/Iron-Ham/teelog/internal/testutil"
)

// consoles points a session at two console stand-ins instead of the real
// standard streams.
type consoles struct {
	out, err *testutil.Console
}

func newConsoles(t *testing.T) (*consoles, Options) {
	t.Helper()
	c := &consoles{
		out: testutil.NewConsole(t, "stdout"),
		err: testutil.NewConsole(t, "stderr"),
	}
	stdout, err := stream.Open(stream.Stdout, c.out.File)
	if err != nil {
		t.Fatalf("stream.Open(stdout) failed: %v", err)
	}
	stderr, err := stream.Open(stream.Stderr, c.err.File)
	if err != nil {
		t.Fatalf("stream.Open(stderr) failed: %v", err)
	}
	t.Cleanup(func() {
		_ = stdout.Close()
		_ = stderr.Close()
	})
	return c, Options{Stdout: stdout, Stderr: stderr, PollInterval: 10 * time.Millisecond}
}

func startSession(t *testing.T, path string, opts Options) *Session {
	t.Helper()
	s, err := New(path, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s
}

func stopSession(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func assertLines(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d lines %q, want %d lines %q", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		path string
		opts Options
	}{
		{"empty path", "", Options{}},
		{"negative poll interval", "out.log", Options{PollInterval: -time.Second}},
		{"negative stop timeout", "out.log", Options{StopTimeout: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.path, tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if s != nil {
				t.Error("expected nil session")
			}
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestNew_DoesNotTouchStreams(t *testing.T) {
	c, opts := newConsoles(t)
	path := testutil.TempLogPath(t, "out.log")

	s, err := New(path, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Active() {
		t.Error("new session should not be active")
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("New must not create the transcript")
	}

	c.out.Write(t, "visible\n")
	if got := c.out.Contents(t); got != "visible\n" {
		t.Errorf("console = %q", got)
	}
}

func TestSession_CapturesStdout(t *testing.T) {
	c, opts := newConsoles(t)
	path := testutil.TempLogPath(t, "out.log")

	s := startSession(t, path, opts)
	if !s.Active() {
		t.Error("session should be active after Start")
	}
	c.out.Write(t, "Hello\n")
	stopSession(t, s)

	if s.Active() {
		t.Error("session should not be active after Stop")
	}
	if got := testutil.ReadFile(t, path); got != "Hello\n" {
		t.Errorf("transcript = %q, want %q", got, "Hello\n")
	}
	assertLines(t, s.Lines(), "Hello\n")
	if got := c.out.Contents(t); got != "" {
		t.Errorf("console should be empty without echo, got %q", got)
	}
}

func TestSession_CapturesBothStreamsInWriteOrder(t *testing.T) {
	c, opts := newConsoles(t)
	path := testutil.TempLogPath(t, "out.log")

	s := startSession(t, path, opts)
	c.out.Write(t, "out 1\n")
	c.err.Write(t, "err 1\n")
	c.out.Write(t, "out 2\n")
	c.err.Write(t, "err 2\n")
	stopSession(t, s)

	assertLines(t, s.Lines(), "out 1\n", "err 1\n", "out 2\n", "err 2\n")
	if got := testutil.ReadFile(t, path); got != strings.Join(s.Lines(), "") {
		t.Errorf("transcript %q does not match lines", got)
	}
}

func TestSession_TruncatesExistingTranscript(t *testing.T) {
	c, opts := newConsoles(t)
	path := testutil.TempLogPath(t, "out.log")
	if err := os.WriteFile(path, []byte("stale line\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s := startSession(t, path, opts)
	c.out.Write(t, "fresh\n")
	stopSession(t, s)

	assertLines(t, s.Lines(), "fresh\n")
}

func TestSession_UnterminatedTrailingLine(t *testing.T) {
	c, opts := newConsoles(t)
	s := startSession(t, testutil.TempLogPath(t, "out.log"), opts)

	c.out.Write(t, "whole\npartial")
	stopSession(t, s)

	assertLines(t, s.Lines(), "whole\n", "partial")
}

func TestSession_LineSplitAcrossWrites(t *testing.T) {
	c, opts := newConsoles(t)
	s := startSession(t, testutil.TempLogPath(t, "out.log"), opts)

	c.out.Write(t, "ab")
	time.Sleep(3 * opts.PollInterval)
	c.out.Write(t, "c\n")
	stopSession(t, s)

	assertLines(t, s.Lines(), "abc\n")
}

func TestSession_NoOutput(t *testing.T) {
	_, opts := newConsoles(t)
	path := testutil.TempLogPath(t, "out.log")

	s := startSession(t, path, opts)
	stopSession(t, s)

	if lines := s.Lines(); len(lines) != 0 {
		t.Errorf("expected no lines, got %q", lines)
	}
	if got := testutil.ReadFile(t, path); got != "" {
		t.Errorf("transcript = %q, want empty", got)
	}
}

func TestSession_NothingLostOnStop(t *testing.T) {
	c, opts := newConsoles(t)
	opts.PollInterval = time.Hour

	s := startSession(t, testutil.TempLogPath(t, "out.log"), opts)

	const n = 5000
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	c.out.Write(t, b.String())
	stopSession(t, s)

	lines := s.Lines()
	if len(lines) != n {
		t.Fatalf("got %d lines, want %d", len(lines), n)
	}
	if lines[0] != "line 0\n" || lines[n-1] != fmt.Sprintf("line %d\n", n-1) {
		t.Errorf("unexpected boundaries: %q ... %q", lines[0], lines[n-1])
	}
}

func TestSession_Echo(t *testing.T) {
	c, opts := newConsoles(t)
	opts.Echo = true

	c.out.Write(t, "before\n")
	s := startSession(t, testutil.TempLogPath(t, "out.log"), opts)
	c.out.Write(t, "one\n")
	c.err.Write(t, "two\n")
	c.out.Write(t, "three")
	stopSession(t, s)
	c.out.Write(t, "after\n")

	assertLines(t, s.Lines(), "one\n", "two\n", "three")
	want := "before\n" + strings.Join(s.Lines(), "") + "after\n"
	if got := c.out.Contents(t); got != want {
		t.Errorf("console = %q, want %q", got, want)
	}
	if got := c.err.Contents(t); got != "" {
		t.Errorf("echo must go to stdout only, stderr console = %q", got)
	}
}

func TestSession_LinesVisibleWhileActive(t *testing.T) {
	c, opts := newConsoles(t)
	s := startSession(t, testutil.TempLogPath(t, "out.log"), opts)
	defer s.Stop()

	c.out.Write(t, "early\n")

	deadline := time.Now().Add(5 * time.Second)
	for len(s.Lines()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("line never observed while active")
		}
		time.Sleep(5 * time.Millisecond)
	}
	assertLines(t, s.Lines(), "early\n")
}

func TestSession_WatchWakesReader(t *testing.T) {
	c, opts := newConsoles(t)
	opts.PollInterval = time.Hour
	opts.Watch = true

	s := startSession(t, testutil.TempLogPath(t, "out.log"), opts)
	defer s.Stop()

	c.out.Write(t, "woken\n")

	deadline := time.Now().Add(5 * time.Second)
	for len(s.Lines()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("reader was not woken by the file watch")
		}
		time.Sleep(5 * time.Millisecond)
	}
	assertLines(t, s.Lines(), "woken\n")
}

func TestSession_StateErrors(t *testing.T) {
	_, opts := newConsoles(t)
	path := testutil.TempLogPath(t, "out.log")

	s, err := New(path, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.Stop(); !errors.Is(err, errors.ErrSessionNotActive) {
		t.Errorf("Stop before Start = %v, want ErrSessionNotActive", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	err = s.Start()
	if !errors.Is(err, errors.ErrSessionAlreadyActive) {
		t.Errorf("second Start = %v, want ErrSessionAlreadyActive", err)
	}
	if !s.Active() {
		t.Error("rejected Start must leave the session active")
	}

	stopSession(t, s)

	if err := s.Stop(); !errors.Is(err, errors.ErrSessionNotActive) {
		t.Errorf("second Stop = %v, want ErrSessionNotActive", err)
	}
	if err := s.Start(); !errors.Is(err, errors.ErrSessionClosed) {
		t.Errorf("Start after Stop = %v, want ErrSessionClosed", err)
	}

	var capErr *errors.CaptureError
	if err := s.Start(); !errors.As(err, &capErr) || capErr.Path != path {
		t.Errorf("state error should be a CaptureError for %s, got %v", path, err)
	}
}

func TestSession_OpenFailureLeavesStreamsAlone(t *testing.T) {
	c, opts := newConsoles(t)
	path := testutil.TempLogPath(t, "missing/dir/out.log")

	s, err := New(path, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	err = s.Start()
	if !errors.Is(err, errors.ErrLogFileOpen) {
		t.Fatalf("Start = %v, want ErrLogFileOpen", err)
	}
	var capErr *errors.CaptureError
	if !errors.As(err, &capErr) {
		t.Fatalf("error should be a CaptureError, got %T", err)
	}
	if capErr.Path != path || capErr.Phase != "start" {
		t.Errorf("CaptureError = %+v", capErr)
	}

	if s.Active() {
		t.Error("failed Start must not activate the session")
	}
	if opts.Stdout.Engaged() || opts.Stderr.Engaged() {
		t.Error("failed Start must not leave streams redirected")
	}
	c.out.Write(t, "still here\n")
	if got := c.out.Contents(t); got != "still here\n" {
		t.Errorf("console = %q", got)
	}
}

func TestSession_SecondSessionOnSameStreamsRejected(t *testing.T) {
	c, opts := newConsoles(t)
	outerPath := testutil.TempLogPath(t, "outer.log")
	innerPath := testutil.TempLogPath(t, "inner.log")

	outer := startSession(t, outerPath, opts)
	c.out.Write(t, "outer before\n")

	innerOut, err := stream.Open(stream.Stdout, c.out.File)
	if err != nil {
		t.Fatal(err)
	}
	defer innerOut.Close()
	innerErr, err := stream.Open(stream.Stderr, c.err.File)
	if err != nil {
		t.Fatal(err)
	}
	defer innerErr.Close()

	inner, err := New(innerPath, Options{Stdout: innerOut, Stderr: innerErr, PollInterval: opts.PollInterval})
	if err != nil {
		t.Fatal(err)
	}
	err = inner.Start()
	if !errors.Is(err, errors.ErrStreamEngaged) {
		t.Fatalf("inner Start error = %v, want ErrStreamEngaged", err)
	}
	if inner.Active() {
		t.Error("rejected session must not be active")
	}
	if innerOut.Engaged() || innerErr.Engaged() {
		t.Error("rejected session left a handle engaged")
	}
	if !outer.Active() {
		t.Fatal("outer session must stay active")
	}

	c.out.Write(t, "outer after\n")
	c.err.Write(t, "outer err\n")
	stopSession(t, outer)

	// The rejected session created its transcript but captured nothing.
	if got := testutil.ReadFile(t, innerPath); got != "" {
		t.Errorf("inner transcript = %q, want empty", got)
	}
	assertLines(t, outer.Lines(), "outer before\n", "outer after\n", "outer err\n")

	c.out.Write(t, "console\n")
	if got := c.out.Contents(t); got != "console\n" {
		t.Errorf("console = %q, want %q", got, "console\n")
	}
}

func TestSession_OutOfOrderStopCannotStrandStreams(t *testing.T) {
	c, opts := newConsoles(t)
	aPath := testutil.TempLogPath(t, "a.log")

	a := startSession(t, aPath, opts)

	bOut, err := stream.Open(stream.Stdout, c.out.File)
	if err != nil {
		t.Fatal(err)
	}
	defer bOut.Close()
	bErr, err := stream.Open(stream.Stderr, c.err.File)
	if err != nil {
		t.Fatal(err)
	}
	defer bErr.Close()
	b, err := New(testutil.TempLogPath(t, "b.log"), Options{Stdout: bOut, Stderr: bErr, PollInterval: opts.PollInterval})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Start(); !errors.Is(err, errors.ErrStreamEngaged) {
		t.Fatalf("b.Start error = %v, want ErrStreamEngaged", err)
	}

	stopSession(t, a)
	if err := b.Stop(); !errors.Is(err, errors.ErrSessionNotActive) {
		t.Errorf("b.Stop error = %v, want ErrSessionNotActive", err)
	}

	c.out.Write(t, "after both stopped\n")
	if got := c.out.Contents(t); got != "after both stopped\n" {
		t.Errorf("console = %q, want %q", got, "after both stopped\n")
	}
	if got := testutil.ReadFile(t, aPath); got != "" {
		t.Errorf("a.log = %q, want empty", got)
	}
}

func TestSession_StopTimeout(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe failed: %v", err)
	}
	defer r.Close()
	defer w.Close()

	stdout, err := stream.Open(stream.Stdout, w)
	if err != nil {
		t.Fatal(err)
	}
	defer stdout.Close()
	errConsole := testutil.NewConsole(t, "stderr")
	stderr, err := stream.Open(stream.Stderr, errConsole.File)
	if err != nil {
		t.Fatal(err)
	}
	defer stderr.Close()

	s := startSession(t, testutil.TempLogPath(t, "out.log"), Options{
		Stdout:       stdout,
		Stderr:       stderr,
		Echo:         true,
		PollInterval: 10 * time.Millisecond,
		StopTimeout:  200 * time.Millisecond,
	})

	// Nobody reads the pipe, so echoing more than its buffer blocks the reader.
	line := strings.Repeat("x", 1023) + "\n"
	for i := 0; i < 512; i++ {
		if _, err := w.WriteString(line); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}
	time.Sleep(100 * time.Millisecond)

	err = s.Stop()
	if !errors.Is(err, errors.ErrJoinTimeout) {
		t.Fatalf("Stop = %v, want ErrJoinTimeout", err)
	}
	var timeoutErr *errors.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error should contain a TimeoutError, got %v", err)
	}
	if timeoutErr.Duration != 200*time.Millisecond {
		t.Errorf("Duration = %s", timeoutErr.Duration)
	}
	if lines := s.Lines(); lines != nil {
		t.Errorf("Lines after abandoned reader = %d lines, want nil", len(lines))
	}
	if stdout.Engaged() || stderr.Engaged() {
		t.Error("streams must be restored even when the reader is abandoned")
	}
	if s.Active() {
		t.Error("session should not be active after Stop")
	}
}

func TestRun(t *testing.T) {
	t.Run("returns captured lines", func(t *testing.T) {
		c, opts := newConsoles(t)
		lines, err := Run(testutil.TempLogPath(t, "out.log"), opts, func() error {
			c.out.Write(t, "inside\n")
			return nil
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		assertLines(t, lines, "inside\n")
	})

	t.Run("propagates the function error", func(t *testing.T) {
		c, opts := newConsoles(t)
		boom := errors.New("boom")
		lines, err := Run(testutil.TempLogPath(t, "out.log"), opts, func() error {
			c.err.Write(t, "failing\n")
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Run error = %v, want boom", err)
		}
		assertLines(t, lines, "failing\n")
		if opts.Stdout.Engaged() {
			t.Error("streams must be restored")
		}
	})

	t.Run("restores streams on panic", func(t *testing.T) {
		c, opts := newConsoles(t)
		defer func() {
			if r := recover(); r != "kaboom" {
				t.Fatalf("recovered %v, want kaboom", r)
			}
			if opts.Stdout.Engaged() || opts.Stderr.Engaged() {
				t.Error("streams must be restored after a panic")
			}
			c.out.Write(t, "console again\n")
			if got := c.out.Contents(t); got != "console again\n" {
				t.Errorf("console = %q", got)
			}
		}()

		_, _ = Run(testutil.TempLogPath(t, "out.log"), opts, func() error {
			c.out.Write(t, "before panic\n")
			panic("kaboom")
		})
	})

	t.Run("start failure skips the function", func(t *testing.T) {
		_, opts := newConsoles(t)
		called := false
		_, err := Run(testutil.TempLogPath(t, "nope/out.log"), opts, func() error {
			called = true
			return nil
		})
		if !errors.Is(err, errors.ErrLogFileOpen) {
			t.Errorf("Run error = %v, want ErrLogFileOpen", err)
		}
		if called {
			t.Error("fn must not run when Start fails")
		}
	})
}
