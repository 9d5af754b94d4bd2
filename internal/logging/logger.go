package logging

import (
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/Iron-Ham/teelog/internal/errors"
)

// Levels as they appear in the "level" field of an entry.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Entry keys that identify where a diagnostic came from.
const (
	KeyTranscript = "transcript"
	KeyStream     = "stream"
	KeyPhase      = "phase"
)

// Capture lifecycle phases.
const (
	PhaseStart = "start"
	PhaseRead  = "read"
	PhaseStop  = "stop"
)

// LogFileName is the name of the diagnostic log inside the state directory.
const LogFileName = "debug.log"

// Logger writes JSON diagnostics. Loggers derived from one another share the
// same file. It is safe for concurrent use.
type Logger struct {
	sl  *slog.Logger
	out *output
}

// output is the file behind a family of loggers, closed at most once.
type output struct {
	w    io.WriteCloser
	once sync.Once
	err  error
}

func (o *output) close() error {
	if o == nil || o.w == nil {
		return nil
	}
	o.once.Do(func() { o.err = o.w.Close() })
	return o.err
}

func newLogger(w io.Writer, level string, out *output) *Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelOf(level)})
	return &Logger{sl: slog.New(h), out: out}
}

// levelOf maps a configured level name to a slog level. Case is ignored and
// anything unrecognised means info.
func levelOf(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// NewLogger opens {stateDir}/debug.log for appending without size limits.
// An empty stateDir gives a logger that discards everything.
//
// The diagnostic log must never share a descriptor with stdout or stderr:
// while a capture is active those streams belong to the transcript.
func NewLogger(stateDir string, level string) (*Logger, error) {
	if stateDir == "" {
		return newLogger(io.Discard, level, nil), nil
	}
	return NewLoggerWithRotation(stateDir, level, RotationConfig{})
}

// NewLoggerWithRotation is NewLogger with the file rotated by size according
// to config. stateDir must not be empty.
func NewLoggerWithRotation(stateDir string, level string, config RotationConfig) (*Logger, error) {
	if stateDir == "" {
		return nil, errors.New("rotation requires a state directory")
	}

	rw, err := NewRotatingWriter(filepath.Join(stateDir, LogFileName), config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open diagnostic log")
	}
	return newLogger(rw, level, &output{w: rw}), nil
}

// NopLogger returns a Logger that drops everything.
func NopLogger() *Logger {
	return &Logger{sl: slog.New(slog.DiscardHandler)}
}

func (l *Logger) derive(args ...any) *Logger {
	return &Logger{sl: l.sl.With(args...), out: l.out}
}

// CaptureLog holds one logger per lifecycle phase of a capture session. All
// three carry the transcript path.
type CaptureLog struct {
	Start *Logger
	Read  *Logger
	Stop  *Logger
}

// Capture returns the phase loggers for a session writing to transcript.
func (l *Logger) Capture(transcript string) CaptureLog {
	base := l.derive(KeyTranscript, transcript)
	return CaptureLog{
		Start: base.derive(KeyPhase, PhaseStart),
		Read:  base.derive(KeyPhase, PhaseRead),
		Stop:  base.derive(KeyPhase, PhaseStop),
	}
}

// WithStream tags entries with the stream they concern.
func (l *Logger) WithStream(stream string) *Logger {
	return l.derive(KeyStream, stream)
}

// With adds alternating key-value attributes to every entry.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return l.derive(args...)
}

func (l *Logger) Debug(msg string, args ...any) { l.sl.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.sl.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sl.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.sl.Error(msg, args...) }

// Close syncs and closes the log file shared by l and every logger derived
// from it. Later calls return the first result.
func (l *Logger) Close() error {
	return l.out.close()
}
