package logging

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/Iron-Ham/teelog/internal/errors"
)

// RotationConfig holds configuration for log rotation.
type RotationConfig struct {
	// MaxSizeMB is the size in megabytes at which the log is rotated.
	// Zero disables rotation.
	MaxSizeMB int
	// MaxBackups is the number of rotated files to keep.
	MaxBackups int
	// Compress gzips rotated files.
	Compress bool
}

// DefaultRotationConfig returns the rotation used when nothing is configured.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{MaxSizeMB: 10, MaxBackups: 3}
}

// backups names the numbered archives of one file. base.1 is the newest and
// base.<keep> the oldest; an archive may be stored gzipped as base.N.gz.
type backups struct {
	base     string
	keep     int
	compress bool
}

func (b backups) name(n int) string {
	return b.base + "." + strconv.Itoa(n)
}

// find returns the stored name of archive n.
func (b backups) find(n int) (string, bool) {
	for _, name := range []string{b.name(n) + ".gz", b.name(n)} {
		if _, err := os.Stat(name); err == nil {
			return name, true
		}
	}
	return "", false
}

// push moves base into slot 1. Older archives move up a slot and the one in
// the last slot is dropped. With keep <= 0 base is removed. It returns the
// path base now lives at, or "" when it was removed.
func (b backups) push() (string, error) {
	if b.keep <= 0 {
		if err := os.Remove(b.base); err != nil && !os.IsNotExist(err) {
			return "", errors.Wrap(err, "failed to remove log file")
		}
		return "", nil
	}

	for n := b.keep; n >= 1; n-- {
		name, ok := b.find(n)
		if !ok {
			continue
		}
		if n == b.keep {
			_ = os.Remove(name)
			continue
		}
		suffix := strings.TrimPrefix(name, b.name(n))
		_ = os.Rename(name, b.name(n+1)+suffix)
	}

	first := b.name(1)
	if err := os.Rename(b.base, first); err != nil {
		return "", errors.Wrapf(err, "failed to archive %s", filepath.Base(b.base))
	}
	return first, nil
}

// gzipFile replaces path with path.gz. The original is removed only after
// the compressed copy has been written completely.
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s for compression", path)
	}
	defer src.Close()

	gzPath := path + ".gz"
	dst, err := os.Create(gzPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", gzPath)
	}

	zw := gzip.NewWriter(dst)
	_, err = io.Copy(zw, src)
	err = errors.Join(err, zw.Close(), dst.Close())
	if err != nil {
		_ = os.Remove(gzPath)
		return errors.Wrapf(err, "failed to compress %s", path)
	}

	_ = src.Close()
	return os.Remove(path)
}

// ArchiveFile moves path to path.1, shifting older archives up to keep
// copies, and gzips the new archive when compress is set. A missing path is
// not an error. With keep <= 0 the file is left in place.
//
// Capture sessions truncate their transcript on start; archiving first keeps
// the previous run's transcript around.
func ArchiveFile(path string, keep int, compress bool) error {
	if keep <= 0 {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	b := backups{base: path, keep: keep, compress: compress}
	archived, err := b.push()
	if err != nil || !compress || archived == "" {
		return err
	}
	return gzipFile(archived)
}

// RotatingWriter appends to a log file and moves it aside once it reaches
// its size limit. Compression of rotated files runs in the background and is
// finished by Close. It is safe for concurrent use.
type RotatingWriter struct {
	mu sync.Mutex

	path    string
	limit   int64
	backups backups

	file *os.File
	size int64

	compressing sync.WaitGroup
	compressMu  sync.Mutex
	compressErr error
}

// NewRotatingWriter opens path for appending, creating its directory.
func NewRotatingWriter(path string, config RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		path:  path,
		limit: int64(config.MaxSizeMB) << 20,
		backups: backups{
			base:     path,
			keep:     config.MaxBackups,
			compress: config.Compress,
		},
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

// open starts a file at rw.path. The caller must hold the mutex.
func (rw *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(rw.path), 0755); err != nil {
		return errors.Wrap(err, "failed to create log directory")
	}
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to open log file")
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return errors.Wrap(err, "failed to stat log file")
	}
	rw.file, rw.size = f, info.Size()
	return nil
}

// Write appends p, rotating first when p would take a non-empty file past
// the limit. A failed rotation keeps writing to whichever file is open; the
// diagnostic log has nowhere else to report it.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, errors.New("log file is closed")
	}
	if rw.limit > 0 && rw.size > 0 && rw.size+int64(len(p)) > rw.limit {
		if err := rw.rotate(); err != nil && rw.file == nil {
			return 0, err
		}
	}

	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// rotate closes the current file, archives it and opens a fresh one. The
// caller must hold the mutex.
func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return errors.Wrap(err, "failed to close log file")
	}
	rw.file = nil

	archived, pushErr := rw.backups.push()
	if archived != "" && rw.backups.compress {
		rw.compressing.Add(1)
		go func() {
			defer rw.compressing.Done()
			if err := gzipFile(archived); err != nil {
				rw.compressMu.Lock()
				rw.compressErr = errors.Join(rw.compressErr, err)
				rw.compressMu.Unlock()
			}
		}()
	}

	return errors.Join(pushErr, rw.open())
}

// Sync flushes the current file to disk.
func (rw *RotatingWriter) Sync() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	return rw.file.Sync()
}

// Close waits for pending compressions, then syncs and closes the file. It
// reports compression failures. Closing twice is a no-op.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}

	rw.compressing.Wait()
	rw.compressMu.Lock()
	err := rw.compressErr
	rw.compressErr = nil
	rw.compressMu.Unlock()

	if serr := rw.file.Sync(); serr != nil {
		err = errors.Join(err, errors.Wrap(serr, "failed to sync log file"))
	}
	if cerr := rw.file.Close(); cerr != nil {
		err = errors.Join(err, errors.Wrap(cerr, "failed to close log file"))
	}
	rw.file = nil
	return err
}

// CurrentSize returns the size of the active file in bytes.
func (rw *RotatingWriter) CurrentSize() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.size
}

// FilePath returns the path of the active file.
func (rw *RotatingWriter) FilePath() string {
	return rw.path
}
