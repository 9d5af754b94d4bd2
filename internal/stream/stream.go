package stream

import (
	"fmt"
	"os"
	"sync"

	"github.com/Iron-Ham/teelog/internal/errors"
)

// Identity names a standard output stream.
type Identity int

const (
	// Stdout is the process's standard output.
	Stdout Identity = iota + 1
	// Stderr is the process's standard error.
	Stderr
)

// String returns "stdout" or "stderr".
func (id Identity) String() string {
	switch id {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("stream(%d)", int(id))
	}
}

// Valid reports whether id is Stdout or Stderr.
func (id Identity) Valid() bool {
	return id == Stdout || id == Stderr
}

// nativeSync is the platform flush, replaceable in tests.
var nativeSync = syncDescriptor

// invalidDescriptor marks a saved slot that holds no descriptor.
const invalidDescriptor = ^uintptr(0)

// Handle owns the redirection state of one standard stream.
type Handle struct {
	mu sync.Mutex

	id   Identity
	fd   uintptr  // descriptor the process writes this stream through
	file *os.File // language-level stream object for fd
	std  bool     // fd is the process's real standard descriptor

	saved      uintptr // duplicate of the pre-redirection target
	redirected bool
	owned      bool // fd was created by this handle (Windows only)

	slot slot // process-wide key for the stream while engaged
}

// slot identifies a redirectable stream process-wide. Real standard streams
// are keyed by identity alone because their handle value changes on Windows;
// other files by the descriptor they were opened with.
type slot struct {
	id  Identity
	std bool
	fd  uintptr
}

// engaged records which Handle currently has each slot redirected. At most
// one Handle per stream may be engaged at a time: a second one would restore
// out of order and leave the stream pointing at a closed file.
var (
	engagedMu sync.Mutex
	engaged   = make(map[slot]*Handle)
)

func (h *Handle) claim() error {
	engagedMu.Lock()
	defer engagedMu.Unlock()

	if owner, ok := engaged[h.slot]; ok && owner != h {
		return errors.ErrStreamEngaged
	}
	engaged[h.slot] = h
	return nil
}

func (h *Handle) release() {
	engagedMu.Lock()
	defer engagedMu.Unlock()

	if engaged[h.slot] == h {
		delete(engaged, h.slot)
	}
}

// New captures the process's current descriptor for id and saves a
// duplicate of it so it can be restored later.
func New(id Identity) (*Handle, error) {
	if !id.Valid() {
		return nil, errors.NewStreamError("construct", errors.ErrUnsupportedStream).WithStream(id.String())
	}
	fd, file, err := stdDescriptor(id)
	if err != nil {
		return nil, errors.NewStreamError("lookup descriptor", err).WithStream(id.String())
	}
	return newHandle(id, fd, file, true)
}

// Open builds a Handle that plays the role of id over an arbitrary file.
// It lets a capture be pointed at a descriptor other than the real standard
// stream, e.g. a console stand-in under test. The file stays owned by the
// caller.
func Open(id Identity, f *os.File) (*Handle, error) {
	if !id.Valid() {
		return nil, errors.NewStreamError("construct", errors.ErrUnsupportedStream).WithStream(id.String())
	}
	return newHandle(id, f.Fd(), f, false)
}

func newHandle(id Identity, fd uintptr, file *os.File, std bool) (*Handle, error) {
	h := &Handle{
		id:    id,
		fd:    fd,
		file:  file,
		std:   std,
		saved: invalidDescriptor,
		slot:  slot{id: id, std: std},
	}
	if !std {
		h.slot.fd = fd
	}
	saved, err := dupDescriptor(fd)
	if err != nil {
		return nil, h.wrap("dup", err)
	}
	h.saved = saved
	return h, nil
}

// Identity returns the stream this handle manages.
func (h *Handle) Identity() Identity {
	return h.id
}

// Fd returns the descriptor the process writes this stream through.
func (h *Handle) Fd() uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fd
}

// File returns the language-level stream object for the descriptor.
func (h *Handle) File() *os.File {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file
}

// Engaged reports whether the stream is currently redirected.
func (h *Handle) Engaged() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.redirected
}

// RedirectTo flushes the stream and repoints its descriptor at target.
// Successive calls on the same Handle layer targets; Restore always returns to
// the target that was current before the first call. While the stream is
// engaged, RedirectTo on any other Handle for it fails with
// errors.ErrStreamEngaged.
func (h *Handle) RedirectTo(target uintptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.redirected {
		if err := h.claim(); err != nil {
			return h.wrap("redirect", err)
		}
	}
	if h.saved == invalidDescriptor {
		saved, err := dupDescriptor(h.fd)
		if err != nil {
			h.releaseIfIdle()
			return h.wrap("dup", err)
		}
		h.saved = saved
	}
	if err := h.redirect(target); err != nil {
		h.releaseIfIdle()
		return err
	}
	h.redirected = true
	return nil
}

// releaseIfIdle gives up the claim taken by a RedirectTo that did not
// engage. The caller must hold the mutex.
func (h *Handle) releaseIfIdle() {
	if !h.redirected {
		h.release()
	}
}

// redirect performs the flush-then-swap. The caller must hold the mutex.
func (h *Handle) redirect(target uintptr) error {
	if err := h.flush(); err != nil {
		return err
	}
	if err := redirectDescriptor(h, target); err != nil {
		return h.wrap("dup2", err)
	}
	return nil
}

// Flush pushes any data written through the stream down to the file it
// points at.
func (h *Handle) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flush()
}

func (h *Handle) flush() error {
	if err := nativeSync(h.fd); err != nil {
		return h.wrap("flush", fmt.Errorf("%w: %w", errors.ErrFlush, err))
	}
	return nil
}

// Restore points the stream back at its saved descriptor and releases the
// duplicate. It fails with errors.ErrAlreadyRestored, touching nothing, when
// the handle is not engaged.
func (h *Handle) Restore() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.redirected || h.saved == invalidDescriptor {
		return h.wrap("restore", errors.ErrAlreadyRestored)
	}

	err := h.redirect(h.saved)
	if err != nil {
		// Keep the duplicate: it is the only way back to the original target.
		return err
	}
	if cerr := closeDescriptor(h.saved); cerr != nil {
		err = h.wrap("close saved descriptor", cerr)
	}
	h.saved = invalidDescriptor
	h.redirected = false
	h.release()
	return err
}

// Close releases the saved duplicate of a handle that is not redirected.
// A redirected handle is restored first.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.redirected {
		h.mu.Unlock()
		return h.Restore()
	}
	defer h.mu.Unlock()

	if h.saved == invalidDescriptor {
		return nil
	}
	err := closeDescriptor(h.saved)
	h.saved = invalidDescriptor
	if err != nil {
		return h.wrap("close saved descriptor", err)
	}
	return nil
}

// DupOriginal returns a new file sharing the target the stream currently
// points at. The caller owns and must close it.
func (h *Handle) DupOriginal() (*os.File, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fd, err := dupDescriptor(h.fd)
	if err != nil {
		return nil, h.wrap("dup", err)
	}
	return os.NewFile(fd, h.id.String()+"-dup"), nil
}

func (h *Handle) wrap(op string, err error) error {
	return errors.NewStreamError(op, err).WithStream(h.id.String()).WithDescriptor(int(h.fd))
}

// FlushAll flushes each handle once per distinct open file. When stdout and
// stderr point at the same transcript only the first of them is synced.
// Handles whose target cannot be identified are always flushed.
func FlushAll(handles ...*Handle) error {
	var errs []error
	var flushed []os.FileInfo
	for _, h := range handles {
		if h == nil {
			continue
		}
		info, err := h.stat()
		if err == nil && sameAsAny(info, flushed) {
			continue
		}
		if err == nil {
			flushed = append(flushed, info)
		}
		if ferr := h.Flush(); ferr != nil {
			errs = append(errs, ferr)
		}
	}
	return errors.Join(errs...)
}

func sameAsAny(info os.FileInfo, seen []os.FileInfo) bool {
	for _, s := range seen {
		if os.SameFile(info, s) {
			return true
		}
	}
	return false
}

// stat describes the file the stream currently points at.
func (h *Handle) stat() (os.FileInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Stat()
}

// SyncFile flushes f the way Handle.Flush does, treating descriptors that
// cannot be synced as already flushed.
func SyncFile(f *os.File) error {
	if err := nativeSync(f.Fd()); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrFlush, err)
	}
	return nil
}
