//go:build !windows

package stream

import (
	"os"

	"golang.org/x/sys/unix"
)

func stdDescriptor(id Identity) (uintptr, *os.File, error) {
	if id == Stderr {
		return uintptr(unix.Stderr), os.Stderr, nil
	}
	return uintptr(unix.Stdout), os.Stdout, nil
}

// dupDescriptor duplicates fd with close-on-exec set so saved copies never
// leak into child processes.
func dupDescriptor(fd uintptr) (uintptr, error) {
	dup, err := unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return invalidDescriptor, err
	}
	return uintptr(dup), nil
}

// redirectDescriptor makes h.fd refer to target's open file. The descriptor
// number is unchanged, so h.file keeps working without being rebuilt, and
// dup2 clears close-on-exec so children inherit the redirected stream.
func redirectDescriptor(h *Handle, target uintptr) error {
	return unix.Dup2(int(target), int(h.fd))
}

// syncDescriptor is the native flush. Terminals, pipes and sockets cannot be
// synced; their writes are already visible to readers.
func syncDescriptor(fd uintptr) error {
	err := unix.Fsync(int(fd))
	if err == unix.EINVAL || err == unix.ENOTSUP || err == unix.EROFS || err == unix.ENOTTY {
		return nil
	}
	return err
}

func closeDescriptor(fd uintptr) error {
	return unix.Close(int(fd))
}
