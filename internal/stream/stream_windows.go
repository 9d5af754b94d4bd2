//go:build windows

package stream

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

func stdHandleID(id Identity) uint32 {
	if id == Stderr {
		return windows.STD_ERROR_HANDLE
	}
	return windows.STD_OUTPUT_HANDLE
}

func stdDescriptor(id Identity) (uintptr, *os.File, error) {
	h, err := windows.GetStdHandle(stdHandleID(id))
	if err != nil {
		return 0, nil, err
	}
	if id == Stderr {
		return uintptr(h), os.Stderr, nil
	}
	return uintptr(h), os.Stdout, nil
}

func dupDescriptor(fd uintptr) (uintptr, error) {
	proc := windows.CurrentProcess()
	var dup windows.Handle
	err := windows.DuplicateHandle(proc, windows.Handle(fd), proc, &dup, 0, true, windows.DUPLICATE_SAME_ACCESS)
	if err != nil {
		return invalidDescriptor, err
	}
	return uintptr(dup), nil
}

// redirectDescriptor installs a duplicate of target as the process's standard
// handle. Windows hands out a new handle value, so the language-level stream
// object is rebuilt around it and published as os.Stdout / os.Stderr.
func redirectDescriptor(h *Handle, target uintptr) error {
	if !h.std {
		return fmt.Errorf("redirecting a non-standard handle is not supported on windows")
	}
	dup, err := dupDescriptor(target)
	if err != nil {
		return err
	}
	if err := windows.SetStdHandle(stdHandleID(h.id), windows.Handle(dup)); err != nil {
		_ = closeDescriptor(dup)
		return err
	}

	f := os.NewFile(dup, "/dev/"+h.id.String())
	if h.id == Stderr {
		os.Stderr = f
	} else {
		os.Stdout = f
	}
	if h.owned && h.file != nil {
		_ = h.file.Close()
	}
	h.fd, h.file, h.owned = dup, f, true
	return nil
}

// syncDescriptor is the native flush. Console handles and pipes reject
// FlushFileBuffers; their writes are already visible.
func syncDescriptor(fd uintptr) error {
	err := windows.FlushFileBuffers(windows.Handle(fd))
	if err == windows.ERROR_INVALID_HANDLE || err == windows.ERROR_INVALID_FUNCTION {
		return nil
	}
	return err
}

func closeDescriptor(fd uintptr) error {
	return windows.CloseHandle(windows.Handle(fd))
}
