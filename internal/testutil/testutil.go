// Package testutil provides testing utilities for teelog tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Console is a regular file standing in for a terminal. Tests point a
// stream handle at it and read back what reached the "console".
type Console struct {
	File *os.File
	Path string
}

// NewConsole creates a console stand-in in a temporary directory. The file is
// closed automatically when the test completes.
func NewConsole(t *testing.T, name string) *Console {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		t.Fatalf("failed to create console file: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })

	return &Console{File: f, Path: path}
}

// Write writes s through the console's descriptor.
func (c *Console) Write(t *testing.T, s string) {
	t.Helper()
	if _, err := c.File.WriteString(s); err != nil {
		t.Fatalf("failed to write to console: %v", err)
	}
}

// Contents returns everything written to the console so far.
func (c *Console) Contents(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(c.Path)
	if err != nil {
		t.Fatalf("failed to read console file: %v", err)
	}
	return string(data)
}

// TempLogPath returns a path for a transcript file inside a fresh temporary
// directory. The file itself is not created.
func TempLogPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

// ReadFile returns the content of path, failing the test on error.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// CreateFile opens path for writing, truncating it, and closes it when the
// test completes.
func CreateFile(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

// HelperProcessEnv is the environment variable that switches a test binary
// into helper-process mode.
const HelperProcessEnv = "TEELOG_WANT_HELPER_PROCESS"

// IsHelperProcess reports whether the current test binary was re-executed as
// a helper process.
func IsHelperProcess() bool {
	return os.Getenv(HelperProcessEnv) == "1"
}
