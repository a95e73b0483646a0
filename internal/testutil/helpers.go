package testutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"netpromote/internal/common"
)

// TestHelper provides common test utilities
type TestHelper struct {
	t *testing.T
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// TempDir creates a temporary directory removed when the test ends
func (h *TestHelper) TempDir() string {
	h.t.Helper()
	return h.t.TempDir()
}

// WriteFile writes content to a file in the given directory
func (h *TestHelper) WriteFile(dir, filename, content string) string {
	h.t.Helper()
	path := filepath.Join(dir, filename)

	if err := os.MkdirAll(filepath.Dir(path), common.DirPermissionNormal); err != nil {
		h.t.Fatalf("Failed to create directories: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), common.FilePermissionNormal); err != nil {
		h.t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile returns the content of a file, failing the test when unreadable
func (h *TestHelper) ReadFile(path string) string {
	h.t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		h.t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(data)
}

// WriteConflictedFile writes a file carrying git conflict markers; an empty
// base produces the two-way marker layout
func (h *TestHelper) WriteConflictedFile(dir, filename, ours, base, theirs string) string {
	h.t.Helper()

	var buf bytes.Buffer
	buf.WriteString("<<<<<<< HEAD\n")
	buf.WriteString(ours)
	if base != "" {
		buf.WriteString("||||||| merged common ancestors\n")
		buf.WriteString(base)
	}
	buf.WriteString("=======\n")
	buf.WriteString(theirs)
	buf.WriteString(">>>>>>> develop\n")
	return h.WriteFile(dir, filename, buf.String())
}

// CreateConfigTree lays out a small set of device configuration files
func (h *TestHelper) CreateConfigTree(dir string) {
	h.t.Helper()
	h.WriteFile(dir, "devices/core-rtr1.conf", "hostname core-rtr1\ninterface Loopback0\n ip address 10.0.0.1 255.255.255.255\n")
	h.WriteFile(dir, "devices/access-sw1.conf", "hostname access-sw1\nvlan 10\n name users\n")
	h.WriteFile(dir, "inventory.yaml", "devices:\n  - core-rtr1\n  - access-sw1\n")
	h.WriteFile(dir, "README.md", "# Network configuration\n")
}

// CaptureOutput captures stdout and stderr during function execution
func (h *TestHelper) CaptureOutput(f func()) (stdout, stderr string) {
	oldStdout := os.Stdout
	rOut, wOut, _ := os.Pipe()
	os.Stdout = wOut

	oldStderr := os.Stderr
	rErr, wErr, _ := os.Pipe()
	os.Stderr = wErr

	f()

	wOut.Close()
	os.Stdout = oldStdout
	outBytes, _ := io.ReadAll(rOut)

	wErr.Close()
	os.Stderr = oldStderr
	errBytes, _ := io.ReadAll(rErr)

	return string(outBytes), string(errBytes)
}
