// Package testutil provides testing utilities and helpers for compiledb.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// NewBaseDir creates a temporary database directory with the standard
// tables/compiled/scripts/permissions layout and returns its root.
// Automatically cleaned up after the test completes.
func NewBaseDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for _, sub := range []string{"tables", "compiled", "scripts", "permissions"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			t.Fatalf("failed to create %s: %v", sub, err)
		}
	}
	return dir
}

// TempDir creates a temporary directory for testing.
// Automatically cleaned up after test completion.
func TempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// TempFile creates a temporary file for testing.
// Automatically cleaned up after test completion.
func TempFile(t *testing.T, name string, content []byte) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	return path
}

// RequireCC skips the test when no native C toolchain is reachable, the
// same "optional external dependency" posture the teacher used for
// Ollama/Qdrant checks.
func RequireCC(t *testing.T) string {
	t.Helper()

	cc := os.Getenv("CC")
	if cc == "" {
		cc = "cc"
	}
	if _, err := exec.LookPath(cc); err != nil {
		t.Skipf("native toolchain %q not available: %v", cc, err)
	}
	return cc
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}

// AssertEqual fails the test if got != want.
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()

	if got != want {
		t.Errorf("Got %v, want %v", got, want)
	}
}
