package loader

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/compiledb/compiledb/internal/testutil"
)

const answerSource = `
int the_answer(void) { return 42; }
`

func buildSharedObject(t *testing.T, cc, dir, name string) string {
	t.Helper()
	srcPath := filepath.Join(dir, name+".c")
	if err := os.WriteFile(srcPath, []byte(answerSource), 0644); err != nil {
		t.Fatal(err)
	}
	soPath := filepath.Join(dir, name+".so")

	cmd := exec.Command(cc, "-fPIC", "-shared", "-O2", "-g", "-o", soPath, srcPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("building fixture shared object: %v: %s", err, out)
	}
	return soPath
}

func TestLoadLookupUnload(t *testing.T) {
	cc := testutil.RequireCC(t)
	dir := t.TempDir()
	soPath := buildSharedObject(t, cc, dir, "answer")

	l := New()
	h, err := l.Load(soPath)
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}

	sym, err := l.Lookup(h, "the_answer")
	if err != nil {
		t.Fatalf("Lookup: unexpected error: %v", err)
	}
	if sym == 0 {
		t.Fatal("expected non-zero symbol address")
	}

	if err := l.Unload(h); err != nil {
		t.Fatalf("Unload: unexpected error: %v", err)
	}
}

func TestLoadCachesByPath(t *testing.T) {
	cc := testutil.RequireCC(t)
	dir := t.TempDir()
	soPath := buildSharedObject(t, cc, dir, "answer")

	l := New()
	h1, err := l.Load(soPath)
	if err != nil {
		t.Fatalf("first Load: unexpected error: %v", err)
	}
	h2, err := l.Load(soPath)
	if err != nil {
		t.Fatalf("second Load: unexpected error: %v", err)
	}
	if h1.raw != h2.raw {
		t.Error("expected duplicate Load of the same path to share the underlying handle")
	}

	if err := l.Unload(h1); err != nil {
		t.Fatalf("Unload(h1): unexpected error: %v", err)
	}
	// h2 still holds a reference; symbol lookup must keep working.
	if _, err := l.Lookup(h2, "the_answer"); err != nil {
		t.Errorf("Lookup after first Unload: unexpected error: %v", err)
	}
	if err := l.Unload(h2); err != nil {
		t.Fatalf("Unload(h2): unexpected error: %v", err)
	}
}

func TestLookupMissingSymbol(t *testing.T) {
	cc := testutil.RequireCC(t)
	dir := t.TempDir()
	soPath := buildSharedObject(t, cc, dir, "answer")

	l := New()
	h, err := l.Load(soPath)
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	defer l.Unload(h)

	if _, err := l.Lookup(h, "does_not_exist"); err == nil {
		t.Error("expected error looking up a missing symbol")
	}
}
