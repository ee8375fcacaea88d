package layout

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathsAreDeterministic(t *testing.T) {
	l := New("/db")

	cases := []struct {
		got  string
		want string
	}{
		{l.TableHeaderPath("Customers"), "/db/tables/Customers/Customers.h"},
		{l.SchemaPath("Customers"), "/db/tables/Customers/metadata/schema.json"},
		{l.IndicesPath("Customers"), "/db/tables/Customers/metadata/indices.dat"},
		{l.DataFilePath("Customers", 0), "/db/tables/Customers/data/CustomersData.0.dat.h"},
		{l.SourceFilePath("Customers", 0), "/db/tables/Customers/src/CustomersData_0.c"},
		{l.CompiledPagePath("Customers", 3), "/db/compiled/CustomersData_3.so"},
		{l.CompiledIndexPath("Customers", BTree, "id", 0), "/db/compiled/Customers_btree_index_id_0.so"},
		{l.CompiledIndexPath("Customers", Hash, "active", 2), "/db/compiled/Customers_hash_index_active_2.so"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}

func TestKernelPaths(t *testing.T) {
	l := New("/db")

	if got, want := l.KernelSourcePath("sel_id_eq_7", "Customers", 0), "/db/kernels/sel_id_eq_7_Customers_0.c"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := l.KernelSourcePath("sel_id_eq_7", "Customers", -1), "/db/kernels/sel_id_eq_7_Customers.c"; got != want {
		t.Errorf("table-wide kernel path: got %q, want %q", got, want)
	}
}

func TestPageNumbersEmpty(t *testing.T) {
	base := t.TempDir()
	l := New(base)
	if err := os.MkdirAll(l.CompiledDir(), 0755); err != nil {
		t.Fatal(err)
	}

	pages, err := l.PageNumbers("Customers")
	if err != nil {
		t.Fatalf("PageNumbers: unexpected error: %v", err)
	}
	if len(pages) != 0 {
		t.Errorf("expected no pages, got %v", pages)
	}
}

func TestPageNumbersDiscoversAndSorts(t *testing.T) {
	base := t.TempDir()
	l := New(base)
	if err := os.MkdirAll(l.CompiledDir(), 0755); err != nil {
		t.Fatal(err)
	}

	for _, p := range []int{2, 0, 1} {
		path := l.CompiledPagePath("Customers", p)
		if err := os.WriteFile(path, []byte("so"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	// Unrelated table must not be picked up.
	if err := os.WriteFile(l.CompiledPagePath("Orders", 0), []byte("so"), 0644); err != nil {
		t.Fatal(err)
	}

	pages, err := l.PageNumbers("Customers")
	if err != nil {
		t.Fatalf("PageNumbers: unexpected error: %v", err)
	}
	if want := []int{0, 1, 2}; !equalInts(pages, want) {
		t.Errorf("PageNumbers = %v, want %v", pages, want)
	}

	count, err := l.PageCount("Customers")
	if err != nil {
		t.Fatalf("PageCount: unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("PageCount = %d, want 3", count)
	}
}

func TestRootAndTableDirs(t *testing.T) {
	base := t.TempDir()
	l := New(base)

	for _, d := range l.RootDirs() {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("MkdirAll(%s): %v", d, err)
		}
	}
	for _, d := range l.TableDirs("Customers") {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("MkdirAll(%s): %v", d, err)
		}
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("expected directory at %s", d)
		}
	}

	if got, want := l.TableDir("Customers"), filepath.Join(base, "tables", "Customers"); got != want {
		t.Errorf("TableDir = %q, want %q", got, want)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
