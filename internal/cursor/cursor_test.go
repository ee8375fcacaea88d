package cursor

import (
	"fmt"
	"os"
	"testing"

	"github.com/compiledb/compiledb/internal/compiler"
	"github.com/compiledb/compiledb/internal/layout"
	"github.com/compiledb/compiledb/internal/loader"
	"github.com/compiledb/compiledb/internal/page"
	"github.com/compiledb/compiledb/internal/schema"
	"github.com/compiledb/compiledb/internal/testutil"
	"github.com/compiledb/compiledb/internal/types"
)

func buildTwoPageTable(t *testing.T, base string, cc string) (*layout.Layout, *schema.TableSchema) {
	t.Helper()

	l := layout.New(base)
	for _, d := range l.RootDirs() {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}

	sc, err := schema.New("Customers", []schema.Column{
		{Name: "id", Type: types.Int, IsPrimaryKey: true},
		{Name: "name", Type: types.Varchar, Length: 32},
	})
	if err != nil {
		t.Fatal(err)
	}

	c := compiler.New(cc, nil, l.ScriptsDir())
	store := page.New(l, c)

	if err := store.GenerateTableHeader(sc); err != nil {
		t.Fatal(err)
	}

	// Page 0: 5 records, page 1: 1 record, exercising the page boundary.
	pageOf := func(i int) int {
		if i < 5 {
			return 0
		}
		return 1
	}
	for p := 0; p < 2; p++ {
		if err := store.GeneratePage(sc, p); err != nil {
			t.Fatal(err)
		}
	}
	for i := 1; i <= 6; i++ {
		uuid := fmt.Sprintf("00000000-0000-0000-0000-%012d", i)
		values := []string{uuid, fmt.Sprintf("%d", i), fmt.Sprintf("customer-%d", i)}
		if err := store.Append(sc, pageOf(i-1), values); err != nil {
			t.Fatal(err)
		}
	}
	for p := 0; p < 2; p++ {
		if err := store.Recompile(sc, p); err != nil {
			t.Fatalf("Recompile page %d: %v", p, err)
		}
	}

	return l, sc
}

func TestCursorIteratesAcrossPageBoundary(t *testing.T) {
	cc := testutil.RequireCC(t)
	base := t.TempDir()
	l, sc := buildTwoPageTable(t, base, cc)

	ld := loader.New()
	cur, err := Open(l, ld, sc)
	if err != nil {
		t.Fatalf("Open: unexpected error: %v", err)
	}
	defer cur.Close()

	count := 0
	for {
		ok, err := cur.Next()
		if err != nil {
			t.Fatalf("Next: unexpected error: %v", err)
		}
		if !ok {
			break
		}
		rec, err := cur.Current()
		if err != nil {
			t.Fatalf("Current: unexpected error: %v", err)
		}
		if len(rec) == 0 {
			t.Error("expected non-empty record bytes")
		}
		count++
	}
	if count != 6 {
		t.Errorf("expected 6 records across 2 pages, got %d", count)
	}
}

func TestCursorEmptyTable(t *testing.T) {
	base := t.TempDir()
	l := layout.New(base)
	for _, d := range l.RootDirs() {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	sc, err := schema.New("Empty", []schema.Column{{Name: "id", Type: types.Int}})
	if err != nil {
		t.Fatal(err)
	}

	ld := loader.New()
	cur, err := Open(l, ld, sc)
	if err != nil {
		t.Fatalf("Open: unexpected error: %v", err)
	}
	defer cur.Close()

	ok, err := cur.Next()
	if err != nil {
		t.Fatalf("Next: unexpected error: %v", err)
	}
	if ok {
		t.Error("expected Next to return false for a table with no pages")
	}
}

func TestCursorResetReiterates(t *testing.T) {
	cc := testutil.RequireCC(t)
	base := t.TempDir()
	l, sc := buildTwoPageTable(t, base, cc)

	ld := loader.New()
	cur, err := Open(l, ld, sc)
	if err != nil {
		t.Fatal(err)
	}
	defer cur.Close()

	first := 0
	for {
		ok, err := cur.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		first++
	}

	if err := cur.Reset(); err != nil {
		t.Fatalf("Reset: unexpected error: %v", err)
	}

	second := 0
	for {
		ok, err := cur.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		second++
	}

	if first != second {
		t.Errorf("expected Reset to allow reiterating the same %d records, got %d", first, second)
	}
}
