package page

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/compiledb/compiledb/internal/compiler"
	"github.com/compiledb/compiledb/internal/layout"
	"github.com/compiledb/compiledb/internal/schema"
	"github.com/compiledb/compiledb/internal/testutil"
	"github.com/compiledb/compiledb/internal/types"
)

func customersSchema(t *testing.T) *schema.TableSchema {
	t.Helper()
	s, err := schema.New("Customers", []schema.Column{
		{Name: "id", Type: types.Int, IsPrimaryKey: true},
		{Name: "name", Type: types.Varchar, Length: 100},
		{Name: "active", Type: types.Boolean},
	})
	if err != nil {
		t.Fatalf("schema.New: unexpected error: %v", err)
	}
	return s
}

func newStore(t *testing.T, cc string) (*Store, string) {
	t.Helper()
	base := t.TempDir()
	l := layout.New(base)
	for _, d := range l.RootDirs() {
		testutil.AssertNoError(t, os.MkdirAll(d, 0755))
	}
	c := compiler.New(cc, nil, l.ScriptsDir())
	return New(l, c), base
}

func TestGeneratePageCreatesBannerOnlyDataFile(t *testing.T) {
	s, _ := newStore(t, "cc")
	sc := customersSchema(t)

	if err := s.GenerateTableHeader(sc); err != nil {
		t.Fatalf("GenerateTableHeader: unexpected error: %v", err)
	}
	if err := s.GeneratePage(sc, 0); err != nil {
		t.Fatalf("GeneratePage: unexpected error: %v", err)
	}

	count, err := s.RecordCount(sc, 0)
	if err != nil {
		t.Fatalf("RecordCount: unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty page, got %d records", count)
	}
}

func TestAppendIncreasesRecordCount(t *testing.T) {
	s, _ := newStore(t, "cc")
	sc := customersSchema(t)

	if err := s.GenerateTableHeader(sc); err != nil {
		t.Fatal(err)
	}
	if err := s.GeneratePage(sc, 0); err != nil {
		t.Fatal(err)
	}

	values := []string{"11111111-1111-1111-1111-111111111111", "1", "Alice", "true"}
	if err := s.Append(sc, 0, values); err != nil {
		t.Fatalf("Append: unexpected error: %v", err)
	}

	count, err := s.RecordCount(sc, 0)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 record after append, got %d", count)
	}

	values2 := []string{"22222222-2222-2222-2222-222222222222", "2", "Bob", "false"}
	if err := s.Append(sc, 0, values2); err != nil {
		t.Fatalf("second Append: unexpected error: %v", err)
	}
	count, err = s.RecordCount(sc, 0)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 records after second append, got %d", count)
	}
}

func TestAppendRejectsWrongValueCount(t *testing.T) {
	s, _ := newStore(t, "cc")
	sc := customersSchema(t)
	if err := s.GenerateTableHeader(sc); err != nil {
		t.Fatal(err)
	}
	if err := s.GeneratePage(sc, 0); err != nil {
		t.Fatal(err)
	}

	err := s.Append(sc, 0, []string{"only-one-value"})
	if err == nil {
		t.Fatal("expected error for wrong value count")
	}
}

func TestIsFull(t *testing.T) {
	s, _ := newStore(t, "cc")
	sc := customersSchema(t)
	if err := s.GenerateTableHeader(sc); err != nil {
		t.Fatal(err)
	}
	if err := s.GeneratePage(sc, 0); err != nil {
		t.Fatal(err)
	}

	full, err := s.IsFull(sc, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if full {
		t.Fatal("expected empty page to not be full")
	}

	for i := 0; i < 2; i++ {
		uuid := "11111111-1111-1111-1111-11111111111" + string(rune('0'+i))
		if err := s.Append(sc, 0, []string{uuid, "1", "Alice", "true"}); err != nil {
			t.Fatal(err)
		}
	}

	full, err = s.IsFull(sc, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !full {
		t.Error("expected page with 2 records and max=2 to be full")
	}
}

func TestRecompileProducesSharedObject(t *testing.T) {
	cc := testutil.RequireCC(t)
	s, base := newStore(t, cc)
	sc := customersSchema(t)

	if err := s.GenerateTableHeader(sc); err != nil {
		t.Fatal(err)
	}
	if err := s.GeneratePage(sc, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(sc, 0, []string{"11111111-1111-1111-1111-111111111111", "1", "Alice", "true"}); err != nil {
		t.Fatal(err)
	}

	if err := s.Recompile(sc, 0); err != nil {
		t.Fatalf("Recompile: unexpected error: %v", err)
	}

	soPath := filepath.Join(base, "compiled", "CustomersData_0.so")
	if _, err := os.Stat(soPath); err != nil {
		t.Errorf("expected compiled page at %s: %v", soPath, err)
	}
}
