package index

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

func buildCustomersTable(t *testing.T, base, cc string) (*layout.Layout, *schema.TableSchema, *compiler.Compiler) {
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
	if err := store.GeneratePage(sc, 0); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 8; i++ {
		uuid := fmt.Sprintf("00000000-0000-0000-0000-%012d", i)
		if err := store.Append(sc, 0, []string{uuid, fmt.Sprintf("%d", i), fmt.Sprintf("customer-%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Recompile(sc, 0); err != nil {
		t.Fatal(err)
	}

	return l, sc, c
}

func TestCreateIndexRegistersDefinition(t *testing.T) {
	cc := testutil.RequireCC(t)
	base := t.TempDir()
	l, sc, c := buildCustomersTable(t, base, cc)
	ld := loader.New()

	m := New(l, c, ld)
	def, err := m.CreateIndex(sc, "id", layout.BTree)
	if err != nil {
		t.Fatalf("CreateIndex: unexpected error: %v", err)
	}
	if !def.Unique || !def.Primary {
		t.Error("expected index over primary key column to be unique and primary")
	}
	if def.Name != "idx_Customers_id" {
		t.Errorf("Name = %q, want idx_Customers_id", def.Name)
	}

	defs, err := m.List("Customers")
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 1 || defs[0].Name != def.Name {
		t.Fatalf("List = %+v, want one definition named %s", defs, def.Name)
	}
}

func TestCreateIndexBuildsQueryableBTreeArtifact(t *testing.T) {
	cc := testutil.RequireCC(t)
	base := t.TempDir()
	l, sc, c := buildCustomersTable(t, base, cc)
	ld := loader.New()

	m := New(l, c, ld)
	if _, err := m.CreateIndex(sc, "id", layout.BTree); err != nil {
		t.Fatal(err)
	}

	bp, err := m.LoadBTreePage("Customers", "id", 0)
	if err != nil {
		t.Fatalf("LoadBTreePage: unexpected error: %v", err)
	}
	defer bp.Close()

	key, err := types.Parse("5", types.Int, 0)
	if err != nil {
		t.Fatal(err)
	}
	got := bp.FindExact(key, 10)
	if len(got) != 1 || got[0] != 4 {
		t.Errorf("FindExact(5) = %v, want position 4 (0-indexed, value 5 is the 5th record)", got)
	}
}

func TestCreateIndexBuildsQueryableHashArtifact(t *testing.T) {
	cc := testutil.RequireCC(t)
	base := t.TempDir()
	l, sc, c := buildCustomersTable(t, base, cc)
	ld := loader.New()

	m := New(l, c, ld)
	if _, err := m.CreateIndex(sc, "id", layout.Hash); err != nil {
		t.Fatal(err)
	}

	hp, err := m.LoadHashPage("Customers", "id", 0)
	if err != nil {
		t.Fatalf("LoadHashPage: unexpected error: %v", err)
	}
	defer hp.Close()

	key, err := types.Parse("3", types.Int, 0)
	if err != nil {
		t.Fatal(err)
	}
	got := hp.FindExact(key, 10)
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("FindExact(3) = %v, want position 2", got)
	}
}

func TestDropIndexRemovesDefinition(t *testing.T) {
	cc := testutil.RequireCC(t)
	base := t.TempDir()
	l, sc, c := buildCustomersTable(t, base, cc)
	ld := loader.New()

	m := New(l, c, ld)
	if _, err := m.CreateIndex(sc, "id", layout.BTree); err != nil {
		t.Fatal(err)
	}

	if err := m.DropIndex("Customers", "idx_Customers_id"); err != nil {
		t.Fatalf("DropIndex: unexpected error: %v", err)
	}

	defs, err := m.List("Customers")
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 0 {
		t.Errorf("List after drop = %+v, want empty", defs)
	}
}

func TestDropIndexUnknownNameIsNotAnError(t *testing.T) {
	base := t.TempDir()
	l := layout.New(base)
	for _, d := range l.RootDirs() {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	ld := loader.New()
	m := New(l, nil, ld)

	if err := m.DropIndex("Customers", "idx_does_not_exist"); err != nil {
		t.Errorf("DropIndex for unknown name returned error: %v", err)
	}
}

func TestListOnTableWithNoIndicesReturnsNil(t *testing.T) {
	base := t.TempDir()
	l := layout.New(base)
	ld := loader.New()
	m := New(l, nil, ld)

	defs, err := m.List("NoSuchTable")
	if err != nil {
		t.Fatal(err)
	}
	if defs != nil {
		t.Errorf("List for a table with no metadata = %v, want nil", defs)
	}
}
