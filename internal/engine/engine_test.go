package engine

import (
	"fmt"
	"testing"

	"github.com/compiledb/compiledb/internal/layout"
	"github.com/compiledb/compiledb/internal/schema"
	"github.com/compiledb/compiledb/internal/testutil"
	"github.com/compiledb/compiledb/internal/types"
)

func openTestDB(t *testing.T, maxRecordsPerPage int) *Database {
	t.Helper()
	cc := testutil.RequireCC(t)
	base := t.TempDir()
	db, err := Open(base, Options{CC: cc, MaxRecordsPerPage: maxRecordsPerPage})
	if err != nil {
		t.Fatalf("Open: unexpected error: %v", err)
	}
	return db
}

func customersColumns() []schema.Column {
	return []schema.Column{
		{Name: "id", Type: types.Int, IsPrimaryKey: true},
		{Name: "name", Type: types.Varchar, Length: 32},
	}
}

func TestCreateTableAndInsertRow(t *testing.T) {
	db := openTestDB(t, 5)

	sc, err := db.CreateTable("Customers", customersColumns())
	if err != nil {
		t.Fatalf("CreateTable: unexpected error: %v", err)
	}
	if len(sc.Columns) != 3 {
		t.Fatalf("expected 3 columns (including _uuid), got %d", len(sc.Columns))
	}

	id, err := db.InsertRow("Customers", []string{"1", "Ada"})
	if err != nil {
		t.Fatalf("InsertRow: unexpected error: %v", err)
	}
	if id == "" {
		t.Error("expected a generated uuid")
	}
}

func TestInsertRowWrongValueCountIsRejected(t *testing.T) {
	db := openTestDB(t, 5)
	if _, err := db.CreateTable("Customers", customersColumns()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertRow("Customers", []string{"1"}); err == nil {
		t.Error("expected an error for wrong value count")
	}
}

func TestInsertRowRejectsDuplicatePrimaryKey(t *testing.T) {
	db := openTestDB(t, 5)
	if _, err := db.CreateTable("Customers", customersColumns()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertRow("Customers", []string{"1", "Ada"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertRow("Customers", []string{"1", "Grace"}); err == nil {
		t.Error("expected a validation error for duplicate primary key")
	}
}

func TestInsertRowSplitsAcrossPagesWhenFull(t *testing.T) {
	db := openTestDB(t, 3)
	if _, err := db.CreateTable("Customers", customersColumns()); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 7; i++ {
		if _, err := db.InsertRow("Customers", []string{fmt.Sprintf("%d", i), fmt.Sprintf("customer-%d", i)}); err != nil {
			t.Fatalf("InsertRow %d: unexpected error: %v", i, err)
		}
	}

	pages, err := db.layout.PageNumbers("Customers")
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) < 2 {
		t.Errorf("expected at least 2 pages after exceeding max records per page, got %d", len(pages))
	}

	cur, err := db.Scan("Customers")
	if err != nil {
		t.Fatal(err)
	}
	defer cur.Close()

	count := 0
	for {
		ok, err := cur.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != 7 {
		t.Errorf("scanned %d records, want 7", count)
	}
}

func TestCreateIndexAndDrop(t *testing.T) {
	db := openTestDB(t, 5)
	if _, err := db.CreateTable("Customers", customersColumns()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertRow("Customers", []string{"1", "Ada"}); err != nil {
		t.Fatal(err)
	}

	def, err := db.CreateIndex("Customers", "id", layout.BTree)
	if err != nil {
		t.Fatalf("CreateIndex: unexpected error: %v", err)
	}
	if !def.Unique {
		t.Error("expected index on primary key column to be unique")
	}

	if err := db.DropIndex("Customers", def.Name); err != nil {
		t.Fatalf("DropIndex: unexpected error: %v", err)
	}
}

func TestDeleteAllRemovesInsertedRows(t *testing.T) {
	db := openTestDB(t, 5)
	if _, err := db.CreateTable("Customers", customersColumns()); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		if _, err := db.InsertRow("Customers", []string{fmt.Sprintf("%d", i), fmt.Sprintf("customer-%d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	result, err := db.Delete("Customers", "")
	if err != nil {
		t.Fatalf("Delete: unexpected error: %v", err)
	}
	if result.RowsAffected != 3 {
		t.Errorf("RowsAffected = %d, want 3", result.RowsAffected)
	}

	cur, err := db.Scan("Customers")
	if err != nil {
		t.Fatal(err)
	}
	defer cur.Close()
	ok, err := cur.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no rows after Delete with no WHERE clause")
	}
}
