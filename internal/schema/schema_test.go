package schema

import (
	"path/filepath"
	"testing"

	"github.com/compiledb/compiledb/internal/types"
)

func customersSchema(t *testing.T) *TableSchema {
	t.Helper()
	s, err := New("Customers", []Column{
		{Name: "id", Type: types.Int, IsPrimaryKey: true},
		{Name: "name", Type: types.Varchar, Length: 100},
		{Name: "email", Type: types.Varchar, Length: 100},
		{Name: "age", Type: types.Int},
		{Name: "active", Type: types.Boolean},
	})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	return s
}

func TestNewInjectsUUIDColumn(t *testing.T) {
	s := customersSchema(t)
	if len(s.Columns) != 6 {
		t.Fatalf("expected 6 columns (5 + _uuid), got %d", len(s.Columns))
	}
	if s.Columns[0].Name != UUIDColumnName {
		t.Errorf("expected first column to be %q, got %q", UUIDColumnName, s.Columns[0].Name)
	}
	if s.Columns[0].Length != UUIDColumnLength {
		t.Errorf("expected uuid column length %d, got %d", UUIDColumnLength, s.Columns[0].Length)
	}
}

func TestNewRejectsReservedAndDuplicateNames(t *testing.T) {
	if _, err := New("T", []Column{{Name: UUIDColumnName, Type: types.Int}}); err == nil {
		t.Error("expected error for reserved column name")
	}
	if _, err := New("T", []Column{
		{Name: "id", Type: types.Int},
		{Name: "id", Type: types.Int},
	}); err == nil {
		t.Error("expected error for duplicate column name")
	}
}

func TestNewRejectsVarcharWithoutLength(t *testing.T) {
	if _, err := New("T", []Column{{Name: "name", Type: types.Varchar}}); err == nil {
		t.Error("expected error for VARCHAR column without a declared length")
	}
}

func TestPrimaryKeyColumnsComputed(t *testing.T) {
	s := customersSchema(t)
	idIdx, ok := s.ColumnIndex("id")
	if !ok {
		t.Fatal("expected to find column id")
	}
	if len(s.PrimaryKeyColumns) != 1 || s.PrimaryKeyColumns[0] != idIdx {
		t.Errorf("expected primary key columns [%d], got %v", idIdx, s.PrimaryKeyColumns)
	}
}

func TestFieldOffsetAndRecordSize(t *testing.T) {
	s := customersSchema(t)

	// _uuid(37) then id(4-aligned) then name(101) then email(101) then age(4) then active(1)
	uuidOff, err := s.FieldOffset(0)
	if err != nil || uuidOff != 0 {
		t.Fatalf("FieldOffset(_uuid) = %d, %v, want 0, nil", uuidOff, err)
	}

	idIdx, _ := s.ColumnIndex("id")
	idOff, err := s.FieldOffset(idIdx)
	if err != nil {
		t.Fatalf("FieldOffset(id): unexpected error: %v", err)
	}
	wantIDOff := alignUp(UUIDColumnLength+1, 4)
	if idOff != wantIDOff {
		t.Errorf("FieldOffset(id) = %d, want %d", idOff, wantIDOff)
	}

	size, err := s.RecordSize()
	if err != nil {
		t.Fatalf("RecordSize: unexpected error: %v", err)
	}
	if size <= 0 {
		t.Errorf("expected positive record size, got %d", size)
	}
	if size%4 != 0 {
		t.Errorf("expected record size aligned to max field alignment, got %d", size)
	}
}

func TestFieldOffsetOutOfRange(t *testing.T) {
	s := customersSchema(t)
	if _, err := s.FieldOffset(len(s.Columns)); err == nil {
		t.Error("expected error for out-of-range column index")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := customersSchema(t)
	path := filepath.Join(t.TempDir(), "schema.json")

	if err := s.Save(path); err != nil {
		t.Fatalf("Save: unexpected error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}

	if loaded.Name != s.Name {
		t.Errorf("Name = %q, want %q", loaded.Name, s.Name)
	}
	if len(loaded.Columns) != len(s.Columns) {
		t.Fatalf("Columns len = %d, want %d", len(loaded.Columns), len(s.Columns))
	}
	for i, col := range s.Columns {
		got := loaded.Columns[i]
		if got.Name != col.Name || got.Type != col.Type || got.Length != col.Length || got.IsPrimaryKey != col.IsPrimaryKey {
			t.Errorf("column %d mismatch: got %+v, want %+v", i, got, col)
		}
	}
	if len(loaded.PrimaryKeyColumns) != len(s.PrimaryKeyColumns) {
		t.Errorf("PrimaryKeyColumns = %v, want %v", loaded.PrimaryKeyColumns, s.PrimaryKeyColumns)
	}
}

func TestUUIDColumnIndex(t *testing.T) {
	s := customersSchema(t)
	if idx := s.UUIDColumnIndex(); s.Columns[idx].Name != UUIDColumnName {
		t.Errorf("UUIDColumnIndex() = %d, does not point to %q", idx, UUIDColumnName)
	}
}
