// Package schema implements table schema definitions (the data-model
// TableSchema of the compiled-page engine), their schema.json codec, and
// the record-layout computation shared by the page generator (C5) and
// every index builder (C7/C8) so struct offsets agree everywhere.
package schema

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/compiledb/compiledb/internal/types"
)

// UUIDColumnName is the implicit row-identity column present on every
// table, used by the DELETE rewriter (C11) for substring matching.
const UUIDColumnName = "_uuid"

// UUIDColumnLength is the declared VARCHAR length of the UUID column,
// sized for a canonical 36-character UUID string.
const UUIDColumnLength = 36

const maxColumnNameLength = 63

// Column describes a single table column.
type Column struct {
	Name         string
	Type         types.Type
	Length       int // declared VARCHAR length; ignored for other types
	Nullable     bool
	HasDefault   bool
	DefaultValue string
	IsPrimaryKey bool
}

// jsonColumn mirrors Column for the external schema.json representation,
// whose type field is the uppercase enum name, per the external
// interfaces contract.
type jsonColumn struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Length       int    `json:"length"`
	Nullable     bool   `json:"nullable"`
	HasDefault   bool   `json:"has_default"`
	DefaultValue string `json:"default_value,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key"`
}

// MarshalJSON implements json.Marshaler.
func (c Column) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonColumn{
		Name:         c.Name,
		Type:         c.Type.String(),
		Length:       c.Length,
		Nullable:     c.Nullable,
		HasDefault:   c.HasDefault,
		DefaultValue: c.DefaultValue,
		IsPrimaryKey: c.IsPrimaryKey,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Column) UnmarshalJSON(data []byte) error {
	var jc jsonColumn
	if err := json.Unmarshal(data, &jc); err != nil {
		return err
	}
	t, err := types.ParseType(jc.Type)
	if err != nil {
		return fmt.Errorf("column %q: %w", jc.Name, err)
	}
	*c = Column{
		Name:         jc.Name,
		Type:         t,
		Length:       jc.Length,
		Nullable:     jc.Nullable,
		HasDefault:   jc.HasDefault,
		DefaultValue: jc.DefaultValue,
		IsPrimaryKey: jc.IsPrimaryKey,
	}
	return nil
}

// TableSchema is the ordered column layout of one table, including the
// implicit _uuid identity column.
type TableSchema struct {
	Name              string
	Columns           []Column
	PrimaryKeyColumns []int // indices into Columns, in declaration order
}

// jsonSchema mirrors TableSchema for the external schema.json format.
type jsonSchema struct {
	Name                 string   `json:"name"`
	ColumnCount          int      `json:"column_count"`
	Columns              []Column `json:"columns"`
	PrimaryKeyColumnCount int     `json:"primary_key_column_count"`
	PrimaryKeyColumns    []int    `json:"primary_key_columns"`
}

// New builds a TableSchema from a table name and user-declared columns,
// injecting the implicit _uuid identity column as the first field.
func New(name string, columns []Column) (*TableSchema, error) {
	if name == "" {
		return nil, fmt.Errorf("table name must not be empty")
	}

	all := make([]Column, 0, len(columns)+1)
	all = append(all, Column{
		Name:   UUIDColumnName,
		Type:   types.Varchar,
		Length: UUIDColumnLength,
	})

	seen := map[string]bool{UUIDColumnName: true}
	for _, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("column name must not be empty")
		}
		if len(col.Name) > maxColumnNameLength {
			return nil, fmt.Errorf("column %q exceeds max name length of %d", col.Name, maxColumnNameLength)
		}
		if col.Name == UUIDColumnName {
			return nil, fmt.Errorf("column name %q is reserved", UUIDColumnName)
		}
		if seen[col.Name] {
			return nil, fmt.Errorf("duplicate column name %q", col.Name)
		}
		seen[col.Name] = true
		if col.Type == types.Varchar && col.Length <= 0 {
			return nil, fmt.Errorf("column %q: VARCHAR requires a positive length", col.Name)
		}
		all = append(all, col)
	}

	var pk []int
	for i, col := range all {
		if col.IsPrimaryKey {
			pk = append(pk, i)
		}
	}

	return &TableSchema{Name: name, Columns: all, PrimaryKeyColumns: pk}, nil
}

// ColumnIndex returns the index of the named column, and whether it exists.
func (s *TableSchema) ColumnIndex(name string) (int, bool) {
	for i, col := range s.Columns {
		if col.Name == name {
			return i, true
		}
	}
	return 0, false
}

// UUIDColumnIndex returns the index of the implicit _uuid column.
func (s *TableSchema) UUIDColumnIndex() int {
	idx, _ := s.ColumnIndex(UUIDColumnName)
	return idx
}

// FieldOffset returns the byte offset of column i within a record,
// using the same natural-alignment rule C1 defines for sizes.
func (s *TableSchema) FieldOffset(i int) (int, error) {
	if i < 0 || i >= len(s.Columns) {
		return 0, fmt.Errorf("column index %d out of range", i)
	}
	offset := 0
	for j := 0; j <= i; j++ {
		col := s.Columns[j]
		align, err := types.AlignmentOf(col.Type)
		if err != nil {
			return 0, err
		}
		offset = alignUp(offset, align)
		if j == i {
			return offset, nil
		}
		size, err := types.SizeOf(col.Type, col.Length)
		if err != nil {
			return 0, err
		}
		offset += size
	}
	return offset, nil
}

// RecordSize returns the total byte size of one record under this schema.
func (s *TableSchema) RecordSize() (int, error) {
	offset := 0
	maxAlign := 1
	for _, col := range s.Columns {
		align, err := types.AlignmentOf(col.Type)
		if err != nil {
			return 0, err
		}
		if align > maxAlign {
			maxAlign = align
		}
		offset = alignUp(offset, align)
		size, err := types.SizeOf(col.Type, col.Length)
		if err != nil {
			return 0, err
		}
		offset += size
	}
	return alignUp(offset, maxAlign), nil
}

func alignUp(offset, alignment int) int {
	if alignment <= 1 {
		return offset
	}
	return (offset + alignment - 1) / alignment * alignment
}

// Save writes the schema as schema.json at path.
func (s *TableSchema) Save(path string) error {
	js := jsonSchema{
		Name:                  s.Name,
		ColumnCount:           len(s.Columns),
		Columns:               s.Columns,
		PrimaryKeyColumnCount: len(s.PrimaryKeyColumns),
		PrimaryKeyColumns:     s.PrimaryKeyColumns,
	}
	data, err := json.MarshalIndent(js, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema %q: %w", s.Name, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write schema file %s: %w", path, err)
	}
	return nil
}

// Load reads a schema.json file from path.
func Load(path string) (*TableSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file %s: %w", path, err)
	}
	var js jsonSchema
	if err := json.Unmarshal(data, &js); err != nil {
		return nil, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	return &TableSchema{
		Name:              js.Name,
		Columns:           js.Columns,
		PrimaryKeyColumns: js.PrimaryKeyColumns,
	}, nil
}
