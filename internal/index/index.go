// Package index implements the index manager (C9): it builds per-page
// B-tree or hash index artifacts from a table's existing page records,
// tracks each table's index definitions in a packed binary metadata
// file, and resolves compiled index artifacts for a given page back
// into callable find_by_{col}{_exact,_range} function pointers.
package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/compiledb/compiledb/internal/btree"
	"github.com/compiledb/compiledb/internal/compiler"
	"github.com/compiledb/compiledb/internal/dberr"
	"github.com/compiledb/compiledb/internal/hashindex"
	"github.com/compiledb/compiledb/internal/layout"
	"github.com/compiledb/compiledb/internal/loader"
	"github.com/compiledb/compiledb/internal/logging"
	"github.com/compiledb/compiledb/internal/schema"
	"github.com/compiledb/compiledb/internal/types"
)

var log = logging.GetLogger("index")

// IndexDefinition describes one index registered on a table column.
type IndexDefinition struct {
	Table   string
	Column  string
	Name    string
	Kind    layout.IndexKind
	Unique  bool
	Primary bool
}

func definitionName(table, column string) string {
	return fmt.Sprintf("idx_%s_%s", table, column)
}

// On-disk field widths for the packed indices.dat record. This layout
// is host-endian and not portable across machines, matching the rest
// of the compiled artifact tree.
const (
	tableNameSize  = 64
	columnNameSize = 64
	indexNameSize  = 128
)

type rawRecord struct {
	TableName  [tableNameSize]byte
	ColumnName [columnNameSize]byte
	IndexName  [indexNameSize]byte
	Kind       int32
	Unique     uint8
	Primary    uint8
	_          [2]byte // pad to 4-byte alignment
}

func kindCode(k layout.IndexKind) int32 {
	if k == layout.Hash {
		return 1
	}
	return 0
}

func kindFromCode(c int32) layout.IndexKind {
	if c == 1 {
		return layout.Hash
	}
	return layout.BTree
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Manager builds, persists, loads, and drops indices for tables.
type Manager struct {
	l          *layout.Layout
	c          *compiler.Compiler
	ld         *loader.Loader
	BTreeOrder int
}

// New returns a Manager using the given layout, compiler, and loader.
// BTreeOrder defaults to 32 when not otherwise set by the caller.
func New(l *layout.Layout, c *compiler.Compiler, ld *loader.Loader) *Manager {
	return &Manager{l: l, c: c, ld: ld, BTreeOrder: 32}
}

// List returns every index definition registered for table, or nil if
// none have been created yet.
func (m *Manager) List(table string) ([]IndexDefinition, error) {
	const op = "index.List"

	data, err := os.ReadFile(m.l.IndicesPath(table))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, op, err, "read index metadata for %s", table)
	}

	r := bytes.NewReader(data)
	var count int32
	if err := binary.Read(r, binary.NativeEndian, &count); err != nil {
		return nil, dberr.Wrap(dberr.ParseError, op, err, "read index count for %s", table)
	}

	defs := make([]IndexDefinition, 0, count)
	for i := int32(0); i < count; i++ {
		var rec rawRecord
		if err := binary.Read(r, binary.NativeEndian, &rec); err != nil {
			return nil, dberr.Wrap(dberr.ParseError, op, err, "read index record %d for %s", i, table)
		}
		defs = append(defs, IndexDefinition{
			Table:   cstr(rec.TableName[:]),
			Column:  cstr(rec.ColumnName[:]),
			Name:    cstr(rec.IndexName[:]),
			Kind:    kindFromCode(rec.Kind),
			Unique:  rec.Unique != 0,
			Primary: rec.Primary != 0,
		})
	}
	return defs, nil
}

func (m *Manager) save(table string, defs []IndexDefinition) error {
	const op = "index.save"

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.NativeEndian, int32(len(defs))); err != nil {
		return dberr.Wrap(dberr.InternalError, op, err, "encode index count for %s", table)
	}
	for _, d := range defs {
		var rec rawRecord
		copy(rec.TableName[:], d.Table)
		copy(rec.ColumnName[:], d.Column)
		copy(rec.IndexName[:], d.Name)
		rec.Kind = kindCode(d.Kind)
		if d.Unique {
			rec.Unique = 1
		}
		if d.Primary {
			rec.Primary = 1
		}
		if err := binary.Write(buf, binary.NativeEndian, &rec); err != nil {
			return dberr.Wrap(dberr.InternalError, op, err, "encode index record %s for %s", d.Name, table)
		}
	}

	path := m.l.IndicesPath(table)
	if err := os.MkdirAll(m.l.MetadataDir(table), 0755); err != nil {
		return dberr.Wrap(dberr.IOError, op, err, "create metadata dir for %s", table)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return dberr.Wrap(dberr.IOError, op, err, "write index metadata %s", path)
	}
	return nil
}

// readPageRecords loads page's compiled artifact and returns a copy of
// every raw record it holds, via the same count()/read() ABI the
// cursor uses.
func (m *Manager) readPageRecords(table string, page, recordSize int) ([][]byte, error) {
	const op = "index.readPageRecords"

	path := m.l.CompiledPagePath(table, page)
	h, err := m.ld.Load(path)
	if err != nil {
		return nil, dberr.Wrap(dberr.LoadError, op, err, "load page %d of %s", page, table)
	}
	defer m.ld.Unload(h)

	countSym, err := m.ld.Lookup(h, "count")
	if err != nil {
		return nil, dberr.Wrap(dberr.LoadError, op, err, "resolve count() for page %d of %s", page, table)
	}
	readSym, err := m.ld.Lookup(h, "read")
	if err != nil {
		return nil, dberr.Wrap(dberr.LoadError, op, err, "resolve read() for page %d of %s", page, table)
	}

	var countFn func() int32
	purego.RegisterFunc(&countFn, countSym)
	var readFn func(int32) uintptr
	purego.RegisterFunc(&readFn, readSym)

	n := int(countFn())
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		ptr := readFn(int32(i))
		if ptr == 0 {
			return nil, dberr.New(dberr.InternalError, op, "read(pos) returned a null record pointer")
		}
		src := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), recordSize)
		rec := make([]byte, recordSize)
		copy(rec, src)
		out[i] = rec
	}
	return out, nil
}

// CreateIndex builds and compiles one {btree,hash} index over column,
// one artifact per existing page, and registers the definition in the
// table's metadata. PRIMARY KEY columns are always indexed unique.
func (m *Manager) CreateIndex(sc *schema.TableSchema, column string, kind layout.IndexKind) (*IndexDefinition, error) {
	const op = "index.CreateIndex"

	colIdx, ok := sc.ColumnIndex(column)
	if !ok {
		return nil, dberr.New(dberr.InvalidArgument, op, fmt.Sprintf("table %s has no column %s", sc.Name, column))
	}
	col := sc.Columns[colIdx]

	offset, err := sc.FieldOffset(colIdx)
	if err != nil {
		return nil, dberr.Wrap(dberr.InternalError, op, err, "field offset for %s.%s", sc.Name, column)
	}
	size, err := types.SizeOf(col.Type, col.Length)
	if err != nil {
		return nil, dberr.Wrap(dberr.InternalError, op, err, "field size for %s.%s", sc.Name, column)
	}
	recordSize, err := sc.RecordSize()
	if err != nil {
		return nil, dberr.Wrap(dberr.InternalError, op, err, "record size for %s", sc.Name)
	}

	pages, err := m.l.PageNumbers(sc.Name)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, op, err, "enumerate pages for %s", sc.Name)
	}

	for _, page := range pages {
		records, err := m.readPageRecords(sc.Name, page, recordSize)
		if err != nil {
			return nil, err
		}

		keys := make([][]byte, len(records))
		positions := make([]int, len(records))
		for i, rec := range records {
			keys[i] = rec[offset : offset+size]
			positions[i] = i
		}

		var src string
		switch kind {
		case layout.BTree:
			tree, err := btree.BuildFromSorted(m.order(), col.Type, keys, positions)
			if err != nil {
				return nil, dberr.Wrap(dberr.InternalError, op, err, "build btree for %s.%s page %d", sc.Name, column, page)
			}
			src = tree.SerializeToSource(sc.Name, column)
		case layout.Hash:
			idx, err := hashindex.BuildFromPairs(col.Type, keys, positions)
			if err != nil {
				return nil, dberr.Wrap(dberr.InternalError, op, err, "build hash index for %s.%s page %d", sc.Name, column, page)
			}
			src = idx.SerializeToSource(sc.Name, column)
		default:
			return nil, dberr.New(dberr.InvalidArgument, op, fmt.Sprintf("unknown index kind %q", kind))
		}

		srcPath := m.l.IndexSourcePath(sc.Name, kind, column, page)
		if err := os.WriteFile(srcPath, []byte(src), 0644); err != nil {
			return nil, dberr.Wrap(dberr.IOError, op, err, "write index source %s", srcPath)
		}

		outPath := m.l.CompiledIndexPath(sc.Name, kind, column, page)
		if err := m.c.Compile(srcPath, outPath, nil); err != nil {
			return nil, dberr.Wrap(dberr.CompileError, op, err, "compile index %s.%s page %d", sc.Name, column, page)
		}
	}

	def := IndexDefinition{
		Table:   sc.Name,
		Column:  column,
		Name:    definitionName(sc.Name, column),
		Kind:    kind,
		Unique:  col.IsPrimaryKey,
		Primary: col.IsPrimaryKey,
	}

	defs, err := m.List(sc.Name)
	if err != nil {
		return nil, err
	}
	filtered := defs[:0]
	for _, d := range defs {
		if d.Name != def.Name {
			filtered = append(filtered, d)
		}
	}
	filtered = append(filtered, def)
	if err := m.save(sc.Name, filtered); err != nil {
		return nil, err
	}

	log.Info("created index", "table", sc.Name, "column", column, "kind", kind, "pages", len(pages))
	return &def, nil
}

func (m *Manager) order() int {
	if m.BTreeOrder < 3 {
		return 32
	}
	return m.BTreeOrder
}

// DropIndex removes an index definition and its compiled/source
// artifacts for every page. It is not an error to drop an index that
// does not exist.
func (m *Manager) DropIndex(table, name string) error {
	const op = "index.DropIndex"

	defs, err := m.List(table)
	if err != nil {
		return err
	}

	var found *IndexDefinition
	kept := defs[:0]
	for _, d := range defs {
		if d.Name == name {
			dCopy := d
			found = &dCopy
			continue
		}
		kept = append(kept, d)
	}
	if found == nil {
		return nil
	}
	if err := m.save(table, kept); err != nil {
		return err
	}

	pages, err := m.l.PageNumbers(table)
	if err != nil {
		return dberr.Wrap(dberr.IOError, op, err, "enumerate pages for %s", table)
	}
	for _, page := range pages {
		_ = os.Remove(m.l.CompiledIndexPath(table, found.Kind, found.Column, page))
		_ = os.Remove(m.l.IndexSourcePath(table, found.Kind, found.Column, page))
	}
	return nil
}

// BTreePage is a loaded B-tree index artifact for one page, bound to
// its find_by_{col}_exact / find_by_{col}_range symbols.
type BTreePage struct {
	m         *Manager
	h         *loader.Handle
	findExact func(uintptr, uintptr, int32) int32
	findRange func(uintptr, uintptr, uintptr, int32) int32
}

// LoadBTreePage resolves the compiled B-tree index artifact for table,
// column, and page.
func (m *Manager) LoadBTreePage(table, column string, page int) (*BTreePage, error) {
	const op = "index.LoadBTreePage"

	h, err := m.ld.Load(m.l.CompiledIndexPath(table, layout.BTree, column, page))
	if err != nil {
		return nil, dberr.Wrap(dberr.LoadError, op, err, "load btree index %s.%s page %d", table, column, page)
	}

	exactSym, err := m.ld.Lookup(h, "find_by_"+column+"_exact")
	if err != nil {
		return nil, dberr.Wrap(dberr.LoadError, op, err, "resolve find_by_%s_exact", column)
	}
	rangeSym, err := m.ld.Lookup(h, "find_by_"+column+"_range")
	if err != nil {
		return nil, dberr.Wrap(dberr.LoadError, op, err, "resolve find_by_%s_range", column)
	}

	var findExact func(uintptr, uintptr, int32) int32
	purego.RegisterFunc(&findExact, exactSym)
	var findRange func(uintptr, uintptr, uintptr, int32) int32
	purego.RegisterFunc(&findRange, rangeSym)

	return &BTreePage{m: m, h: h, findExact: findExact, findRange: findRange}, nil
}

// FindExact returns up to max record positions whose key equals key.
func (b *BTreePage) FindExact(key []byte, max int) []int32 {
	out := make([]int32, max)
	n := b.findExact(uintptr(unsafe.Pointer(&key[0])), uintptr(unsafe.Pointer(&out[0])), int32(max))
	return out[:n]
}

// FindRange returns up to max record positions whose key lies in
// [lo, hi]. A nil bound is passed through as a null pointer, matching
// the compiled find_by_{col}_range ABI's "unbounded" convention.
func (b *BTreePage) FindRange(lo, hi []byte, max int) []int32 {
	out := make([]int32, max)
	var loPtr, hiPtr uintptr
	if lo != nil {
		loPtr = uintptr(unsafe.Pointer(&lo[0]))
	}
	if hi != nil {
		hiPtr = uintptr(unsafe.Pointer(&hi[0]))
	}
	n := b.findRange(loPtr, hiPtr, uintptr(unsafe.Pointer(&out[0])), int32(max))
	return out[:n]
}

// Close releases the loaded artifact.
func (b *BTreePage) Close() error { return b.m.ld.Unload(b.h) }

// HashPage is a loaded hash index artifact for one page, bound to its
// find_by_{col} symbol.
type HashPage struct {
	m       *Manager
	h       *loader.Handle
	findKey func(uintptr, uintptr, int32) int32
}

// LoadHashPage resolves the compiled hash index artifact for table,
// column, and page.
func (m *Manager) LoadHashPage(table, column string, page int) (*HashPage, error) {
	const op = "index.LoadHashPage"

	h, err := m.ld.Load(m.l.CompiledIndexPath(table, layout.Hash, column, page))
	if err != nil {
		return nil, dberr.Wrap(dberr.LoadError, op, err, "load hash index %s.%s page %d", table, column, page)
	}

	sym, err := m.ld.Lookup(h, "find_by_"+column)
	if err != nil {
		return nil, dberr.Wrap(dberr.LoadError, op, err, "resolve find_by_%s", column)
	}

	var findKey func(uintptr, uintptr, int32) int32
	purego.RegisterFunc(&findKey, sym)

	return &HashPage{m: m, h: h, findKey: findKey}, nil
}

// FindExact returns up to max record positions whose key equals key.
func (h *HashPage) FindExact(key []byte, max int) []int32 {
	out := make([]int32, max)
	n := h.findKey(uintptr(unsafe.Pointer(&key[0])), uintptr(unsafe.Pointer(&out[0])), int32(max))
	return out[:n]
}

// Close releases the loaded artifact.
func (h *HashPage) Close() error { return h.m.ld.Unload(h.h) }
