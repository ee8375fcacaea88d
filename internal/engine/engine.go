// Package engine provides the Database facade binding the type system,
// directory layout, compiler, loader, page store, cursor, indices,
// kernel pipeline, and DELETE rewriter (C1-C11) into the handful of
// operations a SQL layer actually needs to drive: create a table,
// insert a row, scan a table, create an index, and delete rows.
package engine

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/compiledb/compiledb/internal/compiler"
	"github.com/compiledb/compiledb/internal/cursor"
	"github.com/compiledb/compiledb/internal/dberr"
	"github.com/compiledb/compiledb/internal/index"
	"github.com/compiledb/compiledb/internal/layout"
	"github.com/compiledb/compiledb/internal/loader"
	"github.com/compiledb/compiledb/internal/logging"
	"github.com/compiledb/compiledb/internal/page"
	"github.com/compiledb/compiledb/internal/rewrite"
	"github.com/compiledb/compiledb/internal/schema"
	"github.com/compiledb/compiledb/internal/types"
)

var log = logging.GetLogger("engine")

// Database binds the whole compiled-page engine under one base
// directory. One Database should own one loader, since the loader's
// handle cache assumes exclusive control over which artifacts are
// currently mapped.
type Database struct {
	mu sync.RWMutex

	layout   *layout.Layout
	compiler *compiler.Compiler
	loader   *loader.Loader
	pages    *page.Store
	indices  *index.Manager
	rewriter *rewrite.Rewriter

	maxRecordsPerPage int
	schemas           map[string]*schema.TableSchema
}

// Options configures a freshly opened Database.
type Options struct {
	CC                string
	CompilerFlags     []string
	BTreeOrder        int
	MaxRecordsPerPage int
}

// Open initializes (or reopens) a database rooted at baseDir, creating
// its root directory layout if absent.
func Open(baseDir string, opts Options) (*Database, error) {
	const op = "engine.Open"
	log.Info("opening database", "base_dir", baseDir)

	l := layout.New(baseDir)
	for _, dir := range l.RootDirs() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, dberr.Wrap(dberr.IOError, op, err, "create root directory %s", dir)
		}
	}

	cc := opts.CC
	if cc == "" {
		cc = "cc"
	}
	maxRecords := opts.MaxRecordsPerPage
	if maxRecords <= 0 {
		maxRecords = 5
	}

	c := compiler.New(cc, opts.CompilerFlags, l.ScriptsDir())
	ld := loader.New()
	ps := page.New(l, c)
	im := index.New(l, c, ld)
	if opts.BTreeOrder >= 3 {
		im.BTreeOrder = opts.BTreeOrder
	}
	rw := rewrite.New(l, c, ld)

	db := &Database{
		layout:            l,
		compiler:          c,
		loader:            ld,
		pages:             ps,
		indices:           im,
		rewriter:          rw,
		maxRecordsPerPage: maxRecords,
		schemas:           make(map[string]*schema.TableSchema),
	}

	log.Info("database ready", "base_dir", baseDir)
	return db, nil
}

// CreateTable defines a new table: it builds the TableSchema (injecting
// the implicit _uuid column), persists schema.json, writes the record
// struct header, and generates page 0.
func (d *Database) CreateTable(name string, columns []schema.Column) (*schema.TableSchema, error) {
	const op = "engine.CreateTable"

	d.mu.Lock()
	defer d.mu.Unlock()

	sc, err := schema.New(name, columns)
	if err != nil {
		return nil, dberr.Wrap(dberr.ValidationError, op, err, "build schema for %s", name)
	}

	for _, dir := range d.layout.TableDirs(name) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, dberr.Wrap(dberr.IOError, op, err, "create table directory %s", dir)
		}
	}

	if err := sc.Save(d.layout.SchemaPath(name)); err != nil {
		return nil, dberr.Wrap(dberr.IOError, op, err, "save schema for %s", name)
	}
	if err := d.pages.GenerateTableHeader(sc); err != nil {
		return nil, err
	}
	if err := d.pages.GeneratePage(sc, 0); err != nil {
		return nil, err
	}
	if err := d.pages.Recompile(sc, 0); err != nil {
		return nil, err
	}

	d.schemas[name] = sc
	log.Info("created table", "table", name, "columns", len(sc.Columns))
	return sc, nil
}

// schemaFor returns the cached TableSchema for table, loading it from
// schema.json if this is the first reference since Open.
func (d *Database) schemaFor(table string) (*schema.TableSchema, error) {
	if sc, ok := d.schemas[table]; ok {
		return sc, nil
	}
	sc, err := schema.Load(d.layout.SchemaPath(table))
	if err != nil {
		return nil, dberr.Wrap(dberr.NotFound, "engine.schemaFor", err, "table %s has no schema", table)
	}
	d.schemas[table] = sc
	return sc, nil
}

// InsertRow appends a new row to table. values must supply one textual
// literal per user-declared column, in schema order, excluding the
// implicit _uuid column which InsertRow generates itself. If the table
// has PRIMARY KEY columns, uniqueness is checked by scanning every
// existing page before the row is appended; registered indices are not
// consulted.
func (d *Database) InsertRow(table string, values []string) (string, error) {
	const op = "engine.InsertRow"

	d.mu.Lock()
	defer d.mu.Unlock()

	sc, err := d.schemaFor(table)
	if err != nil {
		return "", err
	}
	if len(values) != len(sc.Columns)-1 {
		return "", dberr.New(dberr.InvalidArgument, op, fmt.Sprintf("table %s expects %d values, got %d", table, len(sc.Columns)-1, len(values)))
	}

	id := uuid.New().String()
	full := make([]string, 0, len(sc.Columns))
	full = append(full, id)
	full = append(full, values...)

	if err := d.checkPrimaryKeyUniqueness(sc, full); err != nil {
		return "", err
	}

	pageNum, err := d.currentPage(sc)
	if err != nil {
		return "", err
	}

	if err := d.pages.Append(sc, pageNum, full); err != nil {
		return "", err
	}
	if err := d.pages.Recompile(sc, pageNum); err != nil {
		return "", err
	}

	isFull, err := d.pages.IsFull(sc, pageNum, d.maxRecordsPerPage)
	if err != nil {
		return "", err
	}
	if isFull {
		next := pageNum + 1
		if err := d.pages.GeneratePage(sc, next); err != nil {
			return "", err
		}
		if err := d.pages.Recompile(sc, next); err != nil {
			return "", err
		}
	}

	log.Info("inserted row", "table", table, "uuid", id, "page", pageNum)
	return id, nil
}

// currentPage returns the table's last page, generating page 0 if the
// table has none yet (should not happen for a table created through
// CreateTable, but keeps InsertRow defensive against a hand-built
// directory tree).
func (d *Database) currentPage(sc *schema.TableSchema) (int, error) {
	pages, err := d.layout.PageNumbers(sc.Name)
	if err != nil {
		return 0, dberr.Wrap(dberr.IOError, "engine.currentPage", err, "enumerate pages for %s", sc.Name)
	}
	if len(pages) == 0 {
		if err := d.pages.GeneratePage(sc, 0); err != nil {
			return 0, err
		}
		if err := d.pages.Recompile(sc, 0); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return pages[len(pages)-1], nil
}

// checkPrimaryKeyUniqueness rejects the insert if any primary-key
// column of candidate already appears on an existing page. It always
// scans every page directly rather than consulting a registered index:
// indices are built as a snapshot by CreateIndex and are never
// incrementally maintained as rows are appended, so an index could be
// stale with respect to rows inserted since it was last built. A full
// scan is the only way to stay correct.
func (d *Database) checkPrimaryKeyUniqueness(sc *schema.TableSchema, candidate []string) error {
	const op = "engine.checkPrimaryKeyUniqueness"

	if len(sc.PrimaryKeyColumns) == 0 {
		return nil
	}

	pages, err := d.layout.PageNumbers(sc.Name)
	if err != nil {
		return dberr.Wrap(dberr.IOError, op, err, "enumerate pages for %s", sc.Name)
	}

	cur, err := cursor.Open(d.layout, d.loader, sc)
	if err != nil {
		return err
	}
	defer cur.Close()

	for _, pkIdx := range sc.PrimaryKeyColumns {
		col := sc.Columns[pkIdx]
		offset, err := sc.FieldOffset(pkIdx)
		if err != nil {
			return dberr.Wrap(dberr.InternalError, op, err, "field offset for %s.%s", sc.Name, col.Name)
		}
		size, err := types.SizeOf(col.Type, col.Length)
		if err != nil {
			return dberr.Wrap(dberr.InternalError, op, err, "field size for %s.%s", sc.Name, col.Name)
		}
		candidateBytes, err := types.Parse(candidate[pkIdx], col.Type, col.Length)
		if err != nil {
			return dberr.Wrap(dberr.ValidationError, op, err, "value for %s.%s", sc.Name, col.Name)
		}

		if len(pages) == 0 {
			continue
		}
		if err := cur.Reset(); err != nil {
			return err
		}
		for {
			ok, err := cur.Next()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			rec, err := cur.Current()
			if err != nil {
				return err
			}
			if cmp, err := types.Compare(rec[offset:offset+size], candidateBytes, col.Type); err == nil && cmp == 0 {
				return dberr.New(dberr.ValidationError, op, fmt.Sprintf("duplicate value for primary key column %s.%s", sc.Name, col.Name))
			}
		}
	}
	return nil
}

// Schema returns table's TableSchema, e.g. for a CLI rendering column
// names and types before scanning.
func (d *Database) Schema(table string) (*schema.TableSchema, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.schemaFor(table)
}

// Scan returns a forward-only cursor over table's records.
func (d *Database) Scan(table string) (*cursor.Cursor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sc, err := d.schemaFor(table)
	if err != nil {
		return nil, err
	}
	return cursor.Open(d.layout, d.loader, sc)
}

// CreateIndex builds a {btree,hash} index over table.column.
func (d *Database) CreateIndex(table, column string, kind layout.IndexKind) (*index.IndexDefinition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sc, err := d.schemaFor(table)
	if err != nil {
		return nil, err
	}
	return d.indices.CreateIndex(sc, column, kind)
}

// DropIndex removes a previously created index by name.
func (d *Database) DropIndex(table, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.indices.DropIndex(table, name)
}

// Delete removes rows from table. An empty whereKernelSource deletes
// every row; otherwise whereKernelSource must be C source implementing
// the kernel ABI for the rows to remove (translating a WHERE clause
// into that source is the SQL layer's job, not this engine's).
func (d *Database) Delete(table, whereKernelSource string) (*rewrite.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sc, err := d.schemaFor(table)
	if err != nil {
		return nil, err
	}
	return d.rewriter.Delete(sc, whereKernelSource)
}

// Layout exposes the database's directory layout, e.g. for a CLI doctor
// command that wants to report on-disk paths.
func (d *Database) Layout() *layout.Layout { return d.layout }
