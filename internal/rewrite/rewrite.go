// Package rewrite implements the DELETE rewriter (C11). With no WHERE
// clause it truncates every page outright. With a WHERE clause it
// compiles and runs a caller-supplied matching kernel once per table,
// maps matched record positions back to their _uuid values, and
// rewrites each page's textual data file to omit any record line
// whose _uuid substring matches, recompiling only the pages that
// actually changed.
package rewrite

import (
	"os"
	"strings"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/compiledb/compiledb/internal/compiler"
	"github.com/compiledb/compiledb/internal/dberr"
	"github.com/compiledb/compiledb/internal/kernel"
	"github.com/compiledb/compiledb/internal/layout"
	"github.com/compiledb/compiledb/internal/loader"
	"github.com/compiledb/compiledb/internal/logging"
	"github.com/compiledb/compiledb/internal/page"
	"github.com/compiledb/compiledb/internal/schema"
)

var log = logging.GetLogger("rewrite")

// recordTerminator marks the end of each record initializer line, per
// the page data file grammar (mirrors internal/page's grammar).
const recordTerminator = "},"

// Rewriter performs DELETE rewrites over a table's pages.
type Rewriter struct {
	l     *layout.Layout
	c     *compiler.Compiler
	ld    *loader.Loader
	store *page.Store
	kp    *kernel.Pipeline
}

// New returns a Rewriter for the given layout, compiler, and loader.
func New(l *layout.Layout, c *compiler.Compiler, ld *loader.Loader) *Rewriter {
	return &Rewriter{l: l, c: c, ld: ld, store: page.New(l, c), kp: kernel.New(l, c, ld)}
}

// Result reports the outcome of a DELETE rewrite.
type Result struct {
	RowsAffected int
}

// DeleteAll truncates every page of sc, discarding all records. It is
// the WHERE-absent path: every page's data file is rewritten to its
// banner-only empty state and recompiled.
func (r *Rewriter) DeleteAll(sc *schema.TableSchema) (*Result, error) {
	const op = "rewrite.DeleteAll"

	pages, err := r.l.PageNumbers(sc.Name)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, op, err, "enumerate pages for %s", sc.Name)
	}

	affected := 0
	for _, p := range pages {
		n, err := r.store.RecordCount(sc, p)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		if err := r.store.Truncate(sc, p); err != nil {
			return nil, err
		}
		if err := r.store.Recompile(sc, p); err != nil {
			return nil, err
		}
		affected += n
	}

	log.Info("deleted all rows", "table", sc.Name, "rows", affected)
	return &Result{RowsAffected: affected}, nil
}

// Delete runs whereKernelSource (a C source implementing the kernel
// ABI, matching the rows a WHERE clause selects) once against every
// page and rewrites away every matched row's line, by _uuid substring,
// from that page's data file. A kernel that matches zero rows is a
// successful delete of zero rows, not an error.
func (r *Rewriter) Delete(sc *schema.TableSchema, whereKernelSource string) (*Result, error) {
	const op = "rewrite.Delete"

	if whereKernelSource == "" {
		return r.DeleteAll(sc)
	}

	symbol := "delete_where_" + sc.Name
	k, err := r.kp.Build(whereKernelSource, symbol, sc.Name, -1)
	if err != nil {
		return nil, err
	}
	defer k.Close()

	recordSize, err := sc.RecordSize()
	if err != nil {
		return nil, dberr.Wrap(dberr.InternalError, op, err, "record size for %s", sc.Name)
	}
	uuidIdx := sc.UUIDColumnIndex()
	uuidOff, err := sc.FieldOffset(uuidIdx)
	if err != nil {
		return nil, dberr.Wrap(dberr.InternalError, op, err, "uuid field offset for %s", sc.Name)
	}
	uuidSize := schema.UUIDColumnLength + 1

	pages, err := r.l.PageNumbers(sc.Name)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, op, err, "enumerate pages for %s", sc.Name)
	}

	affected := 0
	for _, p := range pages {
		removed, err := r.deletePage(sc, p, k, recordSize, uuidOff, uuidSize)
		if err != nil {
			return nil, err
		}
		affected += removed
	}

	log.Info("deleted rows matching kernel", "table", sc.Name, "rows", affected)
	return &Result{RowsAffected: affected}, nil
}

// deletePage runs k over pageNum's live compiled record array (never
// copied: the kernel and the _uuid extraction below both read directly
// from the mapped page, exactly as the kernel ABI contract assumes a
// contiguous recordSize-strided array), then rewrites the page's
// textual data file to drop every matched row's line.
func (r *Rewriter) deletePage(sc *schema.TableSchema, pageNum int, k *kernel.Loaded, recordSize, uuidOff, uuidSize int) (int, error) {
	const op = "rewrite.deletePage"

	path := r.l.CompiledPagePath(sc.Name, pageNum)
	h, err := r.ld.Load(path)
	if err != nil {
		return 0, dberr.Wrap(dberr.LoadError, op, err, "load page %d of %s", pageNum, sc.Name)
	}
	defer r.ld.Unload(h)

	countSym, err := r.ld.Lookup(h, "count")
	if err != nil {
		return 0, dberr.Wrap(dberr.LoadError, op, err, "resolve count() for page %d of %s", pageNum, sc.Name)
	}
	readSym, err := r.ld.Lookup(h, "read")
	if err != nil {
		return 0, dberr.Wrap(dberr.LoadError, op, err, "resolve read() for page %d of %s", pageNum, sc.Name)
	}

	var countFn func() int32
	purego.RegisterFunc(&countFn, countSym)
	var readFn func(int32) uintptr
	purego.RegisterFunc(&readFn, readSym)

	n := int(countFn())
	if n == 0 {
		return 0, nil
	}
	base := readFn(0)
	if base == 0 {
		return 0, dberr.New(dberr.InternalError, op, "read(0) returned a null record pointer")
	}

	results := make([]int32, n)
	matched := k.Execute(unsafe.Pointer(base), n, unsafe.Pointer(&results[0]), n)
	if matched == 0 {
		return 0, nil
	}

	matchedUUIDs := make([]string, 0, matched)
	for i := 0; i < matched; i++ {
		pos := int(results[i])
		if pos < 0 || pos >= n {
			continue
		}
		recPtr := base + uintptr(pos*recordSize)
		raw := unsafe.Slice((*byte)(unsafe.Pointer(recPtr+uintptr(uuidOff))), uuidSize)
		matchedUUIDs = append(matchedUUIDs, trimNUL(raw))
	}

	removed, err := r.rewriteDataFile(sc, pageNum, matchedUUIDs)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		if err := r.store.Recompile(sc, pageNum); err != nil {
			return 0, dberr.Wrap(dberr.CompileError, op, err, "recompile page %d of %s after delete", pageNum, sc.Name)
		}
	}
	return removed, nil
}

// rewriteDataFile drops every record line whose "},"-terminated body
// contains any of matchedUUIDs as a substring, writing the file back
// in place only if anything was removed.
func (r *Rewriter) rewriteDataFile(sc *schema.TableSchema, pageNum int, matchedUUIDs []string) (int, error) {
	const op = "rewrite.rewriteDataFile"

	dataPath := r.l.DataFilePath(sc.Name, pageNum)
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return 0, dberr.Wrap(dberr.IOError, op, err, "read data file %s", dataPath)
	}

	lines := strings.SplitAfter(string(data), "\n")
	var kept strings.Builder
	removed := 0
	for _, line := range lines {
		if line == "" {
			continue
		}
		if strings.HasSuffix(strings.TrimRight(line, "\n"), recordTerminator) && containsAny(line, matchedUUIDs) {
			removed++
			continue
		}
		kept.WriteString(line)
	}

	if removed == 0 {
		return 0, nil
	}
	if err := os.WriteFile(dataPath, []byte(kept.String()), 0644); err != nil {
		return removed, dberr.Wrap(dberr.IOError, op, err, "rewrite data file %s", dataPath)
	}
	return removed, nil
}

func containsAny(line string, substrings []string) bool {
	for _, s := range substrings {
		if s != "" && strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
