// Package cursor implements the table cursor (C6): a forward-only
// iterator that spans a table's compiled pages, invoking each page's
// generated count/read accessors through the dynamic loader and
// exposing the current record as a raw, schema-laid-out byte slice.
package cursor

import (
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/compiledb/compiledb/internal/dberr"
	"github.com/compiledb/compiledb/internal/layout"
	"github.com/compiledb/compiledb/internal/loader"
	"github.com/compiledb/compiledb/internal/schema"
)

// Cursor iterates a table's records page by page, record by record.
// Current may only be called between a successful Next and the next
// call to Next, Reset, or Close; the bytes it returns are the caller's
// own copy.
type Cursor struct {
	l          *layout.Layout
	ld         *loader.Loader
	sc         *schema.TableSchema
	recordSize int

	pages   []int // page-number snapshot taken at Open/Reset
	pageIdx int
	recIdx  int // -1 means "before the first record of this page"

	handle   *loader.Handle
	countFn  func() int32
	readFn   func(int32) uintptr

	atEnd  bool
	closed bool
}

// Open positions a new cursor before the first record of table.
func Open(l *layout.Layout, ld *loader.Loader, sc *schema.TableSchema) (*Cursor, error) {
	const op = "cursor.Open"

	recordSize, err := sc.RecordSize()
	if err != nil {
		return nil, dberr.Wrap(dberr.InternalError, op, err, "record size for %s", sc.Name)
	}

	pages, err := l.PageNumbers(sc.Name)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, op, err, "enumerate pages for %s", sc.Name)
	}

	c := &Cursor{l: l, ld: ld, sc: sc, recordSize: recordSize, pages: pages, pageIdx: -1, recIdx: -1}
	if len(pages) == 0 {
		c.atEnd = true
		return c, nil
	}
	if err := c.loadPage(0); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cursor) loadPage(idx int) error {
	const op = "cursor.loadPage"

	if c.handle != nil {
		if err := c.ld.Unload(c.handle); err != nil {
			return dberr.Wrap(dberr.LoadError, op, err, "unload page %d of %s", c.pages[c.pageIdx], c.sc.Name)
		}
		c.handle, c.countFn, c.readFn = nil, nil, nil
	}

	page := c.pages[idx]
	path := c.l.CompiledPagePath(c.sc.Name, page)

	h, err := c.ld.Load(path)
	if err != nil {
		return dberr.Wrap(dberr.LoadError, op, err, "load page %d of %s", page, c.sc.Name)
	}

	countSym, err := c.ld.Lookup(h, "count")
	if err != nil {
		return dberr.Wrap(dberr.LoadError, op, err, "resolve count() for page %d of %s", page, c.sc.Name)
	}
	readSym, err := c.ld.Lookup(h, "read")
	if err != nil {
		return dberr.Wrap(dberr.LoadError, op, err, "resolve read() for page %d of %s", page, c.sc.Name)
	}

	var countFn func() int32
	purego.RegisterFunc(&countFn, countSym)
	var readFn func(int32) uintptr
	purego.RegisterFunc(&readFn, readSym)

	c.handle, c.countFn, c.readFn = h, countFn, readFn
	c.pageIdx, c.recIdx = idx, -1
	return nil
}

// Next advances to the next record, returning false once the cursor has
// passed the table's last record.
func (c *Cursor) Next() (bool, error) {
	if c.closed {
		return false, dberr.New(dberr.InvalidArgument, "cursor.Next", "cursor is closed")
	}
	if c.atEnd {
		return false, nil
	}

	for {
		n := int(c.countFn())
		if c.recIdx+1 < n {
			c.recIdx++
			return true, nil
		}

		nextIdx := c.pageIdx + 1
		if nextIdx >= len(c.pages) {
			c.atEnd = true
			return false, nil
		}
		if err := c.loadPage(nextIdx); err != nil {
			return false, err
		}
	}
}

// Current returns a copy of the current record's raw, schema-laid-out
// bytes. It may only be called between a successful Next and the
// following call to Next, Reset, or Close; the returned slice is a copy
// and stays valid after the cursor moves on.
func (c *Cursor) Current() ([]byte, error) {
	const op = "cursor.Current"

	if c.closed || c.atEnd || c.recIdx < 0 {
		return nil, dberr.New(dberr.InvalidArgument, op, "cursor has no current record")
	}

	ptr := c.readFn(int32(c.recIdx))
	if ptr == 0 {
		return nil, dberr.New(dberr.InternalError, op, "read(pos) returned a null record pointer")
	}

	src := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), c.recordSize)
	out := make([]byte, c.recordSize)
	copy(out, src)
	return out, nil
}

// Reset repositions the cursor before the table's first record, taking
// a fresh snapshot of its page count.
func (c *Cursor) Reset() error {
	const op = "cursor.Reset"

	pages, err := c.l.PageNumbers(c.sc.Name)
	if err != nil {
		return dberr.Wrap(dberr.IOError, op, err, "enumerate pages for %s", c.sc.Name)
	}
	c.pages = pages
	c.atEnd = false
	c.closed = false

	if c.handle != nil {
		if err := c.ld.Unload(c.handle); err != nil {
			return dberr.Wrap(dberr.LoadError, op, err, "unload current page of %s", c.sc.Name)
		}
		c.handle, c.countFn, c.readFn = nil, nil, nil
	}

	if len(pages) == 0 {
		c.atEnd = true
		c.pageIdx, c.recIdx = -1, -1
		return nil
	}
	return c.loadPage(0)
}

// Close releases the cursor's currently loaded page, if any.
func (c *Cursor) Close() error {
	const op = "cursor.Close"

	if c.closed {
		return nil
	}
	c.closed = true
	if c.handle == nil {
		return nil
	}
	h := c.handle
	c.handle, c.countFn, c.readFn = nil, nil, nil
	if err := c.ld.Unload(h); err != nil {
		return dberr.Wrap(dberr.LoadError, op, err, "unload page on close for %s", c.sc.Name)
	}
	return nil
}
