// Package kernel implements the kernel pipeline (C10): it writes
// generated C source implementing the kernel ABI
// (int kernel(void* data, int count, void* results, int max_results)),
// compiles it through C3, loads it through C4, and resolves the named
// entry symbol into a callable Go function bound over the C ABI.
package kernel

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/compiledb/compiledb/internal/compiler"
	"github.com/compiledb/compiledb/internal/dberr"
	"github.com/compiledb/compiledb/internal/layout"
	"github.com/compiledb/compiledb/internal/loader"
	"github.com/compiledb/compiledb/internal/logging"
)

var log = logging.GetLogger("kernel")

// Pipeline builds and loads kernels for one database.
type Pipeline struct {
	l  *layout.Layout
	c  *compiler.Compiler
	ld *loader.Loader
}

// New returns a Pipeline using the given layout, compiler, and loader.
func New(l *layout.Layout, c *compiler.Compiler, ld *loader.Loader) *Pipeline {
	return &Pipeline{l: l, c: c, ld: ld}
}

// Loaded is a compiled, loaded kernel bound to its entry symbol.
type Loaded struct {
	p  *Pipeline
	h  *loader.Handle
	fn func(uintptr, int32, uintptr, int32) int32
}

// Build writes source under the kernel source path for symbol/table/page
// (page < 0 for a table-wide kernel not tied to one page), compiles it,
// loads the resulting artifact, and resolves symbol.
func (p *Pipeline) Build(source, symbol, table string, page int) (*Loaded, error) {
	const op = "kernel.Build"

	if err := os.MkdirAll(p.l.KernelsDir(), 0755); err != nil {
		return nil, dberr.Wrap(dberr.IOError, op, err, "create kernels dir")
	}

	srcPath := p.l.KernelSourcePath(symbol, table, page)
	if err := os.WriteFile(srcPath, []byte(source), 0644); err != nil {
		return nil, dberr.Wrap(dberr.IOError, op, err, "write kernel source %s", srcPath)
	}

	outPath := p.l.CompiledKernelPath(symbol, table, page)
	if err := p.c.Compile(srcPath, outPath, nil); err != nil {
		return nil, dberr.Wrap(dberr.CompileError, op, err, "compile kernel %s for %s", symbol, table)
	}

	h, err := p.ld.Load(outPath)
	if err != nil {
		return nil, dberr.Wrap(dberr.LoadError, op, err, "load kernel %s for %s", symbol, table)
	}

	sym, err := p.ld.Lookup(h, symbol)
	if err != nil {
		p.ld.Unload(h)
		return nil, dberr.Wrap(dberr.LoadError, op, err, "resolve kernel symbol %s", symbol)
	}

	var fn func(uintptr, int32, uintptr, int32) int32
	purego.RegisterFunc(&fn, sym)

	log.Info("built kernel", "symbol", symbol, "table", table, "page", page)
	return &Loaded{p: p, h: h, fn: fn}, nil
}

// Execute invokes the kernel over count records starting at data,
// writing up to max matching record indices into results, and returns
// how many it wrote.
func (l *Loaded) Execute(data unsafe.Pointer, count int, results unsafe.Pointer, max int) int {
	n := l.fn(uintptr(data), int32(count), uintptr(results), int32(max))
	return int(n)
}

// Close releases the kernel's loaded artifact.
func (l *Loaded) Close() error { return l.p.ld.Unload(l.h) }

// SelectAllSource emits a kernel matching every record: it writes
// 0..count-1 (bounded by max_results) into results and returns how many
// it wrote.
func SelectAllSource(symbol string) string {
	return fmt.Sprintf(
		"// autogenerated select-all kernel\n"+
			"int %s(const void* data, int count, int* results, int max_results) {\n"+
			"    int n = count;\n"+
			"    if (n > max_results) n = max_results;\n"+
			"    int i;\n"+
			"    for (i = 0; i < n; i++) results[i] = i;\n"+
			"    return n;\n}\n",
		symbol)
}
