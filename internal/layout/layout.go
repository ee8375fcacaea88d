// Package layout computes the deterministic directory and file paths
// (C2) that every other component in the engine shares: table
// directories, per-page data/source/compiled artifact paths, and index
// artifact paths. The layout is part of the on-disk contract and must
// not change shape across versions.
package layout

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// IndexKind names the on-disk artifact prefix for an index kind.
type IndexKind string

const (
	BTree IndexKind = "btree"
	Hash  IndexKind = "hash"
)

// Layout resolves every path under one database base directory.
type Layout struct {
	Base string
}

// New returns a Layout rooted at base.
func New(base string) *Layout {
	return &Layout{Base: base}
}

// TablesDir is "{base}/tables".
func (l *Layout) TablesDir() string { return filepath.Join(l.Base, "tables") }

// CompiledDir is "{base}/compiled".
func (l *Layout) CompiledDir() string { return filepath.Join(l.Base, "compiled") }

// ScriptsDir is "{base}/scripts".
func (l *Layout) ScriptsDir() string { return filepath.Join(l.Base, "scripts") }

// PermissionsDir is "{base}/permissions".
func (l *Layout) PermissionsDir() string { return filepath.Join(l.Base, "permissions") }

// KernelsDir is "{base}/kernels", where C10 writes per-query kernel source.
func (l *Layout) KernelsDir() string { return filepath.Join(l.Base, "kernels") }

// RootDirs returns every top-level directory a fresh database needs.
func (l *Layout) RootDirs() []string {
	return []string{l.TablesDir(), l.CompiledDir(), l.ScriptsDir(), l.PermissionsDir(), l.KernelsDir()}
}

// TableDir is "{base}/tables/{T}".
func (l *Layout) TableDir(table string) string { return filepath.Join(l.TablesDir(), table) }

// TableHeaderPath is "{base}/tables/{T}/{T}.h".
func (l *Layout) TableHeaderPath(table string) string {
	return filepath.Join(l.TableDir(table), table+".h")
}

// MetadataDir is "{base}/tables/{T}/metadata".
func (l *Layout) MetadataDir(table string) string {
	return filepath.Join(l.TableDir(table), "metadata")
}

// SchemaPath is "{base}/tables/{T}/metadata/schema.json".
func (l *Layout) SchemaPath(table string) string {
	return filepath.Join(l.MetadataDir(table), "schema.json")
}

// IndicesPath is "{base}/tables/{T}/metadata/indices.dat".
func (l *Layout) IndicesPath(table string) string {
	return filepath.Join(l.MetadataDir(table), "indices.dat")
}

// DataDir is "{base}/tables/{T}/data".
func (l *Layout) DataDir(table string) string { return filepath.Join(l.TableDir(table), "data") }

// SrcDir is "{base}/tables/{T}/src".
func (l *Layout) SrcDir(table string) string { return filepath.Join(l.TableDir(table), "src") }

// TableDirs returns every directory a single table needs.
func (l *Layout) TableDirs(table string) []string {
	return []string{l.TableDir(table), l.MetadataDir(table), l.DataDir(table), l.SrcDir(table)}
}

// DataFilePath is "{base}/tables/{T}/data/{T}Data.{p}.dat.h".
func (l *Layout) DataFilePath(table string, page int) string {
	return filepath.Join(l.DataDir(table), fmt.Sprintf("%sData.%d.dat.h", table, page))
}

// SourceFilePath is "{base}/tables/{T}/src/{T}Data_{p}.c".
func (l *Layout) SourceFilePath(table string, page int) string {
	return filepath.Join(l.SrcDir(table), fmt.Sprintf("%sData_%d.c", table, page))
}

// CompiledPagePath is "{base}/compiled/{T}Data_{p}.so".
func (l *Layout) CompiledPagePath(table string, page int) string {
	return filepath.Join(l.CompiledDir(), fmt.Sprintf("%sData_%d.so", table, page))
}

// CompiledIndexPath is "{base}/compiled/{T}_{btree|hash}_index_{col}_{p}.so".
func (l *Layout) CompiledIndexPath(table string, kind IndexKind, column string, page int) string {
	return filepath.Join(l.CompiledDir(), fmt.Sprintf("%s_%s_index_%s_%d.so", table, kind, column, page))
}

// IndexSourcePath is "{base}/tables/{T}/src/{T}_{btree|hash}_index_{col}_{p}.c".
func (l *Layout) IndexSourcePath(table string, kind IndexKind, column string, page int) string {
	return filepath.Join(l.SrcDir(table), fmt.Sprintf("%s_%s_index_%s_%d.c", table, kind, column, page))
}

// KernelSourcePath is "{base}/kernels/{symbol}_{table}_{page}.c" when page
// >= 0, or "{base}/kernels/{symbol}_{table}.c" for a table-wide kernel.
func (l *Layout) KernelSourcePath(symbol, table string, page int) string {
	return filepath.Join(l.KernelsDir(), kernelArtifactName(symbol, table, page)+".c")
}

// CompiledKernelPath is the compiled counterpart of KernelSourcePath,
// under the shared compiled/ directory.
func (l *Layout) CompiledKernelPath(symbol, table string, page int) string {
	return filepath.Join(l.CompiledDir(), kernelArtifactName(symbol, table, page)+".so")
}

func kernelArtifactName(symbol, table string, page int) string {
	if page < 0 {
		return fmt.Sprintf("%s_%s", symbol, table)
	}
	return fmt.Sprintf("%s_%s_%d", symbol, table, page)
}

// pageGlob builds the glob pattern used to discover compiled pages.
func (l *Layout) pageGlob(table string) string {
	return filepath.Join(l.CompiledDir(), fmt.Sprintf("%sData_*.so", table))
}

// PageNumbers enumerates, in ascending order, the page numbers present
// for table by globbing its compiled page artifacts. This is the
// runtime source of truth for a table's page count (C2).
func (l *Layout) PageNumbers(table string) ([]int, error) {
	matches, err := filepath.Glob(l.pageGlob(table))
	if err != nil {
		return nil, fmt.Errorf("enumerate pages for table %s: %w", table, err)
	}
	prefix := table + "Data_"
	pages := make([]int, 0, len(matches))
	for _, m := range matches {
		base := filepath.Base(m)
		base = strings.TrimSuffix(base, ".so")
		num := strings.TrimPrefix(base, prefix)
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages, nil
}

// PageCount returns the number of compiled pages for table.
func (l *Layout) PageCount(table string) (int, error) {
	pages, err := l.PageNumbers(table)
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}
