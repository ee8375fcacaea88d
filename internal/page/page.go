// Package page implements the page store (C5): it generates per-page C
// source and header artifacts, appends and counts records in the
// textual data file that is the actual source of truth, and drives
// recompilation through the artifact compiler.
package page

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/compiledb/compiledb/internal/compiler"
	"github.com/compiledb/compiledb/internal/dberr"
	"github.com/compiledb/compiledb/internal/layout"
	"github.com/compiledb/compiledb/internal/logging"
	"github.com/compiledb/compiledb/internal/schema"
	"github.com/compiledb/compiledb/internal/types"
)

var log = logging.GetLogger("page")

// bannerLine is the only content of a freshly generated data file.
const bannerLine = "// autogenerated by compiledb; do not edit\n"

// recordTerminator marks the end of each record initializer line, per
// the page data file grammar.
const recordTerminator = "},\n"

// Store generates and mutates per-page artifacts for one table.
type Store struct {
	Layout   *layout.Layout
	Compiler *compiler.Compiler
}

// New returns a Store for the given layout and compiler.
func New(l *layout.Layout, c *compiler.Compiler) *Store {
	return &Store{Layout: l, Compiler: c}
}

// GenerateTableHeader writes the table's record struct header.
func (s *Store) GenerateTableHeader(sc *schema.TableSchema) error {
	const op = "page.GenerateTableHeader"

	if err := os.MkdirAll(s.Layout.TableDir(sc.Name), 0755); err != nil {
		return dberr.Wrap(dberr.IOError, op, err, "create table dir for %s", sc.Name)
	}

	var b strings.Builder
	b.WriteString(bannerLine)
	fmt.Fprintf(&b, "#ifndef %s\n#define %s\n\n", headerGuard(sc.Name), headerGuard(sc.Name))
	fmt.Fprintf(&b, "#include <stdint.h>\n\n")
	fmt.Fprintf(&b, "typedef struct {\n")
	for _, col := range sc.Columns {
		ctype, err := cFieldDecl(col)
		if err != nil {
			return dberr.Wrap(dberr.InternalError, op, err, "field declaration for column %s", col.Name)
		}
		fmt.Fprintf(&b, "    %s;\n", ctype)
	}
	fmt.Fprintf(&b, "} %s;\n\n#endif\n", recordStructName(sc.Name))

	path := s.Layout.TableHeaderPath(sc.Name)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return dberr.Wrap(dberr.IOError, op, err, "write table header %s", path)
	}
	return nil
}

// GeneratePage writes a fresh page's empty data file and source file;
// the table header comes from GenerateTableHeader. It does not compile
// the page.
func (s *Store) GeneratePage(sc *schema.TableSchema, page int) error {
	const op = "page.GeneratePage"

	for _, dir := range s.Layout.TableDirs(sc.Name) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return dberr.Wrap(dberr.IOError, op, err, "create table directory %s", dir)
		}
	}

	dataPath := s.Layout.DataFilePath(sc.Name, page)
	if err := os.WriteFile(dataPath, []byte(bannerLine), 0644); err != nil {
		return dberr.Wrap(dberr.IOError, op, err, "write empty data file %s", dataPath)
	}

	return s.writeSource(sc, page)
}

func (s *Store) writeSource(sc *schema.TableSchema, page int) error {
	const op = "page.writeSource"

	dataPath := s.Layout.DataFilePath(sc.Name, page)
	headerPath := s.Layout.TableHeaderPath(sc.Name)
	arrayName := fmt.Sprintf("%sData_%d", sc.Name, page)

	var b strings.Builder
	b.WriteString(bannerLine)
	fmt.Fprintf(&b, "#include %q\n\n", relInclude(s.Layout.SrcDir(sc.Name), headerPath))
	fmt.Fprintf(&b, "static const %s %s[] = {\n", recordStructName(sc.Name), arrayName)
	fmt.Fprintf(&b, "#include %q\n", relInclude(s.Layout.SrcDir(sc.Name), dataPath))
	fmt.Fprintf(&b, "};\n\n")
	fmt.Fprintf(&b, "int count(void) { return (int)(sizeof(%s) / sizeof(%s[0])); }\n\n", arrayName, arrayName)
	fmt.Fprintf(&b, "const void* read(int pos) {\n")
	fmt.Fprintf(&b, "    if (pos < 0 || pos >= count()) return 0;\n")
	fmt.Fprintf(&b, "    return &%s[pos];\n}\n", arrayName)

	srcPath := s.Layout.SourceFilePath(sc.Name, page)
	if err := os.WriteFile(srcPath, []byte(b.String()), 0644); err != nil {
		return dberr.Wrap(dberr.IOError, op, err, "write page source %s", srcPath)
	}
	return nil
}

// Append renders values (one textual literal per column, in schema
// order; use schema field's zero literal for NULLs) and appends the
// resulting record line to the page's data file under an exclusive
// file lock.
func (s *Store) Append(sc *schema.TableSchema, page int, values []string) error {
	const op = "page.Append"

	if len(values) != len(sc.Columns) {
		return dberr.New(dberr.InvalidArgument, op, fmt.Sprintf("expected %d values, got %d", len(sc.Columns), len(values)))
	}

	dataPath := s.Layout.DataFilePath(sc.Name, page)
	lock := flock.New(dataPath + ".lock")
	if err := lock.Lock(); err != nil {
		return dberr.Wrap(dberr.IOError, op, err, "acquire lock for %s", dataPath)
	}
	defer lock.Unlock()

	line, err := renderRecordLine(sc, values)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(dataPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return dberr.Wrap(dberr.IOError, op, err, "open data file %s", dataPath)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return dberr.Wrap(dberr.IOError, op, err, "append record to %s", dataPath)
	}
	return nil
}

// renderRecordLine builds one "{ v1, v2, … },\n" initializer line.
func renderRecordLine(sc *schema.TableSchema, values []string) (string, error) {
	const op = "page.renderRecordLine"

	fields := make([]string, len(sc.Columns))
	for i, col := range sc.Columns {
		text := values[i]
		if text == "" && col.Nullable {
			text = types.ZeroLiteral(col.Type)
		}
		lit, err := cLiteral(text, col)
		if err != nil {
			return "", dberr.Wrap(dberr.ValidationError, op, err, "column %s value %q", col.Name, values[i])
		}
		fields[i] = lit
	}
	return "{ " + strings.Join(fields, ", ") + " " + recordTerminator, nil
}

// cLiteral renders one value as a C initializer literal for col's type.
func cLiteral(text string, col schema.Column) (string, error) {
	if !types.Validate(text, col.Type, col.Length) {
		return "", fmt.Errorf("invalid %s literal %q", col.Type, text)
	}
	switch col.Type {
	case types.Int:
		return text, nil
	case types.Float:
		return text, nil
	case types.Boolean:
		switch strings.ToLower(text) {
		case "true", "1":
			return "1", nil
		default:
			return "0", nil
		}
	case types.Date:
		data, err := types.Parse(text, types.Date, 0)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", int64(binary.NativeEndian.Uint64(data))), nil
	case types.Varchar, types.Text:
		return fmt.Sprintf("%q", text), nil
	default:
		return "", fmt.Errorf("unknown type %v", col.Type)
	}
}

// RecordCount counts record lines in the page's data file by counting
// occurrences of the record terminator.
func (s *Store) RecordCount(sc *schema.TableSchema, page int) (int, error) {
	const op = "page.RecordCount"

	dataPath := s.Layout.DataFilePath(sc.Name, page)
	f, err := os.Open(dataPath)
	if err != nil {
		return 0, dberr.Wrap(dberr.IOError, op, err, "open data file %s", dataPath)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasSuffix(strings.TrimRight(line, "\n"), "},") {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, dberr.Wrap(dberr.IOError, op, err, "scan data file %s", dataPath)
	}
	return count, nil
}

// IsFull reports whether the page holds at least max records.
func (s *Store) IsFull(sc *schema.TableSchema, page, max int) (bool, error) {
	n, err := s.RecordCount(sc, page)
	if err != nil {
		return false, err
	}
	return n >= max, nil
}

// Truncate rewrites the page's data file back to its banner-only
// empty state, discarding every record. Callers must call Recompile
// afterward to bring the compiled artifact in sync.
func (s *Store) Truncate(sc *schema.TableSchema, page int) error {
	const op = "page.Truncate"

	dataPath := s.Layout.DataFilePath(sc.Name, page)
	if err := os.WriteFile(dataPath, []byte(bannerLine), 0644); err != nil {
		return dberr.Wrap(dberr.IOError, op, err, "truncate data file %s", dataPath)
	}
	return nil
}

// Recompile regenerates the page's source (in case callers rewrote the
// data file directly, e.g. DELETE) and invokes the compiler.
func (s *Store) Recompile(sc *schema.TableSchema, page int) error {
	const op = "page.Recompile"

	if err := s.writeSource(sc, page); err != nil {
		return err
	}

	srcPath := s.Layout.SourceFilePath(sc.Name, page)
	outPath := s.Layout.CompiledPagePath(sc.Name, page)
	includeDirs := []string{s.Layout.TableDir(sc.Name), s.Layout.DataDir(sc.Name)}

	if err := s.Compiler.Compile(srcPath, outPath, includeDirs); err != nil {
		return dberr.Wrap(dberr.CompileError, op, err, "recompile page %d of %s", page, sc.Name)
	}
	log.Info("recompiled page", "table", sc.Name, "page", page)
	return nil
}

func headerGuard(table string) string {
	return strings.ToUpper(table) + "_H"
}

func recordStructName(table string) string {
	return table + "Record"
}

// relInclude computes the #include path of target relative to fromDir.
func relInclude(fromDir, target string) string {
	rel, err := filepath.Rel(fromDir, target)
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}

// cFieldDecl renders one column's C struct field declaration.
func cFieldDecl(col schema.Column) (string, error) {
	switch col.Type {
	case types.Int:
		return "int32_t " + col.Name, nil
	case types.Float:
		return "double " + col.Name, nil
	case types.Boolean:
		return "unsigned char " + col.Name, nil
	case types.Date:
		return "int64_t " + col.Name, nil
	case types.Varchar:
		size, err := types.SizeOf(types.Varchar, col.Length)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("char %s[%d]", col.Name, size), nil
	case types.Text:
		return fmt.Sprintf("char %s[%d]", col.Name, types.TextSize), nil
	default:
		return "", fmt.Errorf("unknown type %v", col.Type)
	}
}
