package main

import (
	"fmt"
	"strings"

	"github.com/compiledb/compiledb/internal/schema"
	"github.com/compiledb/compiledb/internal/types"
)

// parseEquality splits a "col=value" --where expression.
func parseEquality(expr string) (column, value string, err error) {
	idx := strings.IndexByte(expr, '=')
	if idx < 0 {
		return "", "", fmt.Errorf("expected col=value, got %q", expr)
	}
	return strings.TrimSpace(expr[:idx]), strings.TrimSpace(expr[idx+1:]), nil
}

// buildEqualsKernel renders a kernel ABI C source matching every record
// whose column field compares byte-equal to value's encoded form. It
// generalizes across every column type by comparing raw bytes with
// memcmp rather than emitting a per-type C literal. Unlike
// internal/types.Compare it does not decode the values, so for example
// FLOAT 0 and -0 do not match each other.
func buildEqualsKernel(symbol string, sc *schema.TableSchema, column, value string) (string, error) {
	colIdx, ok := sc.ColumnIndex(column)
	if !ok {
		return "", fmt.Errorf("table %s has no column %q", sc.Name, column)
	}
	col := sc.Columns[colIdx]

	offset, err := sc.FieldOffset(colIdx)
	if err != nil {
		return "", err
	}
	size, err := types.SizeOf(col.Type, col.Length)
	if err != nil {
		return "", err
	}
	encoded, err := types.Parse(value, col.Type, col.Length)
	if err != nil {
		return "", fmt.Errorf("value %q for column %s: %w", value, column, err)
	}
	if len(encoded) != size {
		return "", fmt.Errorf("encoded value for column %s has unexpected length %d, want %d", column, len(encoded), size)
	}
	recordSize, err := sc.RecordSize()
	if err != nil {
		return "", err
	}

	var bytes strings.Builder
	for i, b := range encoded {
		if i > 0 {
			bytes.WriteString(", ")
		}
		fmt.Fprintf(&bytes, "0x%02x", b)
	}

	return fmt.Sprintf(
		"#include <string.h>\n"+
			"static const unsigned char %s_value[%d] = { %s };\n"+
			"int %s(const void* data, int count, int* results, int max_results) {\n"+
			"    const unsigned char* base = (const unsigned char*)data;\n"+
			"    int n = 0, i;\n"+
			"    for (i = 0; i < count && n < max_results; i++) {\n"+
			"        if (memcmp(base + i*%d + %d, %s_value, %d) == 0) results[n++] = i;\n"+
			"    }\n"+
			"    return n;\n"+
			"}\n",
		symbol, size, bytes.String(),
		symbol,
		recordSize, offset, symbol, size,
	), nil
}
