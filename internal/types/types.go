// Package types implements the compiled-page engine's type system (C1):
// it enumerates the column data types, computes their C-compatible sizes
// and alignments, and converts between the SQL layer's textual literals
// and the fixed-width bytes a generated record struct actually stores.
package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Type enumerates the column data types a TableSchema column may hold.
type Type int

const (
	// Int is a 32-bit signed integer.
	Int Type = iota
	// Float is a 64-bit IEEE 754 float.
	Float
	// Boolean is a single byte, 0 or 1.
	Boolean
	// Date is seconds since the Unix epoch, interpreted in local time.
	Date
	// Varchar is an inline, fixed-length, NUL-terminated buffer.
	Varchar
	// Text is a fixed 4096-byte inline buffer.
	Text
)

// TextSize is the fixed inline size of a TEXT column, per the data model.
const TextSize = 4096

// String returns the uppercase enum name used in schema.json and
// generated C source, e.g. "VARCHAR".
func (t Type) String() string {
	switch t {
	case Int:
		return "INT"
	case Float:
		return "FLOAT"
	case Boolean:
		return "BOOLEAN"
	case Date:
		return "DATE"
	case Varchar:
		return "VARCHAR"
	case Text:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

// ParseType converts a schema.json type name into a Type.
func ParseType(name string) (Type, error) {
	switch strings.ToUpper(name) {
	case "INT":
		return Int, nil
	case "FLOAT":
		return Float, nil
	case "BOOLEAN":
		return Boolean, nil
	case "DATE":
		return Date, nil
	case "VARCHAR":
		return Varchar, nil
	case "TEXT":
		return Text, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", name)
	}
}

// SizeOf returns the byte size of a value of type t. length is the
// declared VARCHAR length and is ignored for every other type.
func SizeOf(t Type, length int) (int, error) {
	switch t {
	case Int:
		return 4, nil
	case Float:
		return 8, nil
	case Boolean:
		return 1, nil
	case Date:
		return 8, nil
	case Varchar:
		if length <= 0 {
			return 0, fmt.Errorf("varchar length must be > 0, got %d", length)
		}
		// +1 reserves room for the NUL terminator.
		return length + 1, nil
	case Text:
		return TextSize, nil
	default:
		return 0, fmt.Errorf("unknown type %v", t)
	}
}

// AlignmentOf returns the natural alignment, in bytes, of a value of
// type t. VARCHAR/TEXT are byte-aligned inline buffers.
func AlignmentOf(t Type) (int, error) {
	switch t {
	case Int:
		return 4, nil
	case Float:
		return 8, nil
	case Boolean:
		return 1, nil
	case Date:
		return 8, nil
	case Varchar, Text:
		return 1, nil
	default:
		return 0, fmt.Errorf("unknown type %v", t)
	}
}

// Validate reports whether text is a legal literal for type t (length is
// the declared VARCHAR length).
func Validate(text string, t Type, length int) bool {
	switch t {
	case Int:
		_, err := strconv.ParseInt(strings.TrimSpace(text), 10, 32)
		return err == nil
	case Float:
		return validateFloat(text)
	case Boolean:
		switch strings.ToLower(strings.TrimSpace(text)) {
		case "true", "false", "1", "0":
			return true
		default:
			return false
		}
	case Date:
		_, err := time.ParseInLocation("2006-01-02", text, time.Local)
		return err == nil
	case Varchar:
		return len(text) <= length
	case Text:
		return true
	default:
		return false
	}
}

// validateFloat accepts optional sign, digits, and at most one decimal point.
func validateFloat(text string) bool {
	s := strings.TrimSpace(text)
	if s != "" && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

// Parse converts a textual literal into the type's fixed-width native
// byte representation (host-endian, matching the generated C struct).
func Parse(text string, t Type, length int) ([]byte, error) {
	size, err := SizeOf(t, length)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)

	switch t {
	case Int:
		v, err := strconv.ParseInt(strings.TrimSpace(text), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid INT literal %q: %w", text, err)
		}
		binary.NativeEndian.PutUint32(buf, uint32(int32(v)))
	case Float:
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid FLOAT literal %q: %w", text, err)
		}
		binary.NativeEndian.PutUint64(buf, math.Float64bits(v))
	case Boolean:
		v, err := parseBool(text)
		if err != nil {
			return nil, err
		}
		if v {
			buf[0] = 1
		}
	case Date:
		tm, err := time.ParseInLocation("2006-01-02", text, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid DATE literal %q: %w", text, err)
		}
		binary.NativeEndian.PutUint64(buf, uint64(tm.Unix()))
	case Varchar, Text:
		if !Validate(text, t, length) {
			return nil, fmt.Errorf("value %q exceeds declared length for %s", text, t)
		}
		copy(buf, text)
		// buf is already zero-initialized, giving the NUL terminator/padding.
	default:
		return nil, fmt.Errorf("unknown type %v", t)
	}
	return buf, nil
}

func parseBool(text string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid BOOLEAN literal %q", text)
	}
}

// ZeroLiteral returns the textual zero value used to serialize a NULL
// column into the page's textual data file.
func ZeroLiteral(t Type) string {
	switch t {
	case Int:
		return "0"
	case Float:
		return "0.0"
	case Boolean:
		return "false"
	case Date:
		return "1970-01-01"
	case Varchar, Text:
		return ""
	default:
		return ""
	}
}

// Format converts a fixed-width native byte representation back to its
// textual form, the inverse of Parse.
func Format(data []byte, t Type) (string, error) {
	switch t {
	case Int:
		v := int32(binary.NativeEndian.Uint32(data))
		return strconv.FormatInt(int64(v), 10), nil
	case Float:
		v := math.Float64frombits(binary.NativeEndian.Uint64(data))
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case Boolean:
		if data[0] != 0 {
			return "true", nil
		}
		return "false", nil
	case Date:
		secs := int64(binary.NativeEndian.Uint64(data))
		return time.Unix(secs, 0).In(time.Local).Format("2006-01-02"), nil
	case Varchar, Text:
		i := indexNUL(data)
		return string(data[:i]), nil
	default:
		return "", fmt.Errorf("unknown type %v", t)
	}
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return len(b)
}

// Compare returns -1, 0, or 1 according to whether a is less than, equal
// to, or greater than b, both encoded per Parse for type t.
func Compare(a, b []byte, t Type) (int, error) {
	switch t {
	case Int:
		av := int32(binary.NativeEndian.Uint32(a))
		bv := int32(binary.NativeEndian.Uint32(b))
		return sign(int64(av) - int64(bv)), nil
	case Float:
		av := math.Float64frombits(binary.NativeEndian.Uint64(a))
		bv := math.Float64frombits(binary.NativeEndian.Uint64(b))
		switch {
		case av < bv:
			return -1, nil
		case av > bv:
			return 1, nil
		default:
			return 0, nil
		}
	case Boolean:
		return sign(int64(a[0]) - int64(b[0])), nil
	case Date:
		av := int64(binary.NativeEndian.Uint64(a))
		bv := int64(binary.NativeEndian.Uint64(b))
		return sign(av - bv), nil
	case Varchar, Text:
		as, _ := Format(a, t)
		bs, _ := Format(b, t)
		switch {
		case as < bs:
			return -1, nil
		case as > bs:
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, fmt.Errorf("unknown type %v", t)
	}
}

func sign(v int64) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
