// Package hashindex implements the chained hash index (C8): a
// fixed-size bucket array, each bucket a singly linked chain of
// (key, position) entries, hashed with a djb2-style function over the
// key's canonical bytes.
package hashindex

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/compiledb/compiledb/internal/dberr"
	"github.com/compiledb/compiledb/internal/types"
)

// DefaultSize is the bucket count used when none is specified.
const DefaultSize = 101

type entry struct {
	key      []byte
	position int
	next     int // index into entries, -1 if none
}

// Index is a chained hash table over one column's values.
type Index struct {
	Size    int
	KeyType types.Type

	buckets []int // head entry index per bucket, -1 if empty
	entries []entry
}

// New returns an empty index with the given bucket count.
func New(size int, keyType types.Type) (*Index, error) {
	if size < 1 {
		return nil, dberr.New(dberr.InvalidArgument, "hashindex.New", "size must be >= 1")
	}
	buckets := make([]int, size)
	for i := range buckets {
		buckets[i] = -1
	}
	return &Index{Size: size, KeyType: keyType, buckets: buckets}, nil
}

// canonicalBytes returns the bytes djb2 hashes: the raw representation
// for numeric types, or the bytes up to the first NUL for strings.
func canonicalBytes(key []byte, t types.Type) []byte {
	switch t {
	case types.Varchar, types.Text:
		for i, b := range key {
			if b == 0 {
				return key[:i]
			}
		}
		return key
	default:
		return key
	}
}

// djb2 is the classic Bernstein hash.
func djb2(data []byte) uint32 {
	var h uint32 = 5381
	for _, b := range data {
		h = h*33 + uint32(b)
	}
	return h
}

func (idx *Index) bucketFor(key []byte) int {
	h := djb2(canonicalBytes(key, idx.KeyType))
	return int(h % uint32(idx.Size))
}

// Insert adds one (key, position) pair at the head of its bucket chain.
func (idx *Index) Insert(key []byte, position int) {
	b := idx.bucketFor(key)
	idx.entries = append(idx.entries, entry{key: key, position: position, next: idx.buckets[b]})
	idx.buckets[b] = len(idx.entries) - 1
}

// FindExact returns up to max positions whose key equals target.
func (idx *Index) FindExact(target []byte, max int) []int {
	var out []int
	b := idx.bucketFor(target)
	for i := idx.buckets[b]; i != -1 && len(out) < max; i = idx.entries[i].next {
		e := idx.entries[i]
		if cmp, _ := types.Compare(e.key, target, idx.KeyType); cmp == 0 {
			out = append(out, e.position)
		}
	}
	return out
}

// BuildFromPairs builds an index sized max(2*len(pairs), DefaultSize).
func BuildFromPairs(keyType types.Type, keys [][]byte, positions []int) (*Index, error) {
	if len(keys) != len(positions) {
		return nil, dberr.New(dberr.InvalidArgument, "hashindex.BuildFromPairs", "keys and positions must have equal length")
	}
	size := DefaultSize
	if 2*len(keys) > size {
		size = 2 * len(keys)
	}
	idx, err := New(size, keyType)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		idx.Insert(keys[i], positions[i])
	}
	return idx, nil
}

// SerializeToSource emits a C source blob reproducing this index as a
// static bucket/entry array plus a find_by_{col} function matching the
// index ABI. djb2Hash and the chain walk mirror bucketFor/FindExact
// above exactly so the compiled artifact agrees with this Go index.
func (idx *Index) SerializeToSource(table, column string) string {
	prefix := fmt.Sprintf("%s_%s_hash", table, column)
	ctype := cKeyType(idx.KeyType)
	isString := idx.KeyType == types.Varchar || idx.KeyType == types.Text
	upper := strings.ToUpper(prefix)

	var b strings.Builder
	fmt.Fprintf(&b, "// autogenerated hash index for %s.%s\n", table, column)
	b.WriteString("#include <stdint.h>\n")
	if isString {
		b.WriteString("#include <string.h>\n")
	}
	fmt.Fprintf(&b, "typedef struct { %s key; int position; int next; } %sEntry;\n\n", ctype, prefix)

	fmt.Fprintf(&b, "static int %s_buckets[%d] = {", prefix, idx.Size)
	for i, bk := range idx.buckets {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d", bk)
	}
	b.WriteString("};\n\n")

	entryCount := len(idx.entries)
	if entryCount == 0 {
		entryCount = 1
	}
	fmt.Fprintf(&b, "static %sEntry %s_entries[%d] = {\n", prefix, prefix, entryCount)
	for _, e := range idx.entries {
		fmt.Fprintf(&b, "    { %s, %d, %d },\n", cKeyLiteral(e.key, idx.KeyType), e.position, e.next)
	}
	b.WriteString("};\n\n")

	cmpExpr := "((a) == (b) ? 0 : 1)"
	if isString {
		cmpExpr = "strcmp((a), (b))"
	}
	fmt.Fprintf(&b, "#define %s_CMP(a, b) (%s)\n\n", upper, cmpExpr)

	fmt.Fprintf(&b, "static unsigned int %s_djb2(const unsigned char* data, int len) {\n", prefix)
	b.WriteString("    unsigned int h = 5381;\n")
	b.WriteString("    int i;\n")
	b.WriteString("    for (i = 0; i < len; i++) h = h * 33 + data[i];\n")
	b.WriteString("    return h;\n}\n\n")

	fmt.Fprintf(&b, "static int %s_bucket_for(%s key) {\n", prefix, ctype)
	if isString {
		b.WriteString("    unsigned int h = " + prefix + "_djb2((const unsigned char*)key, (int)strlen(key));\n")
	} else {
		fmt.Fprintf(&b, "    unsigned int h = %s_djb2((const unsigned char*)&key, (int)sizeof(key));\n", prefix)
	}
	fmt.Fprintf(&b, "    return (int)(h %% %d);\n}\n\n", idx.Size)

	fmt.Fprintf(&b, "int find_by_%s(const void* key, int* out_positions, int max) {\n", column)
	if isString {
		fmt.Fprintf(&b, "    %s target = (%s)key;\n", ctype, ctype)
	} else {
		fmt.Fprintf(&b, "    %s target = *(const %s*)key;\n", ctype, ctype)
	}
	fmt.Fprintf(&b, "    int bucket = %s_bucket_for(target);\n", prefix)
	b.WriteString("    int n = 0;\n")
	fmt.Fprintf(&b, "    int i = %s_buckets[bucket];\n", prefix)
	b.WriteString("    while (i != -1 && n < max) {\n")
	fmt.Fprintf(&b, "        %sEntry* e = &%s_entries[i];\n", prefix, prefix)
	fmt.Fprintf(&b, "        if (%s_CMP(e->key, target) == 0) out_positions[n++] = e->position;\n", upper)
	b.WriteString("        i = e->next;\n")
	b.WriteString("    }\n")
	b.WriteString("    return n;\n}\n")

	return b.String()
}

func cKeyType(t types.Type) string {
	switch t {
	case types.Int:
		return "int32_t"
	case types.Float:
		return "double"
	case types.Boolean:
		return "unsigned char"
	case types.Date:
		return "int64_t"
	default:
		return "const char*"
	}
}

func cKeyLiteral(key []byte, t types.Type) string {
	if t == types.Date {
		return fmt.Sprintf("%d", int64(binary.NativeEndian.Uint64(key)))
	}
	text, err := types.Format(key, t)
	if err != nil {
		return "0"
	}
	switch t {
	case types.Varchar, types.Text:
		return fmt.Sprintf("%q", text)
	case types.Boolean:
		if text == "true" {
			return "1"
		}
		return "0"
	default:
		return text
	}
}
