// Package btree implements the in-memory, fixed-order B-tree index
// (C7). Nodes live in an arena (a slice) and are addressed by NodeID
// rather than pointers, so the whole tree can be freed by dropping the
// arena and traversal/split code works on plain indices.
package btree

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/compiledb/compiledb/internal/dberr"
	"github.com/compiledb/compiledb/internal/types"
)

// NodeID addresses a node within a Tree's arena. NilNode means "no node".
type NodeID int

// NilNode is the zero-value sentinel for an absent child reference.
const NilNode NodeID = -1

type node struct {
	leaf      bool
	keys      [][]byte
	positions []int
	children  []NodeID
}

// Tree is a fixed-order B-tree keyed by values of a single column type.
type Tree struct {
	Order   int // M: max children per node; max M-1 keys per node
	KeyType types.Type

	nodes []node
	root  NodeID
}

// New returns an empty tree of the given order and key type. order must
// be at least 3.
func New(order int, keyType types.Type) (*Tree, error) {
	if order < 3 {
		return nil, dberr.New(dberr.InvalidArgument, "btree.New", "order must be >= 3")
	}
	return &Tree{Order: order, KeyType: keyType, root: NilNode}, nil
}

func (t *Tree) newLeaf() NodeID {
	t.nodes = append(t.nodes, node{leaf: true})
	return NodeID(len(t.nodes) - 1)
}

func (t *Tree) newInternal() NodeID {
	t.nodes = append(t.nodes, node{leaf: false})
	return NodeID(len(t.nodes) - 1)
}

func (t *Tree) at(id NodeID) *node { return &t.nodes[id] }

func (t *Tree) cmp(a, b []byte) int {
	c, _ := types.Compare(a, b, t.KeyType)
	return c
}

// firstGE returns the first index in keys whose value is >= target.
func (t *Tree) firstGE(keys [][]byte, target []byte) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(keys[mid], target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// firstGT returns the first index in keys whose value is > target.
func (t *Tree) firstGT(keys [][]byte, target []byte) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(keys[mid], target) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Insert adds one (key, position) pair to the tree.
func (t *Tree) Insert(key []byte, position int) {
	if t.root == NilNode {
		root := t.newLeaf()
		n := t.at(root)
		n.keys = append(n.keys, key)
		n.positions = append(n.positions, position)
		t.root = root
		return
	}

	if len(t.at(t.root).keys) == t.Order-1 {
		newRoot := t.newInternal()
		t.at(newRoot).children = []NodeID{t.root}
		t.splitChild(newRoot, 0)
		t.root = newRoot
	}
	t.insertNonFull(t.root, key, position)
}

// splitChild splits the full child at parent.children[idx], promoting
// its median key/position into parent at index idx.
func (t *Tree) splitChild(parent NodeID, idx int) {
	childID := t.at(parent).children[idx]
	child := t.at(childID)

	mid := t.Order / 2
	medianKey := child.keys[mid]
	medianPos := child.positions[mid]

	sibling := node{leaf: child.leaf}
	sibling.keys = append(sibling.keys, child.keys[mid+1:]...)
	sibling.positions = append(sibling.positions, child.positions[mid+1:]...)
	if !child.leaf {
		sibling.children = append(sibling.children, child.children[mid+1:]...)
	}
	siblingID := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, sibling)

	// Re-fetch: appending to t.nodes may have grown the arena's backing array.
	child = t.at(childID)
	child.keys = child.keys[:mid]
	child.positions = child.positions[:mid]
	if !child.leaf {
		child.children = child.children[:mid+1]
	}

	p := t.at(parent)
	p.keys = append(p.keys, nil)
	copy(p.keys[idx+1:], p.keys[idx:])
	p.keys[idx] = medianKey

	p.positions = append(p.positions, 0)
	copy(p.positions[idx+1:], p.positions[idx:])
	p.positions[idx] = medianPos

	p.children = append(p.children, NilNode)
	copy(p.children[idx+2:], p.children[idx+1:])
	p.children[idx+1] = siblingID
}

func (t *Tree) insertNonFull(id NodeID, key []byte, position int) {
	n := t.at(id)
	if n.leaf {
		i := t.firstGT(n.keys, key)
		n.keys = append(n.keys, nil)
		copy(n.keys[i+1:], n.keys[i:])
		n.keys[i] = key

		n.positions = append(n.positions, 0)
		copy(n.positions[i+1:], n.positions[i:])
		n.positions[i] = position
		return
	}

	i := t.firstGT(n.keys, key)
	if len(t.at(n.children[i]).keys) == t.Order-1 {
		t.splitChild(id, i)
		n = t.at(id)
		if t.cmp(key, n.keys[i]) > 0 {
			i++
		}
	}
	t.insertNonFull(n.children[i], key, position)
}

// FindExact returns up to max positions whose key equals target,
// covering every subtree that could hold a duplicate of target.
func (t *Tree) FindExact(target []byte, max int) []int {
	var out []int
	if t.root != NilNode {
		t.findExact(t.root, target, max, &out)
	}
	return out
}

func (t *Tree) findExact(id NodeID, target []byte, max int, out *[]int) {
	if id == NilNode || len(*out) >= max {
		return
	}
	n := t.at(id)
	lo := t.firstGE(n.keys, target)
	hi := lo
	for hi < len(n.keys) && t.cmp(n.keys[hi], target) == 0 {
		hi++
	}

	if n.leaf {
		for i := lo; i < hi && len(*out) < max; i++ {
			*out = append(*out, n.positions[i])
		}
		return
	}

	for c := lo; c <= hi; c++ {
		if len(*out) >= max {
			return
		}
		t.findExact(n.children[c], target, max, out)
	}
	for i := lo; i < hi && len(*out) < max; i++ {
		*out = append(*out, n.positions[i])
	}
}

// FindRange returns up to max positions whose key lies in [lo, hi]. A
// nil bound means unbounded on that side. lo > hi returns no results.
func (t *Tree) FindRange(lo, hi []byte, max int) []int {
	if lo != nil && hi != nil && t.cmp(lo, hi) > 0 {
		return nil
	}
	var out []int
	if t.root != NilNode {
		t.findRange(t.root, lo, hi, max, &out)
	}
	return out
}

func (t *Tree) findRange(id NodeID, lo, hi []byte, max int, out *[]int) {
	if id == NilNode || len(*out) >= max {
		return
	}
	n := t.at(id)
	for i, k := range n.keys {
		if len(*out) >= max {
			return
		}
		if !n.leaf {
			t.findRange(n.children[i], lo, hi, max, out)
			if len(*out) >= max {
				return
			}
		}
		if (lo == nil || t.cmp(k, lo) >= 0) && (hi == nil || t.cmp(k, hi) <= 0) {
			*out = append(*out, n.positions[i])
		}
		if hi != nil && t.cmp(k, hi) > 0 {
			return
		}
	}
	if !n.leaf {
		t.findRange(n.children[len(n.keys)], lo, hi, max, out)
	}
}

// BuildFromSorted builds a tree by inserting pairs in the order given.
// Pairs should already be sorted by key for the caller's own benefit
// (e.g. matching page record order); the resulting tree is correct
// regardless of input order.
func BuildFromSorted(order int, keyType types.Type, keys [][]byte, positions []int) (*Tree, error) {
	if len(keys) != len(positions) {
		return nil, dberr.New(dberr.InvalidArgument, "btree.BuildFromSorted", "keys and positions must have equal length")
	}
	t, err := New(order, keyType)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		t.Insert(keys[i], positions[i])
	}
	return t, nil
}

// SerializeToSource emits a C source blob that reproduces this tree as
// static node arrays plus find_by_{col}_exact / find_by_{col}_range
// functions matching the index ABI. The emitted traversal mirrors
// findExact/findRange above: every child spanning a run of duplicate
// keys is visited, and range scans stop as soon as a key exceeds hi.
func (t *Tree) SerializeToSource(table, column string) string {
	prefix := fmt.Sprintf("%s_%s_btree", table, column)
	ctype := cKeyType(t.KeyType)
	isString := t.KeyType == types.Varchar || t.KeyType == types.Text
	upper := strings.ToUpper(prefix)

	var b strings.Builder
	fmt.Fprintf(&b, "// autogenerated B-tree index for %s.%s\n", table, column)
	b.WriteString("#include <stdint.h>\n")
	if isString {
		b.WriteString("#include <string.h>\n")
	}
	fmt.Fprintf(&b, "typedef struct { int leaf; int nkeys; %s keys[%d]; int positions[%d]; int children[%d]; } %sNode;\n\n",
		ctype, t.Order-1, t.Order-1, t.Order, prefix)

	fmt.Fprintf(&b, "static %sNode %s_nodes[%d] = {\n", prefix, prefix, max(len(t.nodes), 1))
	for _, n := range t.nodes {
		b.WriteString("    " + t.serializeNode(n, ctype) + ",\n")
	}
	b.WriteString("};\n\n")

	fmt.Fprintf(&b, "static int %s_root = %d;\n\n", prefix, int(t.root))

	cmpExpr := "((a) < (b) ? -1 : ((a) > (b) ? 1 : 0))"
	if isString {
		cmpExpr = "strcmp((a), (b))"
	}
	fmt.Fprintf(&b, "#define %s_CMP(a, b) (%s)\n\n", upper, cmpExpr)

	fmt.Fprintf(&b, "static void %s_find_exact_node(int id, %s target, int* out, int* n, int max) {\n", prefix, ctype)
	b.WriteString("    if (id < 0 || *n >= max) return;\n")
	fmt.Fprintf(&b, "    %sNode* node = &%s_nodes[id];\n", prefix, prefix)
	b.WriteString("    int lo = 0;\n")
	fmt.Fprintf(&b, "    while (lo < node->nkeys && %s_CMP(node->keys[lo], target) < 0) lo++;\n", upper)
	b.WriteString("    int hi = lo;\n")
	fmt.Fprintf(&b, "    while (hi < node->nkeys && %s_CMP(node->keys[hi], target) == 0) hi++;\n\n", upper)
	b.WriteString("    if (node->leaf) {\n")
	b.WriteString("        int i;\n")
	b.WriteString("        for (i = lo; i < hi && *n < max; i++) out[(*n)++] = node->positions[i];\n")
	b.WriteString("        return;\n")
	b.WriteString("    }\n\n")
	b.WriteString("    int c;\n")
	b.WriteString("    for (c = lo; c <= hi; c++) {\n")
	b.WriteString("        if (*n >= max) return;\n")
	fmt.Fprintf(&b, "        %s_find_exact_node(node->children[c], target, out, n, max);\n", prefix)
	b.WriteString("    }\n")
	b.WriteString("    int i;\n")
	b.WriteString("    for (i = lo; i < hi && *n < max; i++) out[(*n)++] = node->positions[i];\n")
	b.WriteString("}\n\n")

	fmt.Fprintf(&b, "int find_by_%s_exact(const void* key, int* out_positions, int max) {\n", column)
	if isString {
		fmt.Fprintf(&b, "    %s target = (%s)key;\n", ctype, ctype)
	} else {
		fmt.Fprintf(&b, "    %s target = *(const %s*)key;\n", ctype, ctype)
	}
	b.WriteString("    int n = 0;\n")
	fmt.Fprintf(&b, "    if (%s_root >= 0) %s_find_exact_node(%s_root, target, out_positions, &n, max);\n", prefix, prefix, prefix)
	b.WriteString("    return n;\n}\n\n")

	fmt.Fprintf(&b, "static void %s_find_range_node(int id, int has_lo, int has_hi, %s lo, %s hi, int* out, int* n, int max) {\n", prefix, ctype, ctype)
	b.WriteString("    if (id < 0 || *n >= max) return;\n")
	fmt.Fprintf(&b, "    %sNode* node = &%s_nodes[id];\n", prefix, prefix)
	b.WriteString("    int i;\n")
	b.WriteString("    for (i = 0; i < node->nkeys; i++) {\n")
	b.WriteString("        if (*n >= max) return;\n")
	b.WriteString("        if (!node->leaf) {\n")
	fmt.Fprintf(&b, "            %s_find_range_node(node->children[i], has_lo, has_hi, lo, hi, out, n, max);\n", prefix)
	b.WriteString("            if (*n >= max) return;\n")
	b.WriteString("        }\n")
	fmt.Fprintf(&b, "        int ge_lo = !has_lo || %s_CMP(node->keys[i], lo) >= 0;\n", upper)
	fmt.Fprintf(&b, "        int le_hi = !has_hi || %s_CMP(node->keys[i], hi) <= 0;\n", upper)
	b.WriteString("        if (ge_lo && le_hi) out[(*n)++] = node->positions[i];\n")
	fmt.Fprintf(&b, "        if (has_hi && %s_CMP(node->keys[i], hi) > 0) return;\n", upper)
	b.WriteString("    }\n")
	b.WriteString("    if (!node->leaf) {\n")
	fmt.Fprintf(&b, "        %s_find_range_node(node->children[node->nkeys], has_lo, has_hi, lo, hi, out, n, max);\n", prefix)
	b.WriteString("    }\n}\n\n")

	fmt.Fprintf(&b, "int find_by_%s_range(const void* lo, const void* hi, int* out_positions, int max) {\n", column)
	b.WriteString("    int has_lo = lo != 0;\n")
	b.WriteString("    int has_hi = hi != 0;\n")
	if isString {
		fmt.Fprintf(&b, "    %s lo_val = has_lo ? (%s)lo : 0;\n", ctype, ctype)
		fmt.Fprintf(&b, "    %s hi_val = has_hi ? (%s)hi : 0;\n", ctype, ctype)
	} else {
		fmt.Fprintf(&b, "    %s lo_val = has_lo ? *(const %s*)lo : 0;\n", ctype, ctype)
		fmt.Fprintf(&b, "    %s hi_val = has_hi ? *(const %s*)hi : 0;\n", ctype, ctype)
	}
	b.WriteString("    int n = 0;\n")
	fmt.Fprintf(&b, "    if (%s_root >= 0) %s_find_range_node(%s_root, has_lo, has_hi, lo_val, hi_val, out_positions, &n, max);\n", prefix, prefix, prefix)
	b.WriteString("    return n;\n}\n")

	return b.String()
}

func (t *Tree) serializeNode(n node, ctype string) string {
	leaf := 0
	if n.leaf {
		leaf = 1
	}
	keys := "{0}"
	if len(n.keys) > 0 {
		parts := ""
		for i, k := range n.keys {
			if i > 0 {
				parts += ", "
			}
			parts += cKeyLiteral(k, t.KeyType)
		}
		keys = "{" + parts + "}"
	}
	positions := "{0}"
	if len(n.positions) > 0 {
		parts := ""
		for i, p := range n.positions {
			if i > 0 {
				parts += ", "
			}
			parts += fmt.Sprintf("%d", p)
		}
		positions = "{" + parts + "}"
	}
	children := "{-1}"
	if len(n.children) > 0 {
		parts := ""
		for i, c := range n.children {
			if i > 0 {
				parts += ", "
			}
			parts += fmt.Sprintf("%d", int(c))
		}
		children = "{" + parts + "}"
	}
	return fmt.Sprintf("{ %d, %d, %s, %s, %s }", leaf, len(n.keys), keys, positions, children)
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
