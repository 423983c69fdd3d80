package tree

import (
	"errors"
	"fmt"
	"sort"
)

// ErrShapeMismatch is returned when a leaf meets a node at the same label
// path, or when the leaves of one tree sit at different depths.
var ErrShapeMismatch = errors.New("tree: shape mismatch")

// Tree is a Leaf or a Node. The interface is sealed.
type Tree interface {
	isTree()
}

// Leaf holds a single gauge value.
type Leaf float64

// Node maps a label value to the subtree below it.
type Node map[string]Tree

func (Leaf) isTree() {}
func (Node) isTree() {}

// Clone returns a deep copy of t. Clone(nil) is nil.
func Clone(t Tree) Tree {
	switch v := t.(type) {
	case Leaf:
		return v
	case Node:
		out := make(Node, len(v))
		for k, child := range v {
			out[k] = Clone(child)
		}
		return out
	default:
		return nil
	}
}

// Zero returns a deep copy of t with every leaf set to 0.
func Zero(t Tree) Tree {
	switch v := t.(type) {
	case Leaf:
		return Leaf(0)
	case Node:
		out := make(Node, len(v))
		for k, child := range v {
			out[k] = Zero(child)
		}
		return out
	default:
		return nil
	}
}

// Merge reconciles the previously merged tree with a freshly normalized
// snapshot fragment. See the package documentation for the algorithm.
func Merge(prev, next Tree) (Tree, error) {
	if prev == nil {
		return Clone(next), nil
	}
	out := Zero(prev)
	if next == nil {
		return out, nil
	}
	return adopt(out, next, nil)
}

// adopt writes every path of src into dst, which it owns and may mutate.
func adopt(dst, src Tree, path []string) (Tree, error) {
	switch s := src.(type) {
	case Leaf:
		if _, isNode := dst.(Node); isNode {
			return nil, fmt.Errorf("%w: leaf replaces node at %v", ErrShapeMismatch, path)
		}
		return s, nil
	case Node:
		var d Node
		switch dv := dst.(type) {
		case nil:
			d = make(Node, len(s))
		case Node:
			d = dv
		default:
			return nil, fmt.Errorf("%w: node replaces leaf at %v", ErrShapeMismatch, path)
		}
		for k, child := range s {
			merged, err := adopt(d[k], child, append(path, k))
			if err != nil {
				return nil, err
			}
			d[k] = merged
		}
		return d, nil
	default:
		return dst, nil
	}
}

// Depth reports the label arity of t. The second result is false when the
// arity cannot be told from t: a nil tree or a node without leaves.
func Depth(t Tree) (int, bool) {
	switch v := t.(type) {
	case Leaf:
		return 0, true
	case Node:
		for _, child := range v {
			if d, ok := Depth(child); ok {
				return d + 1, true
			}
		}
	}
	return 0, false
}

// Validate checks that every leaf of t sits at the same depth.
func Validate(t Tree) error {
	want, ok := Depth(t)
	if !ok {
		return nil
	}
	var err error
	Walk(t, func(labels []string, _ float64) {
		if err == nil && len(labels) != want {
			err = fmt.Errorf("%w: leaf at %v has %d labels, want %d", ErrShapeMismatch, labels, len(labels), want)
		}
	})
	return err
}

// Walk calls fn for every leaf of t in lexicographic label order. The labels
// slice is reused between calls; copy it to retain it.
func Walk(t Tree, fn func(labels []string, v float64)) {
	walk(t, nil, fn)
}

func walk(t Tree, labels []string, fn func([]string, float64)) {
	switch v := t.(type) {
	case Leaf:
		fn(labels, float64(v))
	case Node:
		for _, k := range Keys(v) {
			walk(v[k], append(labels, k), fn)
		}
	}
}

// Keys returns the label values of n in sorted order.
func Keys(n Node) []string {
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Paths returns every leaf path of t in Walk order.
func Paths(t Tree) [][]string {
	var out [][]string
	Walk(t, func(labels []string, _ float64) {
		out = append(out, append([]string(nil), labels...))
	})
	return out
}

// Len returns the number of leaves in t.
func Len(t Tree) int {
	n := 0
	Walk(t, func([]string, float64) { n++ })
	return n
}

// Lookup returns the leaf value at path.
func Lookup(t Tree, path ...string) (float64, bool) {
	for _, label := range path {
		n, ok := t.(Node)
		if !ok {
			return 0, false
		}
		if t, ok = n[label]; !ok {
			return 0, false
		}
	}
	leaf, ok := t.(Leaf)
	return float64(leaf), ok
}

// Equal reports whether a and b have the same paths and values.
func Equal(a, b Tree) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Leaf:
		bv, ok := b.(Leaf)
		return ok && av == bv
	case Node:
		bv, ok := b.(Node)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, child := range av {
			other, ok := bv[k]
			if !ok || !Equal(child, other) {
				return false
			}
		}
		return true
	}
	return false
}
