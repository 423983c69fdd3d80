// Package tree defines the labeled value tree that backs every exported
// Pi-hole metric, and the merge that reconciles successive snapshots into it.
//
// A Tree is either a Leaf (one numeric value) or a Node (label value → child
// Tree). The depth of a tree is its label arity: a Leaf has zero labels, a
// Node of Leaves has one, and so on. A nil Tree means "absent from this
// snapshot".
//
// Merge(prev, next) runs two passes over a copy of prev:
//
//  1. retain-and-zero: every leaf already known is set to 0;
//  2. adopt-and-grow: every path of next is written into the copy, creating
//     nodes that were never seen before.
//
// As a result a label path, once observed, stays in the tree for good and its
// value drops to 0 when a later snapshot omits it. Merge never mutates its
// arguments, so merging the same snapshot twice yields the same tree.
package tree
