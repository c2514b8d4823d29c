// Package model provides the node graph primitives for docsync.
//
// This package contains the value types, nodes, and mutation-notifying
// containers. All other internal packages import model; model imports
// nothing internal.
//
// Key design constraints:
//   - Value is a sealed union; only the types in this package implement it
//   - A node belongs to at most one document at a time
//   - Containers notify every (node, attribute) owner on each mutation,
//     passing a pre-mutation snapshot and an optional hint
//   - Graph traversal uses explicit worklists, never call-stack recursion
//     over the reference relation
package model
