// Package graph implements the directed-acyclic canvas graph: nodes, edges,
// parent/child containment, topological ordering, cascading removal, the
// connection validator, and the undo/redo command stack over structural
// edits. All mutations pass through one serialized Store.
package graph
