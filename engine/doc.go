// Package engine runs recipes against graph nodes. A run resolves the
// node's effective inputs, validates them against the recipe's schema,
// invokes the dispatched executor, and writes the result back into the
// graph: a new generated node, or a merge into an already-connected
// collection node. Every generated node is stamped with provenance so the
// propagator can flag it stale when a source changes.
package engine
