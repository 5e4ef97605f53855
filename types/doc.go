// Package types defines the shared data model of the Loom graph core:
// assets, nodes, edges, provenance, execution states, content fingerprints,
// and the structured error taxonomy used across all packages.
package types
