// Package asset implements the typed content repository. All mutations pass
// through one serialized Store; every mutating call recomputes the value
// fingerprint and timestamp and notifies registered change listeners, which
// is how staleness propagation and version history are driven.
package asset
