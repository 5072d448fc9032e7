// Package tree implements the client-side copy-on-write B+tree over
// DataFiles of spec.md §4.4: node encode/decode, the DataFile byte-sequence
// abstraction, an ordered key index mapping keys to DataFile subtree roots,
// the per-transaction dirty-node heap with flush-to-block-server, and the
// background GC sweep.
//
// The package never dials a block server or manager itself — it is handed
// a NodeSource (read/write/allocate) by the caller, so the same tree logic
// runs against a real pkg/session-backed cluster in production and against
// an in-memory fake in tests, mirroring how pkg/cache.NodeCache is handed a
// decode function rather than owning I/O.
package tree
