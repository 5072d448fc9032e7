// Package block implements the block server of spec.md §4.1: durable,
// content-addressed storage of immutable node bytes, with idempotent
// writes, SHA-256 tail checksums, and startup unclean-shutdown detection
// via a sentinel file.
package block
