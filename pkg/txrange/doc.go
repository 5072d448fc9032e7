// Package txrange computes and compares touched-range summaries used by the
// root server's commit protocol (spec.md §4.3.3) to classify two
// concurrently committed transactions as disjoint, softly conflicting, or
// hard-conflicting.
package txrange
