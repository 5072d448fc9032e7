// Package cache implements the three client-side cache/pool entities of
// spec.md §3.6 / §4.4.7: a bounded, content-addressed node read cache
// whose concurrent decode-misses coalesce to one decode per id (§4.5), a
// key-position cache for ordered fixed-record arrays, and a paged strong
// reference cache for sequential random-access reads. All three are
// invisible to peers — purely client-local optimizations.
package cache
