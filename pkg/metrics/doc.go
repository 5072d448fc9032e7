// Package metrics defines and registers the Prometheus metrics exposed by
// every MckoiDDB daemon (block, manager, root) and by the client tree
// store's caches, in the default Prometheus registry. Handler exposes them
// for scraping; no daemon in this tree serves an HTTP /metrics endpoint.
package metrics
