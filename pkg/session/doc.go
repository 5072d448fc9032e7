// Package session is the client side of spec.md §4.5: the concurrency
// coordinator tying the manager, block, and root servers to pkg/tree's
// transaction handle. A Session owns one shared NodeCache and the cluster
// addresses from config.ClientConfig; Begin opens a Tx over a fresh
// base_root read from a path's root server, and Tx.Commit drives the
// three-way commit protocol of spec.md §4.3.2 including the rebase-and-
// resubmit loop on MergeNeeded.
//
// Block and manager RPCs are issued through clusterSource, the
// pkg/tree.NodeSource and pkg/tree.GCSweeper RootSource implementation;
// Begin and Commit call the path's root server through rootClient
// directly. Every RPC dials wire.Conn per call (spec.md §5's "small pool of worker threads per connected peer" is
// realized here as one short-lived connection per RPC rather than a kept-
// open pool, since node writes/reads are not latency-sensitive enough in
// this design to warrant connection reuse's added lifecycle complexity),
// enforces the per-call timeouts of spec.md §5 (5 s block read, 10 s block
// write, 2 s directory lookup), and block reads and manager calls on
// timeout or error retry against the next candidate address before giving
// up with a NetworkError (block writes go to every replica without
// failover, and a root server has a single address), per
// spec.md §5's "on timeout, the client retries to a different
// replica/manager; on exhaustion, the calling transaction fails with a
// NetworkError" — this package's own direct implementation of that clause,
// since no pack repo's client dials more than one fixed address.
package session
