/*
Package manager implements the manager server of spec.md §4.2: the
cluster-wide directory mapping node id -> replica set, the permanent-id
allocator, and block-server liveness tracking.

A deployment runs one or more managers. State is replicated with
HashiCorp's raft (the teacher's own consensus layer, generalized here from
cluster-membership state to directory state): every state-changing
operation (AllocateIDs, Assign, Heartbeat) goes through raft.Apply so a
strict majority of managers acknowledge it before it takes effect, exactly
as spec.md §4.2's "writes to the directory require a strict majority
acknowledgement" calls for. Resolve is a local read, since spec.md allows
any manager to serve reads and expects clients to retry on a stale
version.

Durability of the directory itself needs no bespoke write-ahead log: raft's
own BoltDB-backed log store and periodic snapshot store ARE the
"write-ahead log plus periodic snapshot" spec.md §6.3 asks for.
*/
package manager
