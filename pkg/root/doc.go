/*
Package root implements the root server of spec.md §4.3: the transactional
commit engine that owns a path's current_root pointer and is the sole
publisher of new root node ids for it.

Each path gets its own commit critical section, history ring buffer
(spec.md §3.6, default depth 64), and transaction cache (spec.md §4.3.4,
default 14 MiB); all three are independent across paths so that one path's
commit load never blocks another's. Conflict classification against the
history ring uses package txrange's bloom-filter-plus-unique-key summary
(spec.md §4.3.3); only a hard conflict is a terminal CommitFault, since
spec.md's three-way merge step applies to anything less than that.

Durability follows spec.md §6.3 ("persist current_root transitionally...
append each accepted commit to a per-path log") using go.etcd.io/bbolt, the
same durable-KV dependency pkg/block and pkg/manager already carry: a
single bbolt transaction updates the current_root record and appends the
history entry together, so there is no window where one is durable and the
other is not, which a hand-rolled write-new/fsync/rename-plus-separate-log
scheme would have to guard against explicitly.
*/
package root
