package session

import (
	"time"

	"github.com/mckoi/mckoiddb/pkg/types"
)

// RootAdmin is a thin client for the administrative root-server operations
// spec.md §6.4's CLI surface needs directly against one path's root
// server — show-roots and rollback don't open a transaction or touch the
// manager/block tier, so they don't need a full Session.
type RootAdmin struct {
	rc *rootClient
}

// NewRootAdmin builds a RootAdmin talking to the root server at addr.
func NewRootAdmin(addr string, networkPassword string, timeout time.Duration) *RootAdmin {
	if timeout <= 0 {
		timeout = DefaultDirectoryTimeout
	}
	return &RootAdmin{rc: &rootClient{addr: addr, secret: []byte(networkPassword), timeout: timeout}}
}

// Current returns path's current_root.
func (a *RootAdmin) Current(path types.PathName) (types.NodeID, error) {
	return a.rc.Current(path)
}

// History returns path's retained commit history, oldest first.
func (a *RootAdmin) History(path types.PathName) ([]HistoryEntry, error) {
	return a.rc.History(path)
}

// Rollback sets path's current_root back to the root recorded under
// commitID, if still retained (spec.md §4.3.5).
func (a *RootAdmin) Rollback(path types.PathName, commitID uint64) (types.NodeID, bool, error) {
	return a.rc.Rollback(path, commitID)
}
