package tree

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/mckoi/mckoiddb/pkg/cache"
	"github.com/mckoi/mckoiddb/pkg/log"
	"github.com/mckoi/mckoiddb/pkg/metrics"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// RootSource is the narrow capability a GCSweeper needs from the root
// server: every root that must still be treated as reachable for a path,
// namely the current root plus whatever history spec.md §4.3.4's retention
// window still keeps around for time-travel reads and rollback.
type RootSource interface {
	RetainedRoots(path types.PathName) ([]types.NodeID, error)
}

// GCConfig configures a background GC sweep loop (spec.md §4.4.6).
type GCConfig struct {
	Path     types.PathName
	Source   NodeSource
	Roots    RootSource
	Cache    *cache.NodeCache
	Interval time.Duration
}

// GCSweeper periodically walks every node reachable from a path's retained
// roots and releases the manager's directory reference on anything
// assigned but no longer reachable (spec.md §4.4.6: "garbage collection
// walks the reachable set from retained roots and instructs the manager to
// release replicas of unreferenced nodes"). Grounded on the manager's own
// startLivenessMonitor/sweepLiveness ticker-and-stopCh loop.
type GCSweeper struct {
	cfg    GCConfig
	stop   chan struct{}
	logger zerolog.Logger
}

// NewGCSweeper creates a sweeper for cfg.Path. Call Start to begin the
// periodic sweep.
func NewGCSweeper(cfg GCConfig) *GCSweeper {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &GCSweeper{cfg: cfg, logger: log.WithPath(string(cfg.Path))}
}

// Start runs Sweep on cfg.Interval until Stop is called.
func (s *GCSweeper) Start() {
	s.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.Sweep(); err != nil {
					s.logger.Warn().Err(err).Msg("gc sweep failed")
				}
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop ends the periodic sweep. Safe to call once Start has run.
func (s *GCSweeper) Stop() {
	if s.stop != nil {
		close(s.stop)
	}
}

// Sweep runs one GC pass immediately, returning the number of node ids
// released to zero references (and therefore dropped from the directory).
func (s *GCSweeper) Sweep() (int, error) {
	outcome := "ok"
	defer func() {
		metrics.GCSweepsTotal.WithLabelValues(string(s.cfg.Path), outcome).Inc()
	}()

	roots, err := s.cfg.Roots.RetainedRoots(s.cfg.Path)
	if err != nil {
		outcome = "error"
		return 0, err
	}

	reachable := make(map[types.NodeID]bool)
	for _, root := range roots {
		if err := markReachable(s.cfg.Source, s.cfg.Cache, root, modeIndex, reachable); err != nil {
			outcome = "error"
			return 0, err
		}
	}

	assigned, err := s.cfg.Source.ListAssignedIDs()
	if err != nil {
		outcome = "error"
		return 0, err
	}

	var dead []types.NodeID
	for _, id := range assigned {
		if !reachable[id] {
			dead = append(dead, id)
		}
	}
	if len(dead) == 0 {
		return 0, nil
	}

	reclaimed, err := s.cfg.Source.ReleaseNodes(sortedNodeIDs(dead))
	if err != nil {
		outcome = "error"
		return 0, err
	}
	metrics.GCReclaimedNodesTotal.WithLabelValues(string(s.cfg.Path)).Add(float64(len(reclaimed)))
	s.logger.Debug().
		Int("assigned", len(assigned)).
		Int("reachable", len(reachable)).
		Int("released", len(dead)).
		Int("reclaimed", len(reclaimed)).
		Msg("gc sweep complete")
	return len(reclaimed), nil
}

// markReachable walks id's subtree, recording every node id it visits into
// reachable. mode selects, at a leaf, whether to decode it as an index
// leaf and continue into the DataFiles its records point at (modeIndex) or
// to treat it as an opaque terminal (modeData) — the same distinction
// collectFlushOrder's walk makes, here over permanent nodes read through
// source/cache instead of a transaction's dirty heap.
func markReachable(source NodeSource, nodeCache *cache.NodeCache, id types.NodeID, mode treeMode, reachable map[types.NodeID]bool) error {
	if id.IsNil() || reachable[id] {
		return nil
	}
	reachable[id] = true

	n, err := nodeCache.GetOrDecode(id, func() (types.Node, int64, error) {
		n, err := source.ReadNode(id)
		if err != nil {
			return nil, 0, err
		}
		return n, DecodedSize(n), nil
	})
	if err != nil {
		return err
	}

	switch v := n.(type) {
	case *types.BranchNode:
		for _, e := range v.Entries {
			if err := markReachable(source, nodeCache, e.ChildID, mode, reachable); err != nil {
				return err
			}
		}
	case *types.LeafNode:
		if mode != modeIndex {
			return nil
		}
		records, err := decodeIndexLeaf(v)
		if err != nil {
			return err
		}
		for _, r := range records {
			if err := markReachable(source, nodeCache, r.Target, modeData, reachable); err != nil {
				return err
			}
		}
	}
	return nil
}
