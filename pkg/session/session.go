package session

import (
	"time"

	"github.com/mckoi/mckoiddb/pkg/cache"
	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/tree"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// Session is one client's handle onto the cluster: a shared node cache
// (spec.md §4.5's "one cache per connected client, not per transaction")
// plus the manager/block/root RPC clients every Tx it opens will use.
type Session struct {
	cfg   Config
	cache *cache.NodeCache
	mgr   *managerClient
	block *blockClient
	roots map[types.PathName]*rootClient
}

// Open builds a Session from cfg, applying its defaults. It does not dial
// anything eagerly: the manager/block/root clients connect lazily, once
// per RPC, per this package's doc.go note.
func Open(cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	if len(cfg.ManagerAddresses) == 0 {
		return nil, mckoierr.New(mckoierr.KindConfig, "session: no manager addresses configured")
	}
	secret := []byte(cfg.NetworkPassword)

	roots := make(map[types.PathName]*rootClient, len(cfg.RootAddresses))
	for path, addr := range cfg.RootAddresses {
		roots[path] = &rootClient{addr: addr, secret: secret, timeout: cfg.DirectoryTimeout}
	}

	return &Session{
		cfg:   cfg,
		cache: cache.NewNodeCache(cfg.GlobalCacheSize),
		mgr:   &managerClient{addrs: cfg.ManagerAddresses, secret: secret, timeout: cfg.DirectoryTimeout},
		block: &blockClient{secret: secret, readTimeout: cfg.BlockReadTimeout, writeTimeout: cfg.BlockWriteTimeout},
		roots: roots,
	}, nil
}

func (s *Session) rootFor(path types.PathName) (*rootClient, error) {
	rc, ok := s.roots[path]
	if !ok {
		return nil, mckoierr.New(mckoierr.KindConfig, "session: no root server address configured for path "+string(path))
	}
	return rc, nil
}

func (s *Session) source() *clusterSource {
	return &clusterSource{mgr: s.mgr, block: s.block, roots: s.roots, replicationFactor: s.cfg.ReplicationFactor}
}

// Begin opens a new transaction against path's current root, per spec.md
// §4.3.1: base_root is read once at open and held fixed for the life of
// the transaction (snapshot isolation).
func (s *Session) Begin(path types.PathName) (*Tx, error) {
	rc, err := s.rootFor(path)
	if err != nil {
		return nil, err
	}
	baseRoot, err := rc.Begin(path)
	if err != nil {
		return nil, err
	}
	txn := tree.New(path, baseRoot, s.source(), s.cache)
	return &Tx{session: s, path: path, rootSrv: rc, txn: txn, indexRoot: baseRoot}, nil
}

// NewGCSweeper builds a tree.GCSweeper for path, wired to this session's
// cluster-backed NodeSource/RootSource (spec.md §4.4.6).
func (s *Session) NewGCSweeper(path types.PathName, interval time.Duration) *tree.GCSweeper {
	return tree.NewGCSweeper(tree.GCConfig{
		Path:     path,
		Source:   s.source(),
		Roots:    s.source(),
		Cache:    s.cache,
		Interval: interval,
	})
}

// Close releases Session-held resources. The RPC clients dial per call, so
// there is nothing to tear down beyond the shared cache.
func (s *Session) Close() {
	s.cache = nil
}
