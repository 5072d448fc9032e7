package session

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mckoi/mckoiddb/pkg/block"
	"github.com/mckoi/mckoiddb/pkg/config"
	"github.com/mckoi/mckoiddb/pkg/manager"
	"github.com/mckoi/mckoiddb/pkg/root"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// testSecret is the shared network_password every server/client pair in
// this package's tests authenticates frames with (spec.md §6.2).
var testSecret = []byte("test-secret")

// freeAddr grabs an ephemeral TCP port on loopback and releases it
// immediately, the same idiom pkg/manager's tests use.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// serve starts serveFn (a *Server.Serve method) against a fresh listener
// bound to addr and arranges for it to close on test cleanup, the shape
// every Server.Serve implementation in this tree shares.
func serve(t *testing.T, addr string, serveFn func(net.Listener) error) {
	t.Helper()
	ln := serveStoppable(t, addr, serveFn)
	t.Cleanup(func() { _ = ln.Close() })
}

// serveStoppable is serve without the automatic cleanup registration, so a
// test can close the listener early to simulate a replica going down
// mid-test (acceptance scenario S5's replica-failover-on-read).
func serveStoppable(t *testing.T, addr string, serveFn func(net.Listener) error) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	go func() { _ = serveFn(ln) }()
	return ln
}

// waitDialable blocks until addr accepts a TCP connection or t fails.
func waitDialable(t *testing.T, addr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, time.Second, 5*time.Millisecond, "server at "+addr+" never came up")
}

// cluster is one single-node manager + N block servers + single root
// server wired together over real TCP loopback connections, enough to
// exercise pkg/session's RPC clients end to end without a fake.
type cluster struct {
	managerAddr string
	blockAddr   string // first block server's address, kept for single-replica tests
	blockAddrs  []string
	blockLns    []net.Listener
	rootAddr    string
	mgr         *manager.Manager
}

func newTestCluster(t *testing.T) *cluster {
	return newTestClusterWithBlockServers(t, 1)
}

func newTestClusterWithBlockServers(t *testing.T, n int) *cluster {
	t.Helper()

	mgr, err := manager.NewManager(manager.Config{
		NodeID:         "node1",
		BindAddr:       freeAddr(t),
		DataDir:        t.TempDir(),
		HeartbeatGrace: 200 * time.Millisecond,
		OfflineGrace:   400 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, mgr.Bootstrap())
	require.Eventually(t, mgr.IsLeader, 2*time.Second, 10*time.Millisecond, "manager never became leader")
	t.Cleanup(func() { _ = mgr.Shutdown() })

	managerWireAddr := freeAddr(t)
	serve(t, managerWireAddr, manager.NewServer(mgr, testSecret).Serve)
	waitDialable(t, managerWireAddr)

	blockAddrs := make([]string, n)
	blockLns := make([]net.Listener, n)
	for i := 0; i < n; i++ {
		store, err := block.Open(t.TempDir(), 1)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		addr := freeAddr(t)
		blockLns[i] = serveStoppable(t, addr, block.NewServer(store, testSecret).Serve)
		t.Cleanup(func() { _ = blockLns[i].Close() })
		waitDialable(t, addr)
		blockAddrs[i] = addr
	}

	engine := root.NewEngine(root.Config{DataDir: t.TempDir()})
	rootAddr := freeAddr(t)
	serve(t, rootAddr, root.NewServer(engine, testSecret).Serve)
	waitDialable(t, rootAddr)

	for i, addr := range blockAddrs {
		require.NoError(t, mgr.RegisterBlockServer(fmt.Sprintf("block%d", i), addr))
	}
	require.Eventually(t, func() bool {
		return len(mgr.ListLiveBlockServerAddrs()) == n
	}, time.Second, 5*time.Millisecond, "block servers never marked live")

	return &cluster{
		managerAddr: managerWireAddr,
		blockAddr:   blockAddrs[0],
		blockAddrs:  blockAddrs,
		blockLns:    blockLns,
		rootAddr:    rootAddr,
		mgr:         mgr,
	}
}

// sessionConfig builds a Config pointed at this cluster, serving path off
// its one root server.
func (c *cluster) sessionConfig(path types.PathName) Config {
	return Config{
		ClientConfig: config.ClientConfig{
			ManagerAddresses: []string{c.managerAddr},
			NetworkPassword:  string(testSecret),
		},
		RootAddresses: map[types.PathName]string{path: c.rootAddr},
	}
}
