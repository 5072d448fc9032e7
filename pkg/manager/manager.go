package manager

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"

	"github.com/mckoi/mckoiddb/pkg/log"
	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/metrics"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// Config configures a Manager (spec.md §6.1's manager_raft_bind /
// manager_raft_bootstrap config keys).
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// HeartbeatGrace and OfflineGrace are the liveness thresholds of
	// spec.md §4.2: unheard from past HeartbeatGrace -> suspect; past
	// OfflineGrace -> offline.
	HeartbeatGrace time.Duration
	OfflineGrace   time.Duration
}

// Manager is one manager server of spec.md §4.2: directory, allocator, and
// membership tracker, replicated via raft. Grounded on the teacher's
// Manager struct — same raft lifecycle (Bootstrap/Join/AddVoter/
// RemoveServer/IsLeader/Shutdown) — stripped of the container-orchestration
// concerns (CA, DNS, ingress, ACME, join tokens) that have no place in
// this spec, since the wire protocol's single shared secret (spec.md
// §6.2) already covers what those existed to provide.
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string
	cfg      Config

	raft *raft.Raft
	fsm  *DirectoryFSM

	monitorStop chan struct{}
}

// NewManager creates a Manager; call Bootstrap or Join to start raft.
func NewManager(cfg Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindFileSystem, "create manager data dir", err)
	}
	if cfg.HeartbeatGrace == 0 {
		cfg.HeartbeatGrace = 10 * time.Second
	}
	if cfg.OfflineGrace == 0 {
		cfg.OfflineGrace = 30 * time.Second
	}
	return &Manager{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		cfg:      cfg,
		fsm:      NewDirectoryFSM(),
	}, nil
}

func (m *Manager) raftConfig() *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)
	// Tuned for LAN deployment failover well under spec.md's multi-second
	// budgets, same values the teacher's Bootstrap/Join use.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond
	return config
}

func (m *Manager) newRaft() (*raft.Raft, error) {
	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindConfig, "resolve manager_raft_bind", err)
	}
	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindNetwork, "create raft transport", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindFileSystem, "create raft snapshot store", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindFileSystem, "create raft log store", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindFileSystem, "create raft stable store", err)
	}
	r, err := raft.NewRaft(m.raftConfig(), m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindInternal, "create raft node", err)
	}
	return r, nil
}

// Bootstrap starts a brand-new single-manager raft cluster (spec.md §6.1's
// manager_raft_bootstrap = true).
func (m *Manager) Bootstrap() error {
	r, err := m.newRaft()
	if err != nil {
		return err
	}
	m.raft = r

	cfg := raft.Configuration{
		Servers: []raft.Server{{ID: raft.ServerID(m.nodeID), Address: raft.ServerAddress(m.bindAddr)}},
	}
	if err := m.raft.BootstrapCluster(cfg).Error(); err != nil {
		return mckoierr.Wrap(mckoierr.KindInternal, "bootstrap raft cluster", err)
	}
	m.startLivenessMonitor()
	return nil
}

// Join starts raft for a manager that will be added to an existing
// cluster via AddVoter on the current leader.
func (m *Manager) Join() error {
	r, err := m.newRaft()
	if err != nil {
		return err
	}
	m.raft = r
	m.startLivenessMonitor()
	return nil
}

// AddVoter adds a manager to the raft configuration. Must be called on the
// leader.
func (m *Manager) AddVoter(nodeID, address string) error {
	if !m.IsLeader() {
		return mckoierr.New(mckoierr.KindInternal, fmt.Sprintf("not the leader, current leader: %s", m.LeaderAddr()))
	}
	return m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second).Error()
}

// RemoveServer removes a manager from the raft configuration.
func (m *Manager) RemoveServer(nodeID string) error {
	if !m.IsLeader() {
		return mckoierr.New(mckoierr.KindInternal, "not the leader")
	}
	return m.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second).Error()
}

// IsLeader reports whether this manager currently holds raft leadership.
func (m *Manager) IsLeader() bool {
	return m.raft != nil && m.raft.State() == raft.Leader
}

// LeaderAddr returns the current raft leader's address, if known.
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	return string(m.raft.Leader())
}

func (m *Manager) apply(op string, args interface{}) (interface{}, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindInternal, "marshal command args", err)
	}
	body, err := json.Marshal(Command{Op: op, Data: data})
	if err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindInternal, "marshal command", err)
	}
	future := m.raft.Apply(body, 5*time.Second)
	if err := future.Error(); err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindInternal, "raft apply", err)
	}
	if respErr, ok := future.Response().(error); ok && respErr != nil {
		return nil, mckoierr.Wrap(mckoierr.KindInternal, "fsm apply", respErr)
	}
	return future.Response(), nil
}

// AllocateIDs returns count fresh permanent node ids (spec.md §4.2
// "allocate_ids"). The allocator bounds are persisted via raft's log
// before this returns, guaranteeing no two clients ever see the same id
// even across manager failover.
func (m *Manager) AllocateIDs(count int) ([]types.NodeID, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ManagerAllocateDuration)

	resp, err := m.apply(opAllocateIDs, AllocateIDsArgs{Count: count})
	if err != nil {
		return nil, err
	}
	result, ok := resp.(AllocateIDsResult)
	if !ok {
		return nil, mckoierr.New(mckoierr.KindInternal, "unexpected allocate_ids response type")
	}
	ids := make([]types.NodeID, count)
	for i := 0; i < count; i++ {
		ids[i] = types.PermanentNodeID(result.Start + uint64(i))
	}
	return ids, nil
}

// Resolve reads the current replica set for id, straight from local state
// (spec.md §4.2: "reads may be served by any manager"). found is false if
// the id has never been assigned on this manager's view of the directory.
func (m *Manager) Resolve(id types.NodeID) (replicas []string, version uint64, found bool) {
	m.fsm.mu.RLock()
	defer m.fsm.mu.RUnlock()
	entry, ok := m.fsm.nodes[id]
	if !ok {
		return nil, 0, false
	}
	out := make([]string, len(entry.ReplicaSet))
	copy(out, entry.ReplicaSet)
	return out, entry.Version, true
}

// Assign records that blockServerAddr holds a replica of id (spec.md §4.2
// "assign"); records are append-only within a version.
func (m *Manager) Assign(id types.NodeID, blockServerAddr string) error {
	_, err := m.apply(opAssign, AssignArgs{NodeID: id.Bytes(), BlockServerAddr: blockServerAddr})
	return err
}

// RegisterBlockServer admits a new block server to the directory under a
// fresh, caller-supplied id (spec.md's expanded §4.2.5 calls for a
// uuid-based registration id so a restarted block server never collides
// with a stale directory entry for its old process).
func (m *Manager) RegisterBlockServer(id, address string) error {
	_, err := m.apply(opRegisterBlockServer, RegisterBlockServerArgs{ID: id, Address: address})
	return err
}

// Heartbeat marks blockServerID alive as of now (spec.md §4.2
// "heartbeat").
func (m *Manager) Heartbeat(blockServerID string) error {
	_, err := m.apply(opHeartbeat, HeartbeatArgs{ID: blockServerID, Status: StatusAlive})
	return err
}

// ListBlockServers returns every registered block server id, sorted.
func (m *Manager) ListBlockServers() []string {
	return m.fsm.listBlockServers()
}

// ListLiveBlockServerAddrs returns the addresses of every block server
// currently marked alive, sorted; a session consults this to pick
// replicas for a fresh write (spec.md §4.4.4).
func (m *Manager) ListLiveBlockServerAddrs() []string {
	return m.fsm.listLiveBlockServerAddrs()
}

// Release drops one reference from each of ids (spec.md §4.4.6's GC sweep
// telling the directory a node is no longer reachable from any retained
// root). It returns the subset whose reference count reached zero, i.e.
// the ids now gone from the directory and eligible for physical reclaim
// at their block servers.
func (m *Manager) Release(ids []types.NodeID) ([]types.NodeID, error) {
	args := ReleaseArgs{NodeIDs: make([][16]byte, len(ids))}
	for i, id := range ids {
		args.NodeIDs[i] = id.Bytes()
	}
	resp, err := m.apply(opRelease, args)
	if err != nil {
		return nil, err
	}
	result, ok := resp.(ReleaseResult)
	if !ok {
		return nil, mckoierr.New(mckoierr.KindInternal, "unexpected release response type")
	}
	reclaimed := make([]types.NodeID, 0, len(result.Reclaimed))
	for _, b := range result.Reclaimed {
		id, err := types.NodeIDFromBytes(b[:])
		if err != nil {
			continue
		}
		reclaimed = append(reclaimed, id)
	}
	return reclaimed, nil
}

// ListAssignedIDs returns every node id currently present in the
// directory, straight from local state like Resolve.
func (m *Manager) ListAssignedIDs() []types.NodeID {
	return m.fsm.listAssignedIDs()
}

// startLivenessMonitor runs the background suspicion-timer sweep of
// spec.md §4.2.5: a block server unheard from past HeartbeatGrace is
// marked suspect, and past OfflineGrace, offline. Only the leader drives
// this so the resulting mark_status commands are proposed from a single
// place; followers skip the sweep (their raft.Apply would simply be
// rejected as non-leader).
func (m *Manager) startLivenessMonitor() {
	m.monitorStop = make(chan struct{})
	logger := log.WithComponent("manager")
	go func() {
		ticker := time.NewTicker(m.cfg.HeartbeatGrace / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !m.IsLeader() {
					continue
				}
				m.sweepLiveness(logger)
			case <-m.monitorStop:
				return
			}
		}
	}()
}

func (m *Manager) sweepLiveness(logger zerolog.Logger) {
	m.fsm.mu.RLock()
	now := time.Now()
	type transition struct{ id, status string }
	var transitions []transition
	for id, entry := range m.fsm.blockServers {
		age := now.Sub(entry.LastSeen)
		switch {
		case age > m.cfg.OfflineGrace && entry.Status != StatusOffline:
			transitions = append(transitions, transition{id, StatusOffline})
		case age > m.cfg.HeartbeatGrace && entry.Status == StatusAlive:
			transitions = append(transitions, transition{id, StatusSuspect})
		}
	}
	m.fsm.mu.RUnlock()

	for _, t := range transitions {
		if _, err := m.apply(opMarkStatus, HeartbeatArgs{ID: t.id, Status: t.status}); err != nil {
			logger.Warn().Err(err).Str("block_server_id", t.id).Msg("failed to mark block server status")
			continue
		}
		logger.Warn().Str("block_server_id", t.id).Str("status", t.status).Msg("block server liveness changed")
	}
	m.refreshMetrics()
}

func (m *Manager) refreshMetrics() {
	m.fsm.mu.RLock()
	defer m.fsm.mu.RUnlock()
	metrics.ManagerNodesTotal.Set(float64(len(m.fsm.nodes)))
	counts := map[string]int{StatusAlive: 0, StatusSuspect: 0, StatusOffline: 0}
	for _, entry := range m.fsm.blockServers {
		counts[entry.Status]++
	}
	for status, n := range counts {
		metrics.ManagerBlockServersByStatus.WithLabelValues(status).Set(float64(n))
	}
	if m.IsLeader() {
		metrics.ManagerRaftIsLeader.Set(1)
	} else {
		metrics.ManagerRaftIsLeader.Set(0)
	}
}

// Shutdown stops the liveness monitor and raft.
func (m *Manager) Shutdown() error {
	if m.monitorStop != nil {
		close(m.monitorStop)
	}
	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			return mckoierr.Wrap(mckoierr.KindInternal, "shutdown raft", err)
		}
	}
	return nil
}
