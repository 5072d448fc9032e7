package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mckoi/mckoiddb/pkg/log"
	"github.com/mckoi/mckoiddb/pkg/manager"
	"github.com/mckoi/mckoiddb/pkg/mckoierr"
)

var startManagerCmd = &cobra.Command{
	Use:   "start-manager",
	Short: "Start a manager server (directory, id allocator, membership tracker)",
	Long: `Start a MckoiDDB manager server: the replicated (raft-backed) directory
mapping node ids to their replica sets, the id allocator, and the block
server membership tracker (spec.md §4.2).`,
	RunE: runStartManager,
}

func init() {
	startManagerCmd.Flags().String("node-id", "manager-1", "Unique raft server id")
	startManagerCmd.Flags().String("raft-addr", "127.0.0.1:9000", "Raft transport bind address")
	startManagerCmd.Flags().String("listen", "127.0.0.1:8100", "Wire protocol listen address (MS_* opcodes)")
	startManagerCmd.Flags().String("data-dir", "./mckoi-manager-data", "Raft log/snapshot directory")
	startManagerCmd.Flags().String("network-password", "", "Shared network_password (required)")
	startManagerCmd.Flags().Bool("join", false, "Join an existing raft cluster instead of bootstrapping a new one (requires AddVoter on the leader out of band)")
	startManagerCmd.Flags().Duration("heartbeat-grace", 10*time.Second, "Time since last heartbeat before a block server is marked suspect")
	startManagerCmd.Flags().Duration("offline-grace", 30*time.Second, "Time since last heartbeat before a block server is marked offline")
	_ = startManagerCmd.MarkFlagRequired("network-password")
}

func runStartManager(cmd *cobra.Command, args []string) error {
	nodeID, _ := cmd.Flags().GetString("node-id")
	raftAddr, _ := cmd.Flags().GetString("raft-addr")
	listen, _ := cmd.Flags().GetString("listen")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	networkPassword, _ := cmd.Flags().GetString("network-password")
	join, _ := cmd.Flags().GetBool("join")
	heartbeatGrace, _ := cmd.Flags().GetDuration("heartbeat-grace")
	offlineGrace, _ := cmd.Flags().GetDuration("offline-grace")

	if networkPassword == "" {
		return mckoierr.New(mckoierr.KindConfig, "start-manager: --network-password is required")
	}

	logger := log.WithComponent("manager")

	mgr, err := manager.NewManager(manager.Config{
		NodeID:         nodeID,
		BindAddr:       raftAddr,
		DataDir:        dataDir,
		HeartbeatGrace: heartbeatGrace,
		OfflineGrace:   offlineGrace,
	})
	if err != nil {
		return mckoierr.Wrap(mckoierr.KindInternal, "create manager", err)
	}

	if join {
		if err := mgr.Join(); err != nil {
			return mckoierr.Wrap(mckoierr.KindNetwork, "join raft cluster", err)
		}
		logger.Info().Str("raft_addr", raftAddr).Msg("manager started, awaiting AddVoter from leader")
	} else {
		if err := mgr.Bootstrap(); err != nil {
			return mckoierr.Wrap(mckoierr.KindInternal, "bootstrap raft cluster", err)
		}
		logger.Info().Str("raft_addr", raftAddr).Msg("raft cluster bootstrapped")
	}

	srv := manager.NewServer(mgr, []byte(networkPassword))
	ln, err := listenTCP(listen)
	if err != nil {
		return mckoierr.Wrap(mckoierr.KindNetwork, "listen "+listen, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil {
			errCh <- err
		}
	}()
	fmt.Printf("manager %s listening on %s (raft %s)\n", nodeID, listen, raftAddr)
	logger.Info().Str("listen", listen).Msg("manager server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		fmt.Println("shutting down...")
	case err := <-errCh:
		logger.Error().Err(err).Msg("manager server error")
	}

	_ = ln.Close()
	return mgr.Shutdown()
}
