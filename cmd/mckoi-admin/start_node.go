package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mckoi/mckoiddb/pkg/block"
	"github.com/mckoi/mckoiddb/pkg/log"
	"github.com/mckoi/mckoiddb/pkg/mckoierr"
)

var startNodeCmd = &cobra.Command{
	Use:   "start-node",
	Short: "Start a block server (content-addressed node storage)",
	Long: `Start a MckoiDDB block server: the content-addressed store holding the
immutable tree nodes a path's data actually lives in (spec.md §4.1).`,
	RunE: runStartNode,
}

func init() {
	startNodeCmd.Flags().String("listen", "127.0.0.1:8200", "Wire protocol listen address (BS_* opcodes)")
	startNodeCmd.Flags().String("data-dir", "./mckoi-block-data", "Block storage directory")
	startNodeCmd.Flags().Int("buckets", 256, "Number of storage buckets (sharding factor for the node store)")
	startNodeCmd.Flags().String("network-password", "", "Shared network_password (required)")
	_ = startNodeCmd.MarkFlagRequired("network-password")
}

func runStartNode(cmd *cobra.Command, args []string) error {
	listen, _ := cmd.Flags().GetString("listen")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	buckets, _ := cmd.Flags().GetInt("buckets")
	networkPassword, _ := cmd.Flags().GetString("network-password")

	if networkPassword == "" {
		return mckoierr.New(mckoierr.KindConfig, "start-node: --network-password is required")
	}

	logger := log.WithComponent("block")

	store, err := block.Open(dataDir, buckets)
	if err != nil {
		return mckoierr.Wrap(mckoierr.KindFileSystem, "open block store at "+dataDir, err)
	}
	defer store.Close()

	srv := block.NewServer(store, []byte(networkPassword))
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
	fmt.Printf("block server listening on %s (data dir %s)\n", listen, dataDir)
	logger.Info().Str("listen", listen).Str("data_dir", dataDir).Msg("block server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		fmt.Println("shutting down...")
	case err := <-errCh:
		logger.Error().Err(err).Msg("block server error")
	}

	return ln.Close()
}
