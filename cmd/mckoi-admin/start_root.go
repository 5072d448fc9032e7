package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mckoi/mckoiddb/pkg/log"
	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/root"
	"github.com/mckoi/mckoiddb/pkg/types"
)

var startRootCmd = &cobra.Command{
	Use:   "start-root",
	Short: "Start a root server (commit history and single-writer critical section for one or more paths)",
	Long: `Start a MckoiDDB root server: the single-writer commit critical section
and retained history ring for the paths it owns (spec.md §4.3). A root
server process may own several paths; --path pre-opens the named paths
at startup and is otherwise informational, since Engine opens any path
lazily on first request.`,
	RunE: runStartRoot,
}

func init() {
	startRootCmd.Flags().String("listen", "127.0.0.1:8300", "Wire protocol listen address (RS_* opcodes)")
	startRootCmd.Flags().String("data-dir", "./mckoi-root-data", "Root server persistence directory")
	startRootCmd.Flags().StringArray("path", nil, "Path this server owns (repeatable); pre-opened at startup")
	startRootCmd.Flags().Int("history-depth", 64, "Number of retained commits per path")
	startRootCmd.Flags().String("network-password", "", "Shared network_password (required)")
	_ = startRootCmd.MarkFlagRequired("network-password")
}

func runStartRoot(cmd *cobra.Command, args []string) error {
	listen, _ := cmd.Flags().GetString("listen")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	paths, _ := cmd.Flags().GetStringArray("path")
	historyDepth, _ := cmd.Flags().GetInt("history-depth")
	networkPassword, _ := cmd.Flags().GetString("network-password")

	if networkPassword == "" {
		return mckoierr.New(mckoierr.KindConfig, "start-root: --network-password is required")
	}

	logger := log.WithComponent("root")

	engine := root.NewEngine(root.Config{
		DataDir:      dataDir,
		HistoryDepth: historyDepth,
	})

	for _, p := range paths {
		if _, err := engine.Current(types.PathName(p)); err != nil {
			return mckoierr.Wrap(mckoierr.KindFileSystem, "open path "+p, err)
		}
		logger.Info().Str("path", p).Msg("path opened")
	}

	srv := root.NewServer(engine, []byte(networkPassword))
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
	fmt.Printf("root server listening on %s (data dir %s, %d path(s))\n", listen, dataDir, len(paths))
	logger.Info().Str("listen", listen).Msg("root server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		fmt.Println("shutting down...")
	case err := <-errCh:
		logger.Error().Err(err).Msg("root server error")
	}

	return ln.Close()
}
