package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/session"
	"github.com/mckoi/mckoiddb/pkg/types"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll a path's current root back to a previously retained commit",
	Long: `Roll back sets a path's current_root back to the root recorded under a
retained commit id (spec.md §4.3.5). The target commit must still be
within the root server's retained history ring; if it has aged out,
rollback fails rather than silently picking the oldest surviving root.`,
	RunE: runRollback,
}

var errRollbackTargetNotRetained = mckoierr.New(mckoierr.KindNotFound, "rollback target commit id is no longer retained")

func init() {
	rollbackCmd.Flags().String("root-addr", "127.0.0.1:8300", "Root server address")
	rollbackCmd.Flags().String("path", "", "Path name (required)")
	rollbackCmd.Flags().Uint64("to", 0, "Commit id to roll back to (required)")
	rollbackCmd.Flags().String("network-password", "", "Shared network_password (required)")
	_ = rollbackCmd.MarkFlagRequired("path")
	_ = rollbackCmd.MarkFlagRequired("to")
	_ = rollbackCmd.MarkFlagRequired("network-password")
}

type rollbackReport struct {
	Path     string `yaml:"path"`
	CommitID uint64 `yaml:"commit_id"`
	NewRoot  string `yaml:"new_root"`
}

func runRollback(cmd *cobra.Command, args []string) error {
	rootAddr, _ := cmd.Flags().GetString("root-addr")
	path, _ := cmd.Flags().GetString("path")
	commitID, _ := cmd.Flags().GetUint64("to")
	networkPassword, _ := cmd.Flags().GetString("network-password")

	if networkPassword == "" {
		return mckoierr.New(mckoierr.KindConfig, "rollback: --network-password is required")
	}

	admin := session.NewRootAdmin(rootAddr, networkPassword, 0)

	newRoot, found, err := admin.Rollback(types.PathName(path), commitID)
	if err != nil {
		return mckoierr.Wrap(mckoierr.KindNetwork, "rollback "+path, err)
	}
	if !found {
		return errRollbackTargetNotRetained
	}

	report := rollbackReport{Path: path, CommitID: commitID, NewRoot: newRoot.String()}
	return renderOutput(report, func() {
		fmt.Printf("rolled back %s to commit %d\n", path, commitID)
		fmt.Printf("new current_root: %s\n", newRoot)
	})
}
