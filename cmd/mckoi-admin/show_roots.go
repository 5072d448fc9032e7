package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/session"
	"github.com/mckoi/mckoiddb/pkg/types"
)

var showRootsCmd = &cobra.Command{
	Use:   "show-roots",
	Short: "Show a path's current root and retained commit history",
	RunE:  runShowRoots,
}

func init() {
	showRootsCmd.Flags().String("root-addr", "127.0.0.1:8300", "Root server address")
	showRootsCmd.Flags().String("path", "", "Path name (required)")
	showRootsCmd.Flags().String("network-password", "", "Shared network_password (required)")
	_ = showRootsCmd.MarkFlagRequired("path")
	_ = showRootsCmd.MarkFlagRequired("network-password")
}

// rootsReport is the yaml/text rendering shape for show-roots.
type rootsReport struct {
	Path    string                 `yaml:"path"`
	Current string                 `yaml:"current_root"`
	History []session.HistoryEntry `yaml:"history"`
}

func runShowRoots(cmd *cobra.Command, args []string) error {
	rootAddr, _ := cmd.Flags().GetString("root-addr")
	path, _ := cmd.Flags().GetString("path")
	networkPassword, _ := cmd.Flags().GetString("network-password")

	if networkPassword == "" {
		return mckoierr.New(mckoierr.KindConfig, "show-roots: --network-password is required")
	}

	admin := session.NewRootAdmin(rootAddr, networkPassword, 0)
	pathName := types.PathName(path)

	current, err := admin.Current(pathName)
	if err != nil {
		return mckoierr.Wrap(mckoierr.KindNetwork, "fetch current root for "+path, err)
	}
	history, err := admin.History(pathName)
	if err != nil {
		return mckoierr.Wrap(mckoierr.KindNetwork, "fetch history for "+path, err)
	}

	report := rootsReport{Path: path, Current: current.String(), History: history}
	return renderOutput(report, func() {
		fmt.Printf("path:          %s\n", path)
		fmt.Printf("current_root:  %s\n", current)
		fmt.Println("history (oldest first):")
		fmt.Printf("  %-8s %s\n", "commit", "root")
		for _, h := range history {
			fmt.Printf("  %-8d %s\n", h.CommitID, h.Root)
		}
	})
}
