package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mckoi/mckoiddb/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "mckoi-admin",
	Short: "Administrative CLI for MckoiDDB block, manager, and root server daemons",
	Long: `mckoi-admin starts and administers the daemons of a MckoiDDB cluster:
block servers (content-addressed node storage), manager servers (the
replicated directory and id allocator), and root servers (one per path,
owning that path's commit history).`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringP("output", "o", "text", "Output format for read commands: text|yaml")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startNodeCmd)
	rootCmd.AddCommand(startManagerCmd)
	rootCmd.AddCommand(startRootCmd)
	rootCmd.AddCommand(showRootsCmd)
	rootCmd.AddCommand(rollbackCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
