package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// renderOutput writes v in the format named by the global --output flag:
// "yaml" marshals v directly (the machine-readable form spec.md §6.4's
// expansion calls for); anything else falls back to textFn, the command's
// own human-readable rendering.
func renderOutput(v interface{}, textFn func()) error {
	format, _ := rootCmd.PersistentFlags().GetString("output")
	switch format {
	case "yaml":
		out, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, string(out))
		return nil
	default:
		textFn()
		return nil
	}
}
