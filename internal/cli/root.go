package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "presage",
	Short: "Predict a person's next actions and decide how to act on them",
	Long:  "Presage learns per-person action patterns and routines from an event stream, then suggests, asks, or auto-executes matured predictions. Single Go binary, local SQLite storage.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
}
