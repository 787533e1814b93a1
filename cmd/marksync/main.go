package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "marksync",
		Short: "Synchronize bookmark trees with WebDAV and file servers",
		Long: `marksync keeps a local bookmarks file in sync with one or more servers.
Accounts are listed in the accounts file, the rest of the configuration
comes from the environment or a .env file.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCmd(),
		newSyncCmd(),
		newStatusCmd(),
		newDiffCmd(),
		newExportCmd(),
		newImportCmd(),
		newGenKeyCmd(),
	)

	return root
}
