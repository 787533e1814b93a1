package main

import (
	"fmt"

	"github.com/alexjbarnes/marksync/internal/auth"
	"github.com/spf13/cobra"
)

func newGenKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key <user>",
		Short: "Generate an API key for the MCP control server",
		Long: `Generate a random API key and print the MCP_API_KEYS entry for it.
Entries of several users are joined with commas.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s:%s\n", args[0], auth.GenerateAPIKey())
			return nil
		},
	}
}
