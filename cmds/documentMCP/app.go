package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	mcpserver "research-agent/mcp-server"
	_ "research-agent/shared"
)

var root string

var rootCmd = &cobra.Command{
	Use:          "documentMCP",
	Short:        "Serve a directory of user documents over MCP stdio",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mcpserver.NewDocumentServer(root)
		if err != nil {
			return err
		}
		return s.Run()
	},
}

func main() {
	rootCmd.Flags().StringVar(&root, "root", ".", "directory holding the user's documents")
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Run server failed")
		os.Exit(1)
	}
}
