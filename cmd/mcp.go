package cmd

import (
	"github.com/spf13/cobra"

	"github.com/promptsense/promptsense/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This allows Claude Code to query promptsense natively for datasets,
runs, and sensitivity metrics. Configure in Claude Code with:

  {
    "mcpServers": {
      "promptsense": { "command": "promptsense", "args": ["mcp"] }
    }
  }

Available tools: ps_list_datasets, ps_dataset_stats, ps_list_runs,
ps_run_metrics, ps_run_results, ps_render_prompt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		defer s.Close()

		cat, err := loadCatalog()
		if err != nil {
			return err
		}

		srv := mcp.NewServer(s, cat)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
