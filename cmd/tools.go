package cmd

import (
	"context"
	"fmt"
	"mcpchat/mcp"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var toolsStart bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Show configured MCP tool servers",
	Long: `Lists the configured tool servers and whether their commands are
installed. With --start each server is launched once and its tools listed.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsStart, "start", false, "start each server and list its tools")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.ToolServers) == 0 {
		printf("No tool servers configured.\n")
		return nil
	}

	ctx := context.Background()
	tw := tabwriter.NewWriter(ioOut, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCOMMAND\tRUNTIME")
	for _, s := range cfg.ToolServers {
		rt := mcp.DetectRuntime(ctx, s.Command)
		state := rt.Error
		if rt.Installed && rt.Version != "" {
			state = rt.Version
		} else if rt.Installed && state == "" {
			state = "installed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Command, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !toolsStart {
		return nil
	}

	m := mcp.NewManager()
	defer m.Shutdown(ctx)
	if err := m.Start(ctx, cfg.ToolServers); err != nil {
		fmt.Fprintf(ioErr, "Warning: some tool servers failed to start:\n%v\n", err)
	}
	printf("\n")
	for _, t := range m.Tools() {
		printf("%s\t%s\n", t.Name, t.Description)
	}
	return nil
}
