package cmd

import (
	"context"
	"fmt"
	"mcpchat/chat"
	"mcpchat/health"
	"mcpchat/model"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health [provider...]",
	Short: "Check provider connectivity",
	Long: `Runs one health check per provider and prints the result.

Without arguments every registered provider is checked. Exits non-zero when
a configured provider is unhealthy.`,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reg := newRegistry()
	monitor := health.NewMonitor(reg, health.WithTimeout(cfg.HealthTimeout()))
	svc := chat.NewService(reg, monitor)
	defer svc.Close()
	for id, err := range svc.ApplyConfig(cfg) {
		fmt.Fprintf(ioErr, "Warning: provider %s not available: %v\n", id, err)
	}

	ctx := context.Background()
	var statuses []model.ProviderStatus
	if len(args) == 0 {
		statuses = monitor.CheckAll(ctx)
	}
	for _, id := range args {
		statuses = append(statuses, monitor.Check(ctx, id))
	}

	tw := tabwriter.NewWriter(ioOut, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tSTATUS\tMODELS\tERROR")
	var unhealthy []string
	for _, s := range statuses {
		state := "unconfigured"
		switch {
		case s.Healthy:
			state = "healthy"
		case s.Configured:
			state = "unhealthy"
			unhealthy = append(unhealthy, s.ProviderID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ProviderID, state, modelSummary(s.AvailableModels), s.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(unhealthy) > 0 {
		return fmt.Errorf("unhealthy providers: %s", strings.Join(unhealthy, ", "))
	}
	return nil
}

func modelSummary(models []string) string {
	switch {
	case len(models) == 0:
		return "-"
	case len(models) <= 3:
		return strings.Join(models, ", ")
	default:
		return fmt.Sprintf("%s, ... (%d)", strings.Join(models[:3], ", "), len(models))
	}
}
