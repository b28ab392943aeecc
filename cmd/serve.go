package cmd

import (
	"context"
	"errors"
	"fmt"
	"mcpchat/api"
	"mcpchat/chat"
	"mcpchat/config"
	"mcpchat/health"
	"mcpchat/mcp"
	"mcpchat/storage"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	statusRetention = 7 * 24 * time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if config.CheckDebug() {
		config.InitDebugWriter(os.Stderr)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statusLog, err := storage.NewStatusLog(cfg.DataDir())
	if err != nil {
		fmt.Fprintf(ioErr, "Warning: status history disabled: %v\n", err)
	}

	reg := newRegistry()
	monitorOpts := []health.Option{
		health.WithTimeout(cfg.HealthTimeout()),
		health.WithInterval(cfg.HealthInterval()),
	}
	deps := api.Deps{}
	if statusLog != nil {
		defer statusLog.Close()
		if n, err := statusLog.Prune(ctx, time.Now().Add(-statusRetention)); err == nil && n > 0 && config.Debug {
			config.DebugLog.Printf("[Serve] Pruned %d old status records", n)
		}
		monitorOpts = append(monitorOpts, health.WithRecorder(statusLog))
		deps.History = statusLog
	}
	monitor := health.NewMonitor(reg, monitorOpts...)

	svc := chat.NewService(reg, monitor, chat.WithTimeout(cfg.ChatTimeout()))
	defer svc.Close()
	for id, err := range svc.ApplyConfig(cfg) {
		fmt.Fprintf(ioErr, "Warning: provider %s not available: %v\n", id, err)
	}

	tools := mcp.NewManager()
	if err := tools.Start(ctx, cfg.ToolServers); err != nil {
		fmt.Fprintf(ioErr, "Warning: some tool servers failed to start:\n%v\n", err)
	}
	deps.Tools = tools
	deps.Chat = svc

	if cfg.Path != "" {
		watcher, err := config.NewWatcher(cfg.Path)
		if err == nil {
			watcher.OnChange(func(newCfg *config.Config) {
				for id, err := range svc.ApplyConfig(newCfg) {
					fmt.Fprintf(ioErr, "Warning: provider %s not available after reload: %v\n", id, err)
				}
				if err := tools.Sync(ctx, newCfg.ToolServers); err != nil {
					fmt.Fprintf(ioErr, "Warning: tool servers after reload:\n%v\n", err)
				}
			})
			err = watcher.Start()
		}
		if err != nil {
			fmt.Fprintf(ioErr, "Warning: config hot reload disabled: %v\n", err)
		} else {
			defer watcher.Stop()
		}
	}

	monitor.Start(ctx)
	defer monitor.Stop()

	server := api.NewServer(cfg.Addr(), deps)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()
	printf("mcpchat listening on http://%s\n", cfg.Addr())

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := tools.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("tool server shutdown: %w", err))
	}
	return errors.Join(errs...)
}
