package cmd

import (
	"bufio"
	"fmt"
	"mcpchat/config"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.GetConfigFilePath()
		}
		if config.FileExists(path) {
			printf("Config already exists at %s\n", path)
			return nil
		}
		if err := config.CreateDefaultConfig(path); err != nil {
			return err
		}
		printf("Wrote %s\n", path)
		return nil
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List providers and how they are configured",
	Args:  cobra.NoArgs,
	RunE:  runProviders,
}

var providersEnableCmd = &cobra.Command{
	Use:   "enable <provider>",
	Short: "Enable a provider in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setProviderEnabled(args[0], true)
	},
}

var providersDisableCmd = &cobra.Command{
	Use:   "disable <provider>",
	Short: "Disable a provider in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setProviderEnabled(args[0], false)
	},
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage API keys in the credential store",
}

var keySetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Store an API key read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeySet,
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Remove a stored API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteAPIKey(args[0]); err != nil {
			return err
		}
		printf("Removed API key for %s\n", args[0])
		return nil
	},
}

func init() {
	providersCmd.AddCommand(providersEnableCmd, providersDisableCmd)
	keyCmd.AddCommand(keySetCmd, keyDeleteCmd)
	rootCmd.AddCommand(initCmd, providersCmd, keyCmd)
}

func runProviders(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reg := newRegistry()
	failed := make(map[string]error)
	for _, pc := range cfg.ProviderSettings() {
		p, err := reg.Build(pc)
		if err != nil {
			failed[pc.ProviderID] = err
			continue
		}
		p.Close()
	}

	tw := tabwriter.NewWriter(ioOut, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tENABLED\tAPI KEY\tSTATUS")
	for _, id := range reg.Registered() {
		pc, _ := cfg.Provider(id)
		status := "disabled"
		switch {
		case failed[id] != nil:
			status = failed[id].Error()
		case pc.Enabled:
			status = "ready"
		}
		fmt.Fprintf(tw, "%s\t%v\t%s\t%s\n", id, pc.Enabled, keySource(cfg, id), status)
	}
	return tw.Flush()
}

// keySource describes where a provider's key comes from, masked.
func keySource(cfg *config.Config, id string) string {
	key := cfg.APIKey(id)
	switch {
	case key == "":
		return "-"
	case strings.TrimSpace(os.Getenv(config.APIKeyEnvVar(id))) != "":
		return config.Redact(key) + " (" + config.APIKeyEnvVar(id) + ")"
	default:
		return config.Redact(key) + " (store)"
	}
}

func setProviderEnabled(id string, enabled bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := newRegistry().Known(id); err != nil {
		return err
	}
	if err := cfg.SetProviderEnabled(id, enabled); err != nil {
		return err
	}
	state := "Disabled"
	if enabled {
		state = "Enabled"
	}
	printf("%s %s in %s\n", state, id, cfg.Path)
	return nil
}

func runKeySet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintf(ioErr, "Paste the %s API key and press Enter: ", args[0])
	line, err := bufio.NewReader(ioIn).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading API key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return fmt.Errorf("API key must not be empty")
	}

	if err := cfg.SetAPIKey(args[0], key); err != nil {
		return err
	}
	printf("Stored API key %s for %s\n", config.Redact(key), args[0])
	return nil
}
