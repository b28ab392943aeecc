package cmd

import (
	"fmt"
	"io"
	"mcpchat/config"
	"mcpchat/provider"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// Package-level variables for testability. Tests swap the registry for one
// backed by mock providers and capture output.
var (
	newRegistry           = provider.NewDefaultRegistry
	ioIn        io.Reader = os.Stdin
	ioOut       io.Writer = os.Stdout
	ioErr       io.Writer = os.Stderr
)

var rootCmd = &cobra.Command{
	Use:   "mcpchat",
	Short: "Unified chat API over OpenAI, Anthropic, Ollama and more",
	Long: `mcpchat serves one chat API in front of several LLM providers.

Examples:
  mcpchat init
  mcpchat serve
  mcpchat providers
  mcpchat chat --provider openai "Explain MCP in one sentence"`,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/mcpchat/config.toml or $MCPCHAT_CONFIG)")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config and starts the debug log in the data
// directory.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if !config.Debug {
		config.InitDebugLog(cfg.DataDir())
	}
	return cfg, nil
}

func printf(format string, args ...any) {
	fmt.Fprintf(ioOut, format, args...)
}
