package mcp

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Runtime describes the executable behind a tool server command.
type Runtime struct {
	Command   string `json:"command"`
	Provides  string `json:"provides,omitempty"`
	Installed bool   `json:"installed"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// runtimeNames maps common MCP launchers to the toolchain that ships them.
var runtimeNames = map[string]string{
	"node":    "Node.js",
	"npx":     "Node.js",
	"python":  "Python",
	"python3": "Python",
	"uv":      "uv",
	"uvx":     "uv",
	"docker":  "Docker",
	"go":      "Go",
}

var versionPattern = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)

// versionArgs returns the flag that makes command print its version.
func versionArgs(command string) []string {
	if command == "go" {
		return []string{"version"}
	}
	return []string{"--version"}
}

// DetectRuntime looks command up on PATH and asks it for its version. A
// version probe that fails still counts as installed.
func DetectRuntime(ctx context.Context, command string) Runtime {
	rt := Runtime{Command: command, Provides: runtimeNames[filepath.Base(command)]}

	path, err := exec.LookPath(command)
	if err != nil {
		rt.Error = missingCommand(command)
		return rt
	}
	rt.Installed = true
	rt.Path = path

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	output, err := exec.CommandContext(ctx, path, versionArgs(filepath.Base(command))...).Output()
	if err != nil {
		rt.Error = fmt.Sprintf("failed to get %s version", command)
		return rt
	}
	if m := versionPattern.FindStringSubmatch(strings.TrimSpace(string(output))); len(m) > 1 {
		rt.Version = m[1]
	}
	return rt
}

// checkCommand fails fast with an install hint when command is not on PATH.
func checkCommand(command string) error {
	if _, err := exec.LookPath(command); err != nil {
		return fmt.Errorf("%s", missingCommand(command))
	}
	return nil
}

func missingCommand(command string) string {
	if name := runtimeNames[filepath.Base(command)]; name != "" {
		return fmt.Sprintf("%s not found (install %s)", command, name)
	}
	return fmt.Sprintf("%s not found", command)
}
