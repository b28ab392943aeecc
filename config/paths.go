package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// GetHomeDir returns the user's home directory, or the filesystem root when
// none can be determined.
func GetHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}

// GetConfigFilePath returns the config file location. MCPCHAT_CONFIG
// overrides the default ~/.config/mcpchat/config.toml.
func GetConfigFilePath() string {
	if p := os.Getenv("MCPCHAT_CONFIG"); p != "" {
		return ExpandPath(p)
	}
	return filepath.Join(GetHomeDir(), ".config", "mcpchat", "config.toml")
}

// GetDefaultDataDir returns ~/.local/share/mcpchat, or %LOCALAPPDATA%\mcpchat
// on Windows.
func GetDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "mcpchat")
		}
		return filepath.Join(GetHomeDir(), "AppData", "Local", "mcpchat")
	}
	return filepath.Join(GetHomeDir(), ".local", "share", "mcpchat")
}

// ExpandPath expands a leading ~ and environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		path = GetHomeDir() + path[1:]
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// EnsureDir creates path and its parents as user-only directories.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ensurePrivateDir creates dir if needed and tightens it to 0700; the data
// directory holds credentials and the debug log.
func ensurePrivateDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return EnsureDir(dir)
	case err != nil:
		return err
	case info.Mode().Perm() != 0700:
		return os.Chmod(dir, 0700)
	}
	return nil
}
