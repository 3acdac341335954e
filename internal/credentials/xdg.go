package credentials

import (
	"fmt"
	"os"
	"path/filepath"
)

const appDirName = "notebook-gateway"

// DefaultTokensPath returns $XDG_CONFIG_HOME/notebook-gateway/tokens.json,
// falling back to ~/.config when XDG_CONFIG_HOME is unset.
func DefaultTokensPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "tokens.json")
}

// DefaultConfigPath returns the default location of config.yaml.
func DefaultConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// ConfigDir returns the per-user configuration directory of the gateway.
func ConfigDir() string {
	xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfigHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		xdgConfigHome = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(xdgConfigHome, appDirName)
}

func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
