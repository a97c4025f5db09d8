package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// StateDirName is profilepm's own directory under the user's home.
const StateDirName = ".profilepm"

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(StateDirName, "config.toml")
	}
	return filepath.Join(home, StateDirName, "config.toml")
}

// ExpandPath resolves a leading ~ against the home directory. Both ~/ and
// ~\ are accepted so Windows-style config values work.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, filepath.FromSlash(strings.ReplaceAll(path[2:], `\`, "/"))), nil
}

// ResolveStorageRoot returns the absolute state directory named by
// [storage] root.
func ResolveStorageRoot(cfg Config) (string, error) {
	expanded, err := ExpandPath(cfg.Storage.Root)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}
