// Package node resolves the filesystem layout of one daemon instance.
package node

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.pingme.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pingme")
}

// Dir returns the node data directory: the configured override, or the
// default under BaseDir.
func Dir(dataDir string) string {
	if dataDir != "" {
		return dataDir
	}
	return filepath.Join(BaseDir(), "data")
}

// DBPath returns the pingme.db path.
func DBPath(dataDir string) string {
	return filepath.Join(Dir(dataDir), "pingme.db")
}

// LogDir returns the log directory.
func LogDir(dataDir string) string {
	return filepath.Join(Dir(dataDir), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(dataDir string) string {
	return filepath.Join(LogDir(dataDir), "pingmed.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the data directory tree with private permissions.
func EnsureDir(dataDir string) error {
	dirs := []string{
		Dir(dataDir),
		LogDir(dataDir),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
