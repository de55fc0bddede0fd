package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.nichicrawl/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".nichicrawl", "logs")
	}
	return filepath.Join(home, ".nichicrawl", "logs")
}

// DefaultLogPath returns the default crawl log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "crawl.log")
}

// ResolveLogPath picks the log file for cfg: an explicit directory from the
// configuration wins over the default location.
func ResolveLogPath(dir string) string {
	if dir == "" {
		return DefaultLogPath()
	}
	return filepath.Join(dir, "crawl.log")
}

// FindLogFile returns explicit when it exists, else the default log path.
// It errors when neither is present.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	path := DefaultLogPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("no log file found. Run a command with --debug first.\nExpected at: %s", path)
}
