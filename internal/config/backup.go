package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/yokai-gen/nichicrawl/internal/fsutil"
)

const (
	// MaxBackups is the number of user config backups kept on disk.
	MaxBackups = 3

	// BackupSuffix separates the config file name from the backup stamp.
	BackupSuffix = ".bak"

	// backupStamp sorts lexically in time order.
	backupStamp = "20060102-150405.000"
)

// BackupUserConfig copies the user config next to itself as
// config.yaml.bak.<stamp> and prunes backups beyond MaxBackups. With no
// user config it returns "" and a nil error.
func BackupUserConfig() (string, error) {
	current := GetUserConfigPath()
	if !UserConfigExists() {
		return "", nil
	}

	data, err := os.ReadFile(current)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}
	backup := current + BackupSuffix + "." + time.Now().Format(backupStamp)
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if err := pruneBackups(); err != nil {
		slog.Warn("config_backup_prune_failed", slog.String("error", err.Error()))
	}
	return backup, nil
}

// ListUserConfigBackups returns the user config backups, newest first.
func ListUserConfigBackups() ([]string, error) {
	dir := GetUserConfigDir()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	prefix := filepath.Base(GetUserConfigPath()) + BackupSuffix + "."
	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(backups)
	slices.Reverse(backups)
	return backups, nil
}

func pruneBackups() error {
	backups, err := ListUserConfigBackups()
	if err != nil || len(backups) <= MaxBackups {
		return err
	}
	var errs []error
	for _, old := range backups[MaxBackups:] {
		errs = append(errs, os.Remove(old))
	}
	return errors.Join(errs...)
}

// RestoreUserConfig replaces the user config with the content of backup.
// The current config, if any, is backed up first.
func RestoreUserConfig(ctx context.Context, backup string) error {
	// Read first: the backup taken below may prune backup itself.
	data, err := os.ReadFile(backup)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	if _, err := BackupUserConfig(); err != nil {
		return fmt.Errorf("failed to backup current config before restore: %w", err)
	}
	if err := writeConfigBytes(ctx, GetUserConfigPath(), data); err != nil {
		return fmt.Errorf("failed to write restored config: %w", err)
	}
	return nil
}

// writeConfigBytes replaces path atomically so an interrupted restore never
// leaves a truncated config.
func writeConfigBytes(ctx context.Context, path string, data []byte) error {
	return fsutil.WriteAtomic(ctx, path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
