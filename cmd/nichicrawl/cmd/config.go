package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yokai-gen/nichicrawl/configs"
	"github.com/yokai-gen/nichicrawl/internal/config"
	crawlerr "github.com/yokai-gen/nichicrawl/internal/errors"
	"github.com/yokai-gen/nichicrawl/internal/output"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage nichicrawl configuration files.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/nichicrawl/config.yaml)
  3. Project config (.nichicrawl.yaml, or --config)
  4. Environment variables (NICHICRAWL_*)
  5. Command flags`,
		Example: `  # Create user config from template
  nichicrawl config init

  # Create .nichicrawl.yaml in the current directory
  nichicrawl config init --project

  # Show effective configuration
  nichicrawl config show`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(root))
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from a template",
		Long: `Create the user configuration file, or with --project the .nichicrawl.yaml
of the current directory.

With --force an existing user config is backed up (the three newest
backups are kept) and replaced.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if project {
				return runConfigInitProject(cmd, force)
			}
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&project, "project", false, "Create .nichicrawl.yaml in the current directory")

	return cmd
}

func newConfigShowCmd(root *rootOptions) *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Example: `  nichicrawl config show
  nichicrawl config show --json
  nichicrawl config show --source user`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, root.cfg, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore the user config from a backup",
		Long: `Restore the user configuration from a backup made by 'config init --force'.
Without an argument the newest backup is used. The current file is backed
up first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigRestore(cmd, args)
		},
	}
}

func runConfigRestore(cmd *cobra.Command, args []string) error {
	out := output.New(cmd.OutOrStdout())

	var backup string
	if len(args) == 1 {
		backup = args[0]
	} else {
		backups, err := config.ListUserConfigBackups()
		if err != nil {
			return crawlerr.New(crawlerr.ErrCodeReadFailed, "failed to list config backups", err)
		}
		if len(backups) == 0 {
			out.Warning("No config backups found")
			return nil
		}
		backup = backups[0]
	}

	if err := config.RestoreUserConfig(cmd.Context(), backup); err != nil {
		return crawlerr.WriteError("failed to restore config", err).WithDetail("backup", backup)
	}
	out.Success("Restored user configuration")
	out.Statusf("", "From: %s", backup)
	return nil
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	configPath := config.GetUserConfigPath()

	if config.UserConfigExists() {
		if !force {
			out.Warning("User configuration already exists")
			out.Statusf("", "Location: %s", configPath)
			out.Status("", "Use --force to replace it (a backup is kept)")
			return nil
		}
		backupPath, err := config.BackupUserConfig()
		if err != nil {
			return crawlerr.WriteError("failed to backup config", err).WithDetail("path", configPath)
		}
		if err := writeTemplate(configPath, configs.UserConfigTemplate); err != nil {
			return err
		}
		out.Success("Replaced user configuration")
		out.Statusf("", "Location: %s", configPath)
		out.Statusf("", "Backup:   %s", backupPath)
		return nil
	}

	if err := writeTemplate(configPath, configs.UserConfigTemplate); err != nil {
		return err
	}
	out.Success("Created user configuration")
	out.Statusf("", "Location: %s", configPath)
	out.Status("", "Run 'nichicrawl config show' to verify")
	return nil
}

func runConfigInitProject(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	wd, err := os.Getwd()
	if err != nil {
		return crawlerr.ConfigError("cannot determine working directory", err)
	}
	path := filepath.Join(wd, config.ProjectConfigNames[0])

	if _, err := os.Stat(path); err == nil && !force {
		out.Warning("Project configuration already exists")
		out.Statusf("", "Location: %s", path)
		return nil
	}
	if err := writeTemplate(path, configs.ProjectConfigTemplate); err != nil {
		return err
	}
	out.Success("Created project configuration")
	out.Statusf("", "Location: %s", path)
	return nil
}

func writeTemplate(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return crawlerr.WriteError("failed to create config directory", err).WithDetail("path", path)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return crawlerr.WriteError("failed to write config file", err).WithDetail("path", path)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, merged *config.Config, jsonOutput bool, source string) error {
	var cfg *config.Config
	switch source {
	case "merged":
		cfg = merged
	case "defaults":
		cfg = config.NewConfig()
	case "user":
		user, err := config.LoadUserConfig()
		if err != nil {
			return crawlerr.ConfigError("failed to load user config", err)
		}
		if user == nil {
			output.New(cmd.OutOrStdout()).Warningf("No user config at %s", config.GetUserConfigPath())
			return nil
		}
		cfg = user
	default:
		return crawlerr.ConfigError(fmt.Sprintf("unknown source %q", source), nil).
			WithSuggestion("use merged, user or defaults")
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return crawlerr.New(crawlerr.ErrCodeInternal, "failed to marshal config", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
