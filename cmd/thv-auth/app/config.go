// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/thv-auth/pkg/config"
)

const redacted = "********"

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage application configuration",
		Long:  "The config command provides subcommands to manage application configuration settings.",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current configuration",
		Long:  "Print the configuration file contents. Secrets are redacted.",
		Args:  cobra.NoArgs,
		RunE:  showConfigCmdFunc,
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: fmt.Sprintf(`Set a configuration value and save the configuration file.

Valid keys:
  %s

Example:
  thv-auth config set backend_url https://api.example.com`, strings.Join(config.Keys(), "\n  ")),
		Args: cobra.ExactArgs(2),
		RunE: setConfigCmdFunc,
	})

	return configCmd
}

func showConfigCmdFunc(cmd *cobra.Command, _ []string) error {
	cfg, err := configStore().Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Session.Redis.Password != "" {
		cfg.Session.Redis.Password = redacted
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize configuration: %w", err)
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}

func setConfigCmdFunc(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	err := configStore().Update(cmd.Context(), func(c *config.Config) error {
		return c.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("failed to update configuration: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Successfully set %s\n", key)
	return nil
}
