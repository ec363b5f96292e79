package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"plantkeeper/internal/config"
)

func newConfigCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration",
	}

	cmd.AddCommand(newConfigGetCmd(cfg))
	cmd.AddCommand(newConfigListCmd(cfg))
	cmd.AddCommand(newConfigSetCmd())
	return cmd
}

func newConfigGetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get an effective config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.IsAllowedKey(key) {
				return fmt.Errorf("unknown key: %s (allowed: %v)", key, config.AllowedKeys())
			}
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}
			return writePlain("%s\n", value)
		},
	}
}

func newConfigListCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every effective config value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, key := range config.AllowedKeys() {
				value, err := cfg.Get(key)
				if err != nil {
					return err
				}
				if err := writePlain("%s = %s\n", key, value); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Long: "Write a value to the project config file, or to the global one with --global. " +
			"The project file is only read when PLANTKEEPER_TRUST_PROJECT_CONFIG=true.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			path, err := config.ProjectPath()
			if global {
				path, err = config.GlobalPath()
			}
			if err != nil {
				return err
			}

			if err := config.SetKey(path, key, value); err != nil {
				return err
			}
			return writePlain("%s written to %s\n", key, path)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to global config (~/"+config.ConfigFileName+")")
	return cmd
}
