package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"plantkeeper/internal/config"
	"plantkeeper/internal/format"
)

type outputFlags struct {
	json bool
	yaml bool
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		output   outputFlags
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "plantkeeper",
		Short:         "Plantkeeper tracks plants, their watering and their pictures",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), warning)
			}
			formatter, err := format.ForFlags(output.json, output.yaml)
			if err != nil {
				return err
			}
			if formatter != nil {
				outputFormatter = formatter
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&output.json, "json", false, "output JSON")
	cmd.PersistentFlags().BoolVar(&output.yaml, "yaml", false, "output YAML")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newConfigCmd(cfg),
		newGCCmd(cfg, &output),
		newPingCmd(cfg, &output),
		newListCmd(cfg, &output),
		newShowCmd(cfg, &output),
		newCreateCmd(cfg, &output),
		newRenameCmd(cfg, &output),
		newWaterCmd(cfg, &output),
		newDeleteCmd(cfg),
		newImageCmd(cfg, &output),
	)

	return cmd
}

// structured reports whether a machine-readable format was requested.
func (o *outputFlags) structured() bool {
	return o.json || o.yaml
}
