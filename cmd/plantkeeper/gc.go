package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"plantkeeper/internal/config"
)

func newGCCmd(cfg *config.Config, output *outputFlags) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Find image files no plant references",
		Long: "Scan the image directory for files that no plant references and report plant " +
			"images that are missing on disk. Nothing is deleted unless --apply is given. " +
			"Run it while the server is stopped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := openPlantService(cfg, slog.Default().With("component", "gc"))
			if err != nil {
				return err
			}
			result, err := service.SweepImages(cmd.Context(), apply)
			if err != nil {
				return err
			}
			if output.structured() {
				return writeStructured(result)
			}
			return writeSweepResult(result)
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete orphaned files instead of listing them")
	return cmd
}
