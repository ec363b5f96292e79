package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"plantkeeper/internal/api"
	"plantkeeper/internal/config"
)

func newListCmd(cfg *config.Config, output *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				plants, err := client.ListPlants(cmd.Context())
				if err != nil {
					return err
				}
				if output.structured() {
					return writeStructured(plants)
				}
				return writePlantList(plants)
			})
		},
	}
}

func newShowCmd(cfg *config.Config, output *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show plant details",
		Args:  requirePlantID(requireExactlyArgs(1, "plant id is required")),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePlantIDArg(args[0])
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				plant, err := client.GetPlant(cmd.Context(), id)
				if err != nil {
					return err
				}
				return writePlantResult(output, plant)
			})
		},
	}
}

func newCreateCmd(cfg *config.Config, output *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Register a new plant",
		Args:  requireAtLeastArgs(1, "plant name is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			return withClient(cfg, func(client *api.Client) error {
				plant, err := client.CreatePlant(cmd.Context(), api.CreatePlantRequest{Name: name})
				if err != nil {
					return err
				}
				return writePlantResult(output, plant)
			})
		},
	}
}

func newRenameCmd(cfg *config.Config, output *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a plant",
		Args:  requirePlantID(requireAtLeastArgs(2, "plant id and new name are required")),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePlantIDArg(args[0])
			if err != nil {
				return err
			}
			name := strings.Join(args[1:], " ")
			return withClient(cfg, func(client *api.Client) error {
				plant, err := client.RenamePlant(cmd.Context(), id, api.RenamePlantRequest{Name: name})
				if err != nil {
					return err
				}
				return writePlantResult(output, plant)
			})
		},
	}
}

func newWaterCmd(cfg *config.Config, output *outputFlags) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "water <id>",
		Short: "Record that a plant was watered",
		Args:  requirePlantID(requireExactlyArgs(1, "plant id is required")),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePlantIDArg(args[0])
			if err != nil {
				return err
			}
			var when time.Time
			if strings.TrimSpace(at) != "" {
				when, err = time.Parse(time.RFC3339, strings.TrimSpace(at))
				if err != nil {
					return fmt.Errorf("invalid --at %q: expected RFC3339 timestamp", at)
				}
			}
			return withClient(cfg, func(client *api.Client) error {
				plant, err := client.WaterPlant(cmd.Context(), id, when)
				if err != nil {
					return err
				}
				return writePlantResult(output, plant)
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "watering time (RFC3339, default now)")
	return cmd
}

func newDeleteCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a plant and its image",
		Args:  requirePlantID(requireExactlyArgs(1, "plant id is required")),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePlantIDArg(args[0])
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				if err := client.DeletePlant(cmd.Context(), id); err != nil {
					return err
				}
				return writePlain("deleted plant %d\n", id)
			})
		},
	}
}

func newImageCmd(cfg *config.Config, output *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "image <id> <file>",
		Short: "Replace a plant's image",
		Args:  requirePlantID(requireExactlyArgs(2, "plant id and image file are required")),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePlantIDArg(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.UploadImage(cmd.Context(), id, filepath.Base(args[1]), f)
				if err != nil {
					return err
				}
				if output.structured() {
					return writeStructured(resp)
				}
				return writePlain("%s: %s\n", resp.Message, resp.NewPath)
			})
		},
	}
}

func newPingCmd(cfg *config.Config, output *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(cfg.APIURL)
			resp, err := client.Ping(cmd.Context())
			if err != nil {
				return err
			}
			if output.structured() {
				return writeStructured(resp)
			}
			return writePlain("%s\n", resp.UUID)
		},
	}
}

func writePlantResult(output *outputFlags, plant api.PlantResponse) error {
	if output.structured() {
		return writeStructured(plant)
	}
	return writePlantDetail(plant)
}

func parsePlantIDArg(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid plant id %q", raw)
	}
	return id, nil
}
