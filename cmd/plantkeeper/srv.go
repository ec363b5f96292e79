package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"plantkeeper/internal/config"
	"plantkeeper/internal/imagestore"
	"plantkeeper/internal/normalize"
	"plantkeeper/internal/server"
	"plantkeeper/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the plantkeeper API server",
		Long: "Serve the plant API on the address in api_url (default http://127.0.0.1:5000).\n\n" +
			"Clients find the server on the LAN by requesting GET /ping on each host. To allow that, " +
			"set api_url to http://0.0.0.0:5000 and export PLANTKEEPER_ALLOW_REMOTE=true; " +
			"without the variable, non-loopback addresses are refused at startup.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			service, err := openPlantService(cfg, logger)
			if err != nil {
				return err
			}

			normalizer, err := normalize.New(normalize.Options{
				Backend:      cfg.Normalize.Backend,
				Size:         cfg.Normalize.Size,
				TinifyAPIKey: cfg.Normalize.TinifyAPIKey,
			})
			if err != nil {
				return err
			}
			runner := normalize.NewRunner(normalizer, cfg.Normalize.Concurrency, cfg.NormalizeTimeout(), slog.Default())
			logger.Info("image normalization configured", "backend", normalizer.Name(), "concurrency", cfg.Normalize.Concurrency)

			srv := server.New(addr, service, runner, logger)
			srv.Configure(server.Options{
				DiscoveryID:        cfg.DiscoveryID,
				CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
				MetricsEnabled:     cfg.Server.MetricsEnabled,
				MaxUploadBytes:     cfg.Images.MaxUploadBytes,
				MultipartMaxMemory: cfg.Images.MultipartMaxMemory,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
}

// openPlantService opens the record store and the image directory named by
// cfg. It is shared by the server and the offline maintenance commands.
// logger is used for startup messages only; the store and service tag their
// own component.
func openPlantService(cfg *config.Config, logger *slog.Logger) (*server.PlantService, error) {
	if cfg.DataPath == "" {
		return nil, fmt.Errorf("data path is required")
	}

	logger.Info("opening data file", "path", cfg.DataPath)
	st, err := store.Open(cfg.DataPath, slog.Default())
	if err != nil {
		return nil, err
	}

	images, err := imagestore.New(cfg.Images.Dir, cfg.Images.DefaultName, imagestore.DefaultURLPrefix, cfg.Images.AllowedMediaTypes)
	if err != nil {
		return nil, err
	}
	images.ConfigurePolicy(cfg.Images.AllowedMediaTypes, cfg.Images.RejectMediaTypeMismatch)
	if err := images.EnsureStorageDirectory(); err != nil {
		return nil, err
	}
	logger.Info("image storage ready", "dir", images.Root())

	return server.NewPlantService(st, images, slog.Default()), nil
}
