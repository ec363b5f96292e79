package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"time"

	"plantkeeper/internal/api"
	"plantkeeper/internal/config"
)

const (
	serverStartTimeout = 3 * time.Second
	serverStopTimeout  = 5 * time.Second
	serverPollInterval = 100 * time.Millisecond
	probeTimeout       = 500 * time.Millisecond
)

// withClient runs fn against the configured server. When nothing answers at
// the API URL a local `srv` child is started for the duration of fn.
func withClient(cfg *config.Config, fn func(*api.Client) error) error {
	client := api.NewClient(cfg.APIURL)

	child, err := ensureServer(cfg, client)
	if err != nil {
		return err
	}
	if child != nil {
		defer child.stop()
	}
	return fn(client)
}

// localServer is a `plantkeeper srv` process started on demand.
type localServer struct {
	cmd *exec.Cmd
}

func ensureServer(cfg *config.Config, client *api.Client) (*localServer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	resp, err := client.Ping(ctx)
	cancel()
	if err == nil {
		if resp.UUID != cfg.DiscoveryID {
			return nil, fmt.Errorf("server at %s answered with discovery id %q, expected %q", cfg.APIURL, resp.UUID, cfg.DiscoveryID)
		}
		return nil, nil
	}

	child, err := startLocalServer(cfg)
	if err != nil {
		return nil, err
	}
	if err := waitForServer(client, serverStartTimeout); err != nil {
		_ = child.cmd.Process.Kill()
		_ = child.cmd.Wait()
		return nil, err
	}
	return child, nil
}

func startLocalServer(cfg *config.Config) (*localServer, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exe, "srv")
	cmd.Env = append(os.Environ(),
		"PLANTKEEPER_API_URL="+cfg.APIURL,
		"PLANTKEEPER_DATA="+cfg.DataPath,
		"PLANTKEEPER_IMAGES_DIR="+cfg.Images.Dir,
	)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &localServer{cmd: cmd}, nil
}

// stop interrupts the child so it can drain normalization jobs, and kills it
// if it does not exit in time.
func (l *localServer) stop() {
	_ = l.cmd.Process.Signal(os.Interrupt)
	done := make(chan struct{})
	go func() {
		_ = l.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(serverStopTimeout):
		_ = l.cmd.Process.Kill()
		<-done
	}
}

func waitForServer(client *api.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		_, err := client.Ping(ctx)
		cancel()
		if err == nil {
			return nil
		}
		var opErr *net.OpError
		if !errors.As(err, &opErr) {
			// Something that is not our server holds the port.
			return err
		}
		time.Sleep(serverPollInterval)
	}
	return errors.New("server did not start in time")
}
