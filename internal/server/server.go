package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"plantkeeper/internal/normalize"
)

const (
	allowRemoteEnvKey      = "PLANTKEEPER_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 30 * time.Second
	writeTimeout           = 60 * time.Second
	idleTimeout            = 60 * time.Second
	shutdownTimeout        = 15 * time.Second
	uploadConcurrencyLimit = 4

	// DefaultDiscoveryID is the identifier returned by GET /ping so that
	// clients can recognize the service.
	DefaultDiscoveryID = "73182a69-3fdf-4b5a-900a-e5369803afbb"

	defaultMaxUploadBytes     = 20 << 20 // 20 MiB
	defaultMultipartMaxMemory = 8 << 20  // 8 MiB
)

// Options configures the HTTP surface of a Server.
type Options struct {
	DiscoveryID        string
	CORSAllowedOrigins []string
	MetricsEnabled     bool
	MaxUploadBytes     int64
	MultipartMaxMemory int64
}

// Server wraps HTTP handlers for the plantkeeper API.
type Server struct {
	addr          string
	service       *PlantService
	runner        *normalize.Runner
	logger        *slog.Logger
	opts          Options
	uploadLimiter chan struct{}
}

// New creates a new server instance. runner may be nil, in which case
// uploaded images are kept as received.
func New(addr string, service *PlantService, runner *normalize.Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:          addr,
		service:       service,
		runner:        runner,
		logger:        logger,
		uploadLimiter: make(chan struct{}, uploadConcurrencyLimit),
	}
	s.Configure(Options{})
	return s
}

// Configure applies opts, filling defaults for zero values.
func (s *Server) Configure(opts Options) {
	if strings.TrimSpace(opts.DiscoveryID) == "" {
		opts.DiscoveryID = DefaultDiscoveryID
	}
	if len(opts.CORSAllowedOrigins) == 0 {
		opts.CORSAllowedOrigins = []string{"*"}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.MultipartMaxMemory <= 0 {
		opts.MultipartMaxMemory = defaultMultipartMaxMemory
	}
	s.opts = opts
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// waits for background normalization jobs.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log().Info("starting server", "addr", s.addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if s.runner != nil {
		if waitErr := s.runner.Shutdown(shutdownCtx); waitErr != nil {
			s.log().Warn("normalization jobs still running at shutdown", "error", waitErr)
		}
	}
	if err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
