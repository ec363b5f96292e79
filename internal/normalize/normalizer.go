package normalize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	BackendLocal  = "local"
	BackendTinify = "tinify"
	BackendNone   = "none"

	// DefaultSize is the edge length of the normalized square image.
	DefaultSize = 500
)

// ErrVanished reports that the image was removed while it was being
// normalized. The rewritten image is discarded.
var ErrVanished = errors.New("image removed before normalization finished")

// ErrImageTooLarge reports an image whose declared dimensions exceed the
// decode budget. The file is left untouched.
var ErrImageTooLarge = errors.New("image dimensions too large to normalize")

// Normalizer rewrites the image at a file path in place as a square of a
// fixed size, cropping to cover.
type Normalizer interface {
	Normalize(ctx context.Context, path string) error
	Name() string
}

// Options selects and configures a Normalizer.
type Options struct {
	Backend      string
	Size         int
	TinifyAPIKey string
	TinifyURL    string
	HTTPClient   *http.Client
}

// New builds the normalizer named by opts.Backend. An empty backend selects
// the local resizer.
func New(opts Options) (Normalizer, error) {
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendLocal:
		return &Resizer{Size: size}, nil
	case BackendTinify:
		if strings.TrimSpace(opts.TinifyAPIKey) == "" {
			return nil, fmt.Errorf("normalize backend %q requires an API key", BackendTinify)
		}
		return &TinifyClient{APIKey: opts.TinifyAPIKey, Size: size, BaseURL: opts.TinifyURL, HTTPClient: opts.HTTPClient}, nil
	case BackendNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown normalize backend %q (expected %s, %s or %s)", opts.Backend, BackendLocal, BackendTinify, BackendNone)
	}
}

// Noop leaves images untouched.
type Noop struct{}

func (Noop) Normalize(ctx context.Context, _ string) error { return ctx.Err() }
func (Noop) Name() string                                  { return BackendNone }

// writeInPlace replaces path with the bytes produced by write. The result is
// discarded with ErrVanished when path no longer exists.
func writeInPlace(path string, write func(f *os.File) error) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrVanished
		}
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".normalize-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmpPath)
		return ErrVanished
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
