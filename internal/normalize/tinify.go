package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	DefaultTinifyURL = "https://api.tinify.com"

	tinifyUser          = "api"
	tinifyTimeout       = 60 * time.Second
	tinifyMaxResultSize = 32 << 20
)

// TinifyClient normalizes images with the Tinify web API: the image is
// uploaded to /shrink and the compressed result is resized with the "cover"
// method.
type TinifyClient struct {
	APIKey     string
	Size       int
	BaseURL    string
	HTTPClient *http.Client
}

type tinifyResize struct {
	Method string `json:"method"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type tinifyResizeRequest struct {
	Resize tinifyResize `json:"resize"`
}

type tinifyError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *TinifyClient) Name() string { return BackendTinify }

func (c *TinifyClient) Normalize(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrVanished
		}
		return err
	}

	location, err := c.shrink(ctx, data)
	if err != nil {
		return err
	}
	resized, err := c.resize(ctx, location)
	if err != nil {
		return err
	}

	return writeInPlace(path, func(f *os.File) error {
		_, err := f.Write(resized)
		return err
	})
}

func (c *TinifyClient) shrink(ctx context.Context, data []byte) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = DefaultTinifyURL
	}
	endpoint := base + "/shrink"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(tinifyUser, c.APIKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("tinify shrink: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", decodeTinifyError("shrink", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	location := strings.TrimSpace(resp.Header.Get("Location"))
	if location == "" {
		return "", fmt.Errorf("tinify shrink: response has no Location header")
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("tinify shrink: invalid Location %q: %w", location, err)
	}
	baseURL, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(ref).String(), nil
}

func (c *TinifyClient) resize(ctx context.Context, location string) ([]byte, error) {
	size := c.Size
	if size <= 0 {
		size = DefaultSize
	}
	body, err := json.Marshal(tinifyResizeRequest{Resize: tinifyResize{Method: "cover", Width: size, Height: size}})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, location, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(tinifyUser, c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("tinify resize: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeTinifyError("resize", resp)
	}

	out, err := io.ReadAll(io.LimitReader(resp.Body, tinifyMaxResultSize+1))
	if err != nil {
		return nil, fmt.Errorf("tinify resize: read body: %w", err)
	}
	if len(out) > tinifyMaxResultSize {
		return nil, fmt.Errorf("tinify resize: result exceeds %d bytes", tinifyMaxResultSize)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("tinify resize: empty result")
	}
	return out, nil
}

func (c *TinifyClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: tinifyTimeout}
}

func decodeTinifyError(step string, resp *http.Response) error {
	var payload tinifyError
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, &payload); err == nil && (payload.Error != "" || payload.Message != "") {
		return fmt.Errorf("tinify %s: %s: %s (status %d)", step, payload.Error, payload.Message, resp.StatusCode)
	}
	return fmt.Errorf("tinify %s: unexpected status %d", step, resp.StatusCode)
}
