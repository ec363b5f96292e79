package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "PLANTKEEPER_HTTP_TIMEOUT"

	// ImageFormField is the multipart field carrying an uploaded image.
	ImageFormField = "image"
)

// Client is a simple HTTP client for the plantkeeper API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
	}
}

// Health checks whether the API server is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Ping returns the server's discovery id.
func (c *Client) Ping(ctx context.Context) (PingResponse, error) {
	var resp PingResponse
	err := c.do(ctx, http.MethodGet, "/ping", nil, &resp)
	return resp, err
}

func (c *Client) ListPlants(ctx context.Context) ([]PlantResponse, error) {
	var resp []PlantResponse
	err := c.do(ctx, http.MethodGet, "/plants", nil, &resp)
	return resp, err
}

func (c *Client) GetPlant(ctx context.Context, id int64) (PlantResponse, error) {
	var resp PlantResponse
	err := c.do(ctx, http.MethodGet, plantPath(id), nil, &resp)
	return resp, err
}

func (c *Client) CreatePlant(ctx context.Context, req CreatePlantRequest) (PlantResponse, error) {
	var resp PlantResponse
	err := c.do(ctx, http.MethodPost, "/plants", req, &resp)
	return resp, err
}

func (c *Client) RenamePlant(ctx context.Context, id int64, req RenamePlantRequest) (PlantResponse, error) {
	var resp PlantResponse
	err := c.do(ctx, http.MethodPut, plantPath(id), req, &resp)
	return resp, err
}

// WaterPlant records a watering. A zero at lets the server use its clock.
func (c *Client) WaterPlant(ctx context.Context, id int64, at time.Time) (PlantResponse, error) {
	var body any
	if !at.IsZero() {
		body = WaterPlantRequest{LastWatered: at.UTC().Format(time.RFC3339Nano)}
	}
	var resp PlantResponse
	err := c.do(ctx, http.MethodPut, plantPath(id)+"/water", body, &resp)
	return resp, err
}

func (c *Client) DeletePlant(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, plantPath(id), nil, nil)
}

// UploadImage replaces the image of plant id with content. The part is sent
// with the media type implied by filename's extension.
func (c *Client) UploadImage(ctx context.Context, id int64, filename string, content io.Reader) (ImageUploadResponse, error) {
	var resp ImageUploadResponse
	if content == nil {
		return resp, fmt.Errorf("image content is required")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, ImageFormField, filepath.Base(filename)))
	header.Set("Content-Type", mediaTypeForFilename(filename))
	part, err := mw.CreatePart(header)
	if err != nil {
		return resp, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return resp, err
	}
	if err := mw.Close(); err != nil {
		return resp, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/images/"+strconv.FormatInt(id, 10), &buf)
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	endpoint := c.baseURL + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func plantPath(id int64) string {
	return "/plants/" + url.PathEscape(strconv.FormatInt(id, 10))
}

func mediaTypeForFilename(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
