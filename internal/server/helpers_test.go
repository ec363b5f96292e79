package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"plantkeeper/internal/api"
	"plantkeeper/internal/imagestore"
	"plantkeeper/internal/models"
	"plantkeeper/internal/store"
)

type testEnv struct {
	srv    *Server
	store  *store.Store
	images *imagestore.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newSeededTestEnv(t, "", "")
}

// newSeededTestEnv writes data to the plant file before opening the store
// when it is non-empty, and names the default image defaultName.
func newSeededTestEnv(t *testing.T, defaultName, data string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "plants.json")
	if data != "" {
		if err := os.WriteFile(dataPath, []byte(data), 0o644); err != nil {
			t.Fatalf("seed data file: %v", err)
		}
	}

	st, err := store.Open(dataPath, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	images, err := imagestore.New(filepath.Join(dir, "static"), defaultName, "", nil)
	if err != nil {
		t.Fatalf("new image manager: %v", err)
	}
	if err := images.EnsureStorageDirectory(); err != nil {
		t.Fatalf("ensure storage directory: %v", err)
	}

	svc := NewPlantService(st, images, nil)
	return &testEnv{srv: New("127.0.0.1:0", svc, nil, nil), store: st, images: images}
}

// useStore rebuilds the server around a different store implementation that
// shares the environment's image directory.
func (e *testEnv) useStore(st store.PlantStore) {
	e.srv = New("127.0.0.1:0", NewPlantService(st, e.images, nil), nil, nil)
}

// failingSaveStore runs mutations against the real data but reports every
// save as a storage failure once fail is set.
type failingSaveStore struct {
	*store.Store
	fail atomic.Bool
}

func (f *failingSaveStore) Update(ctx context.Context, fn store.MutateFunc) error {
	if !f.fail.Load() {
		return f.Store.Update(ctx, fn)
	}
	return f.Store.View(ctx, func(plants []models.Plant) error {
		if _, err := fn(plants); err != nil {
			return err
		}
		return fmt.Errorf("%w: no space left on device", store.ErrStorageIO)
	})
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.routes().ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, id int64, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, api.ImageFormField, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/images/%d", id), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.srv.routes().ServeHTTP(w, req)
	return w
}

func (e *testEnv) imageFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.images.Root())
	if err != nil {
		t.Fatalf("read image dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d (%s)", want, w.Code, w.Body.String())
	}
}

func expectErrorCode(t *testing.T, w *httptest.ResponseRecorder, status, code int) {
	t.Helper()
	expectStatus(t, w, status)
	errResp := decodeBody[api.ErrorResponse](t, w)
	if errResp.ErrorCode != code {
		t.Fatalf("expected error_code %d, got %d (%s)", code, errResp.ErrorCode, errResp.Error)
	}
}

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: 0x90, B: 0x30, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type recordingNormalizer struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNormalizer) Name() string { return "test" }

func (n *recordingNormalizer) Normalize(_ context.Context, path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
	return nil
}
