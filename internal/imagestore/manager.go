package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"plantkeeper/internal/models"
)

const (
	// DefaultName is the reserved filename of the shared default image.
	DefaultName = "defaultPlant.png"
	// DefaultURLPrefix is the public path under which stored images are served.
	DefaultURLPrefix = "/static/"

	uploadTempPattern = ".upload-*"
	maxExtensionLen   = 8
)

var (
	// ErrDisallowedType reports an upload whose media type is not allowed.
	ErrDisallowedType = errors.New("image type not allowed")
	// ErrMediaTypeMismatch reports a declared media type that disagrees with the content.
	ErrMediaTypeMismatch = errors.New("declared media type does not match image content")
	// ErrInvalidPath reports an image path that does not name a file in the storage directory.
	ErrInvalidPath = errors.New("invalid image path")
)

// Manager owns the image storage directory.
type Manager struct {
	root        string
	defaultName string
	urlPrefix   string

	allowedMediaTypes map[string]struct{}
	rejectMismatch    bool
}

// New returns a manager rooted at root. Empty arguments fall back to the
// package defaults. The directory is not touched until EnsureStorageDirectory.
func New(root, defaultName, urlPrefix string, allowedMediaTypes []string) (*Manager, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("image storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	defaultName = strings.TrimSpace(defaultName)
	if defaultName == "" {
		defaultName = DefaultName
	}
	if !validFileName(defaultName) {
		return nil, fmt.Errorf("%w: default image name %q", ErrInvalidPath, defaultName)
	}

	urlPrefix = strings.TrimSpace(urlPrefix)
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	if !strings.HasPrefix(urlPrefix, "/") {
		urlPrefix = "/" + urlPrefix
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}

	m := &Manager{root: abs, defaultName: defaultName, urlPrefix: urlPrefix}
	m.ConfigurePolicy(allowedMediaTypes, true)
	return m, nil
}

// Root returns the absolute storage directory.
func (m *Manager) Root() string {
	return m.root
}

// URLPrefix returns the public path prefix, always with a trailing slash.
func (m *Manager) URLPrefix() string {
	return m.urlPrefix
}

// DefaultPath returns the public path of the shared default image.
func (m *Manager) DefaultPath() string {
	return m.urlPrefix + m.defaultName
}

// EnsureStorageDirectory creates the storage directory and the default image
// when they are missing. Calling it again is harmless.
func (m *Manager) EnsureStorageDirectory() error {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return err
	}
	defaultFile := filepath.Join(m.root, m.defaultName)
	if _, err := os.Stat(defaultFile); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return writePlaceholder(defaultFile)
}

// AcceptUpload stores r under a fresh unique name with extension ext and
// returns its public path.
func (m *Manager) AcceptUpload(ctx context.Context, r io.Reader, ext string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("image content is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !validExtension(ext) {
		return "", fmt.Errorf("%w: extension %q", ErrInvalidPath, ext)
	}

	tmp, err := os.CreateTemp(m.root, uploadTempPattern)
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		cleanup()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}

	name := uuid.NewString() + ext
	if err := os.Rename(tmpPath, filepath.Join(m.root, name)); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return m.urlPrefix + name, nil
}

// ReplaceImage points plant at newPath and returns the previous path when it
// is now orphaned. The default image is never reported.
func (m *Manager) ReplaceImage(plant *models.Plant, newPath string) string {
	if plant == nil {
		return ""
	}
	old := plant.ImagePath
	plant.ImagePath = newPath
	if m.IsDefault(old) || sameImage(old, newPath) {
		return ""
	}
	return old
}

// DeleteIfNotDefault removes the file named by imagePath unless it is the
// shared default. Missing files are ignored.
func (m *Manager) DeleteIfNotDefault(imagePath string) error {
	if m.IsDefault(imagePath) {
		return nil
	}
	file, err := m.FilePath(imagePath)
	if err != nil {
		return err
	}
	if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// IsDefault reports whether imagePath refers to the shared default image.
// Only the filename is compared, so legacy path forms match too.
func (m *Manager) IsDefault(imagePath string) bool {
	imagePath = strings.TrimSpace(imagePath)
	if imagePath == "" {
		return true
	}
	return path.Base(imagePath) == m.defaultName
}

// FilePath maps a public image path to the file inside the storage directory.
func (m *Manager) FilePath(imagePath string) (string, error) {
	name, err := m.fileName(imagePath)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.root, name), nil
}

func (m *Manager) fileName(imagePath string) (string, error) {
	p := strings.TrimSpace(imagePath)
	if strings.HasPrefix(p, ".") && strings.HasPrefix(p[1:], m.urlPrefix) {
		p = p[1:]
	}
	if !strings.HasPrefix(p, m.urlPrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, imagePath)
	}
	name := strings.TrimPrefix(p, m.urlPrefix)
	if !validFileName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, imagePath)
	}
	return name, nil
}

func sameImage(a, b string) bool {
	return strings.TrimPrefix(strings.TrimSpace(a), ".") == strings.TrimPrefix(strings.TrimSpace(b), ".")
}

func validFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}

func validExtension(ext string) bool {
	if len(ext) < 2 || len(ext) > maxExtensionLen || ext[0] != '.' {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
