package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"plantkeeper/internal/metrics"
	"plantkeeper/internal/models"
)

const (
	dataFileMode     = 0o644
	dataIndent       = "    "
	corruptSuffixFmt = "20060102T150405Z"
)

// Store keeps every plant in one JSON document on disk.
// Update and View serialize load-modify-save cycles within the process;
// separate processes sharing the file are still last-writer-wins.
type Store struct {
	path   string
	logger *slog.Logger
	ids    idAllocator
	now    func() time.Time

	mu sync.Mutex

	stateMu sync.Mutex
	corrupt bool
}

// Open returns a store backed by path and seeds the id allocator from it.
func Open(path string, logger *slog.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("data path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageIO, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:   abs,
		logger: logger.With("component", "store"),
		now:    time.Now,
	}
	if _, err := s.LoadAll(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the absolute path of the backing file.
func (s *Store) Path() string {
	return s.path
}

// LoadAll reads every plant. A missing file is an empty collection. An
// unparseable file is logged, remembered and also read as empty.
func (s *Store) LoadAll(ctx context.Context) ([]models.Plant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.setCorrupt(false)
			return []models.Plant{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorageIO, s.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		s.logger.Warn("plant data file is empty", "path", s.path)
		s.setCorrupt(false)
		return []models.Plant{}, nil
	}

	plants, err := decodePlants(data)
	if err != nil {
		s.logger.Error("plant data is unreadable; serving an empty collection", "path", s.path, "error", err)
		s.setCorrupt(true)
		return []models.Plant{}, nil
	}

	s.setCorrupt(false)
	s.ids.observe(plants)
	return plants, nil
}

// SaveAll replaces the backing file with plants. Readers see either the old
// or the new document, never a partial one.
func (s *Store) SaveAll(ctx context.Context, plants []models.Plant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if plants == nil {
		plants = []models.Plant{}
	}

	data, err := json.MarshalIndent(plants, "", dataIndent)
	if err != nil {
		return fmt.Errorf("encode plants: %w", err)
	}
	data = append(data, '\n')

	if err := s.preserveCorrupt(); err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, data, dataFileMode); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStorageIO, s.path, err)
	}

	s.ids.observe(plants)
	metrics.SetPlantCount(len(plants))
	return nil
}

// NextID returns an id greater than every id this store has seen.
func (s *Store) NextID() int64 {
	return s.ids.next()
}

// HighWater returns the largest id seen or issued so far.
func (s *Store) HighWater() int64 {
	return s.ids.current()
}

// Update loads all plants, applies fn and saves the result while holding the
// store lock. Nothing is written when fn returns an error.
func (s *Store) Update(ctx context.Context, fn MutateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plants, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	updated, err := fn(plants)
	if err != nil {
		return err
	}
	return s.SaveAll(ctx, updated)
}

// View loads all plants and passes them to fn while holding the store lock.
func (s *Store) View(ctx context.Context, fn func(plants []models.Plant) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plants, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	return fn(plants)
}

// Corrupt reports whether the most recent load found an unreadable data file.
// Callers about to delete anything derived from the records must check it.
func (s *Store) Corrupt() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.corrupt
}

func (s *Store) setCorrupt(corrupt bool) {
	s.stateMu.Lock()
	s.corrupt = corrupt
	s.stateMu.Unlock()
}

// preserveCorrupt moves an unreadable data file aside so the next save does
// not destroy it.
func (s *Store) preserveCorrupt() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if !s.corrupt {
		return nil
	}

	backup := s.path + ".corrupt-" + s.now().UTC().Format(corruptSuffixFmt)
	if err := os.Rename(s.path, backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: preserve unreadable %s: %w", ErrStorageIO, s.path, err)
	}
	s.logger.Warn("moved unreadable plant data aside before overwrite", "path", s.path, "backup", backup)
	s.corrupt = false
	return nil
}

func decodePlants(data []byte) ([]models.Plant, error) {
	var plants []models.Plant
	if err := json.Unmarshal(data, &plants); err != nil {
		return nil, err
	}
	if plants == nil {
		return []models.Plant{}, nil
	}

	seen := make(map[int64]struct{}, len(plants))
	for _, p := range plants {
		if _, ok := seen[p.ID]; ok {
			return nil, fmt.Errorf("duplicate plant id %d", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return plants, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
