package store

import (
	"context"
	"errors"

	"plantkeeper/internal/models"
)

var (
	// ErrNotFound reports that no plant matches the requested id.
	ErrNotFound = errors.New("plant not found")
	// ErrStorageIO reports a failed read or write of the backing file.
	ErrStorageIO = errors.New("plant storage i/o failure")
	// ErrStorageCorrupt reports that the backing file exists but could not be
	// parsed, so the loaded collection does not reflect what is on disk.
	ErrStorageCorrupt = errors.New("plant data file is unreadable")
)

// MutateFunc receives the full plant set and returns the set to persist.
type MutateFunc func(plants []models.Plant) ([]models.Plant, error)

// PlantStore abstracts the durable plant collection.
type PlantStore interface {
	LoadAll(ctx context.Context) ([]models.Plant, error)
	SaveAll(ctx context.Context, plants []models.Plant) error
	NextID() int64
	Update(ctx context.Context, fn MutateFunc) error
	View(ctx context.Context, fn func(plants []models.Plant) error) error
	Corrupt() bool
}

var _ PlantStore = (*Store)(nil)

// FindByID returns the plant with the given id.
func FindByID(plants []models.Plant, id int64) (models.Plant, bool) {
	if i := IndexOf(plants, id); i >= 0 {
		return plants[i], true
	}
	return models.Plant{}, false
}

// IndexOf returns the position of the plant with the given id, or -1.
func IndexOf(plants []models.Plant, id int64) int {
	for i := range plants {
		if plants[i].ID == id {
			return i
		}
	}
	return -1
}

// RemoveByID returns a new slice without the plant with the given id.
func RemoveByID(plants []models.Plant, id int64) []models.Plant {
	out := make([]models.Plant, 0, len(plants))
	for _, p := range plants {
		if p.ID == id {
			continue
		}
		out = append(out, p)
	}
	return out
}
