package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"plantkeeper/internal/imagestore"
	"plantkeeper/internal/models"
	"plantkeeper/internal/store"
)

// PlantService orchestrates plant workflows over the record store and the
// image manager. Errors it returns are already classified for HTTP.
type PlantService struct {
	store  store.PlantStore
	images *imagestore.Manager
	logger *slog.Logger
	now    func() time.Time
}

// ImageUpload describes one received image file.
type ImageUpload struct {
	Filename          string
	DeclaredMediaType string
	SniffedMediaType  string
	Content           io.Reader
}

// NewPlantService constructs a PlantService.
func NewPlantService(st store.PlantStore, images *imagestore.Manager, logger *slog.Logger) *PlantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlantService{
		store:  st,
		images: images,
		logger: logger.With("component", "plants"),
		now:    time.Now,
	}
}

// Images returns the image manager used by the service.
func (s *PlantService) Images() *imagestore.Manager {
	return s.images
}

// List returns every plant in stored order.
func (s *PlantService) List(ctx context.Context) ([]models.Plant, error) {
	var out []models.Plant
	err := s.store.View(ctx, func(plants []models.Plant) error {
		s.resolveDefaultImages(plants)
		out = plants
		return nil
	})
	if err != nil {
		return nil, storeFailure(err)
	}
	return out, nil
}

// Get returns the plant with id.
func (s *PlantService) Get(ctx context.Context, id int64) (models.Plant, error) {
	var out models.Plant
	err := s.store.View(ctx, func(plants []models.Plant) error {
		s.resolveDefaultImages(plants)
		p, ok := store.FindByID(plants, id)
		if !ok {
			return plantNotFound(id)
		}
		out = p
		return nil
	})
	if err != nil {
		return models.Plant{}, storeFailure(err)
	}
	return out, nil
}

// Create adds a plant named name with a fresh id and the default image.
func (s *PlantService) Create(ctx context.Context, name string) (models.Plant, error) {
	name, err := normalizeName(name)
	if err != nil {
		return models.Plant{}, err
	}

	var created models.Plant
	err = s.store.Update(ctx, func(plants []models.Plant) ([]models.Plant, error) {
		created = models.NewPlant(s.store.NextID(), name)
		created.ImagePath = s.images.DefaultPath()
		return append(plants, created), nil
	})
	if err != nil {
		return models.Plant{}, storeFailure(err)
	}
	s.logger.Info("plant created", "id", created.ID, "name", created.Name)
	return created, nil
}

// Rename changes the display name of plant id.
func (s *PlantService) Rename(ctx context.Context, id int64, name string) (models.Plant, error) {
	name, err := normalizeName(name)
	if err != nil {
		return models.Plant{}, err
	}
	return s.mutate(ctx, id, func(p *models.Plant) {
		p.Name = name
	})
}

// Water records a watering of plant id at the given time, or now when at is nil.
func (s *PlantService) Water(ctx context.Context, id int64, at *time.Time) (models.Plant, error) {
	when := s.now()
	if at != nil {
		when = *at
	}
	return s.mutate(ctx, id, func(p *models.Plant) {
		p.Water(when)
	})
}

// Delete removes plant id and then its image file unless it is the default.
func (s *PlantService) Delete(ctx context.Context, id int64) error {
	var removed models.Plant
	err := s.store.Update(ctx, func(plants []models.Plant) ([]models.Plant, error) {
		s.resolveDefaultImages(plants)
		p, ok := store.FindByID(plants, id)
		if !ok {
			return nil, plantNotFound(id)
		}
		removed = p
		return store.RemoveByID(plants, id), nil
	})
	if err != nil {
		return storeFailure(err)
	}

	s.logger.Info("plant deleted", "id", id)
	s.removeImage(removed.ImagePath, id)
	return nil
}

// ReplaceImage stores upload as the new image of plant id. The type is
// checked before anything touches the disk, the previous file is removed only
// after the record is saved, and the new file is removed again if the save
// fails.
func (s *PlantService) ReplaceImage(ctx context.Context, id int64, upload ImageUpload) (models.Plant, error) {
	if upload.Content == nil {
		return models.Plant{}, badRequestCode(fmt.Errorf("image file is required"), ErrCodeMissingImage)
	}
	mediaType, err := s.images.ValidateUpload(upload.DeclaredMediaType, upload.SniffedMediaType)
	if err != nil {
		return models.Plant{}, classifyImageError(err)
	}
	if _, err := s.Get(ctx, id); err != nil {
		return models.Plant{}, err
	}

	newPath, err := s.images.AcceptUpload(ctx, upload.Content, imagestore.Extension(upload.Filename, mediaType))
	if err != nil {
		return models.Plant{}, classifyImageError(err)
	}

	var (
		updated models.Plant
		oldPath string
	)
	err = s.store.Update(ctx, func(plants []models.Plant) ([]models.Plant, error) {
		s.resolveDefaultImages(plants)
		i := store.IndexOf(plants, id)
		if i < 0 {
			return nil, plantNotFound(id)
		}
		oldPath = s.images.ReplaceImage(&plants[i], newPath)
		updated = plants[i]
		return plants, nil
	})
	if err != nil {
		if rmErr := s.images.DeleteIfNotDefault(newPath); rmErr != nil {
			s.logger.Warn("remove uncommitted upload", "path", newPath, "error", rmErr)
		}
		return models.Plant{}, storeFailure(err)
	}

	s.logger.Info("plant image replaced", "id", id, "image", newPath, "media_type", mediaType)
	if oldPath != "" {
		s.removeImage(oldPath, id)
	}
	return updated, nil
}

// SweepImages reports image files no plant refers to and referenced files
// that are missing. Orphans are deleted when apply is set. An unreadable data
// file makes every image look orphaned, so the sweep refuses to run until the
// file is repaired.
func (s *PlantService) SweepImages(ctx context.Context, apply bool) (imagestore.SweepResult, error) {
	var referenced []string
	err := s.store.View(ctx, func(plants []models.Plant) error {
		if s.store.Corrupt() {
			return storageCorrupt(fmt.Errorf("%w; refusing to sweep images until it is repaired", store.ErrStorageCorrupt))
		}
		s.resolveDefaultImages(plants)
		referenced = make([]string, 0, len(plants))
		for _, p := range plants {
			referenced = append(referenced, p.ImagePath)
		}
		return nil
	})
	if err != nil {
		return imagestore.SweepResult{}, storeFailure(err)
	}
	result, err := s.images.Sweep(referenced, apply)
	if err != nil {
		return imagestore.SweepResult{}, imageFailure(err)
	}
	return result, nil
}

func (s *PlantService) mutate(ctx context.Context, id int64, fn func(p *models.Plant)) (models.Plant, error) {
	var updated models.Plant
	err := s.store.Update(ctx, func(plants []models.Plant) ([]models.Plant, error) {
		s.resolveDefaultImages(plants)
		i := store.IndexOf(plants, id)
		if i < 0 {
			return nil, plantNotFound(id)
		}
		fn(&plants[i])
		updated = plants[i]
		return plants, nil
	})
	if err != nil {
		return models.Plant{}, storeFailure(err)
	}
	return updated, nil
}

func (s *PlantService) removeImage(imagePath string, id int64) {
	if err := s.images.DeleteIfNotDefault(imagePath); err != nil {
		s.logger.Warn("remove orphaned image", "id", id, "path", imagePath, "error", err)
	}
}

// resolveDefaultImages points records that fell back to the built-in default
// path at the configured default image instead.
func (s *PlantService) resolveDefaultImages(plants []models.Plant) {
	if s.images.IsDefault(models.DefaultImagePath) {
		return
	}
	for i := range plants {
		if plants[i].ImagePath == models.DefaultImagePath {
			plants[i].ImagePath = s.images.DefaultPath()
		}
	}
}

func plantNotFound(id int64) error {
	return notFound(fmt.Errorf("%w: %d", store.ErrNotFound, id))
}

func classifyImageError(err error) error {
	switch {
	case errors.Is(err, imagestore.ErrDisallowedType):
		return badRequestCode(err, ErrCodeDisallowedMediaType)
	case errors.Is(err, imagestore.ErrMediaTypeMismatch):
		return badRequestCode(err, ErrCodeMediaTypeMismatch)
	case errors.Is(err, imagestore.ErrInvalidPath):
		return badRequest(err)
	default:
		return imageFailure(err)
	}
}
