package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultImagePath is the shared image used by plants without an upload.
	DefaultImagePath = "/static/defaultPlant.png"

	// WateredLayout is the persisted form of LastWatered: UTC, millisecond
	// precision, fixed width so that lexical order matches time order.
	WateredLayout = "2006-01-02T15:04:05.000Z"

	legacyImagePrefix = "./"
)

// Plant is one tracked plant.
type Plant struct {
	ID          int64
	Name        string
	LastWatered *time.Time
	ImagePath   string
}

// NewPlant returns a plant with the given id and name and all other fields defaulted.
func NewPlant(id int64, name string) Plant {
	return Plant{
		ID:        id,
		Name:      name,
		ImagePath: DefaultImagePath,
	}
}

// Watered reports whether the plant has ever been watered.
func (p Plant) Watered() bool {
	return p.LastWatered != nil
}

// Water records a watering at t.
func (p *Plant) Water(t time.Time) {
	at := t.UTC().Truncate(time.Millisecond)
	p.LastWatered = &at
}

type plantJSON struct {
	ID          *int64  `json:"id"`
	Name        string  `json:"name"`
	LastWatered *string `json:"lastWatered,omitempty"`
	ImagePath   *string `json:"imagePath,omitempty"`
}

// MarshalJSON writes the persisted representation. An unset LastWatered is omitted.
func (p Plant) MarshalJSON() ([]byte, error) {
	id := p.ID
	imagePath := p.ImagePath
	if strings.TrimSpace(imagePath) == "" {
		imagePath = DefaultImagePath
	}
	out := plantJSON{ID: &id, Name: p.Name, ImagePath: &imagePath}
	if p.LastWatered != nil {
		formatted := FormatWatered(*p.LastWatered)
		out.LastWatered = &formatted
	}
	return json.Marshal(out)
}

// UnmarshalJSON reconstructs a plant. Missing lastWatered means unset and
// missing imagePath means the default image; a missing id is an error.
func (p *Plant) UnmarshalJSON(data []byte) error {
	var raw plantJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID == nil {
		return fmt.Errorf("plant id is required")
	}
	if *raw.ID < 0 {
		return fmt.Errorf("plant id must be >= 0, got %d", *raw.ID)
	}

	out := Plant{ID: *raw.ID, Name: raw.Name, ImagePath: DefaultImagePath}
	if raw.ImagePath != nil {
		if imagePath := normalizeImagePath(*raw.ImagePath); imagePath != "" {
			out.ImagePath = imagePath
		}
	}
	if raw.LastWatered != nil && strings.TrimSpace(*raw.LastWatered) != "" {
		watered, err := ParseWatered(*raw.LastWatered)
		if err != nil {
			return fmt.Errorf("plant %d: %w", out.ID, err)
		}
		out.LastWatered = &watered
	}

	*p = out
	return nil
}

// FormatWatered renders t in the persisted timestamp form.
func FormatWatered(t time.Time) string {
	return t.UTC().Format(WateredLayout)
}

// ParseWatered accepts RFC 3339 timestamps with or without fractional seconds.
func ParseWatered(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid lastWatered %q: expected ISO-8601 timestamp", value)
	}
	return t.UTC(), nil
}

func normalizeImagePath(value string) string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, legacyImagePrefix) {
		value = value[1:]
	}
	return value
}
