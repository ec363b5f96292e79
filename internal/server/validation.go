package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"plantkeeper/internal/api"
	"plantkeeper/internal/models"
)

const maxNameLength = 200

func parsePlantID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, badRequestCode(fmt.Errorf("invalid id %q", raw), ErrCodeInvalidID)
	}
	return id, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", badRequestCode(fmt.Errorf("name is required"), ErrCodeMissingRequired)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", badRequestCode(fmt.Errorf("name must be at most %d characters", maxNameLength), ErrCodeInvalidName)
	}
	return name, nil
}

// resolveWateredAt picks the watering time from a request. Nil means "now".
// Older clients send ISODate; when both fields are set they must agree.
func resolveWateredAt(req api.WaterPlantRequest) (*time.Time, error) {
	var parsed []time.Time
	for _, raw := range []string{req.LastWatered, req.ISODate} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		t, err := models.ParseWatered(raw)
		if err != nil {
			return nil, badRequestCode(err, ErrCodeInvalidTimestamp)
		}
		parsed = append(parsed, t)
	}

	switch len(parsed) {
	case 0:
		return nil, nil
	case 2:
		if !parsed[0].Equal(parsed[1]) {
			return nil, badRequestCode(fmt.Errorf("lastWatered and ISODate disagree"), ErrCodeConflictingWatered)
		}
	}
	return &parsed[0], nil
}
