package imagestore

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

const fallbackContentMediaType = "application/octet-stream"

// DefaultAllowedMediaTypes are accepted when no allow-list is configured.
var DefaultAllowedMediaTypes = []string{"image/jpeg", "image/png", "image/gif"}

var mediaTypeAliases = map[string]string{
	"image/jpg":   "image/jpeg",
	"image/pjpeg": "image/jpeg",
	"image/x-png": "image/png",
}

var extensionsByMediaType = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/gif":  {".gif"},
	"image/webp": {".webp"},
}

// ConfigurePolicy overrides the media type allow-list and mismatch handling.
// An empty allow-list restores DefaultAllowedMediaTypes.
func (m *Manager) ConfigurePolicy(allowedMediaTypes []string, rejectMismatch bool) {
	normalized := map[string]struct{}{}
	for _, raw := range allowedMediaTypes {
		mediaType, err := NormalizeMediaType(raw)
		if err != nil || mediaType == "" {
			continue
		}
		normalized[mediaType] = struct{}{}
	}
	if len(normalized) == 0 {
		for _, mediaType := range DefaultAllowedMediaTypes {
			normalized[mediaType] = struct{}{}
		}
	}
	m.allowedMediaTypes = normalized
	m.rejectMismatch = rejectMismatch
}

// ValidateUpload resolves the media type of an upload from the declared and
// sniffed types. The declared type wins when both are usable.
func (m *Manager) ValidateUpload(declaredMediaType, sniffedMediaType string) (string, error) {
	declared, err := NormalizeMediaType(declaredMediaType)
	if err != nil {
		return "", err
	}
	sniffed, err := NormalizeMediaType(sniffedMediaType)
	if err != nil {
		return "", err
	}
	if declared == fallbackContentMediaType {
		declared = ""
	}
	if sniffed == fallbackContentMediaType {
		sniffed = ""
	}

	if sniffed != "" && !m.allowed(sniffed) {
		return "", fmt.Errorf("%w: content is %s", ErrDisallowedType, sniffed)
	}
	if declared != "" && sniffed != "" && declared != sniffed && m.rejectMismatch {
		return "", fmt.Errorf("%w: declared %s, content is %s", ErrMediaTypeMismatch, declared, sniffed)
	}

	final := declared
	if final == "" {
		final = sniffed
	}
	if final == "" {
		return "", fmt.Errorf("%w: unknown media type", ErrDisallowedType)
	}
	if !m.allowed(final) {
		return "", fmt.Errorf("%w: %s", ErrDisallowedType, final)
	}
	return final, nil
}

// Extension picks the stored file extension: the original one lower-cased
// when it fits the media type, otherwise one derived from the media type.
func Extension(filename, mediaType string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	candidates := extensionsByMediaType[mediaType]
	for _, candidate := range candidates {
		if ext == candidate {
			return ext
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return strings.ToLower(exts[0])
	}
	return ".img"
}

// NormalizeMediaType strips parameters, lower-cases and resolves common aliases.
func NormalizeMediaType(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid media type %q", ErrDisallowedType, raw)
	}
	parsed = strings.ToLower(strings.TrimSpace(parsed))
	if alias, ok := mediaTypeAliases[parsed]; ok {
		parsed = alias
	}
	return parsed, nil
}

func (m *Manager) allowed(mediaType string) bool {
	_, ok := m.allowedMediaTypes[mediaType]
	return ok
}
