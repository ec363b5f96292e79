package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"plantkeeper/internal/imagestore"
	"plantkeeper/internal/normalize"
)

const (
	DefaultAPIURL       = "http://127.0.0.1:5000"
	DefaultDataFileName = "plants.json"
	DefaultImagesDir    = "static"
	DefaultLogLevel     = "debug"
	DefaultDiscoveryID  = "73182a69-3fdf-4b5a-900a-e5369803afbb"

	DefaultMaxUploadBytes     int64 = 20 * 1024 * 1024
	DefaultMultipartMaxMemory int64 = 8 * 1024 * 1024
	DefaultRejectMismatch           = true

	DefaultNormalizeConcurrency = 2
	DefaultNormalizeTimeout     = 30 * time.Second

	ConfigFileName = ".plantkeeper.toml"

	configDirEnvKey          = "PLANTKEEPER_CONFIG_DIR"
	trustProjectConfigEnvKey = "PLANTKEEPER_TRUST_PROJECT_CONFIG"

	apiURLEnvKey           = "PLANTKEEPER_API_URL"
	dataEnvKey             = "PLANTKEEPER_DATA"
	imagesDirEnvKey        = "PLANTKEEPER_IMAGES_DIR"
	tinifyKeyEnvKey        = "PLANTKEEPER_TINIFY_KEY"
	normalizeBackendEnvKey = "PLANTKEEPER_NORMALIZE_BACKEND"
)

// ImageConfig controls the image storage directory and upload policy.
type ImageConfig struct {
	Dir                     string   `toml:"dir"`
	DefaultName             string   `toml:"default_name"`
	MaxUploadBytes          int64    `toml:"max_upload_bytes"`
	MultipartMaxMemory      int64    `toml:"multipart_max_memory"`
	AllowedMediaTypes       []string `toml:"allowed_media_types"`
	RejectMediaTypeMismatch bool     `toml:"reject_media_type_mismatch"`
}

// NormalizeConfig controls background image normalization.
type NormalizeConfig struct {
	Backend      string `toml:"backend"`
	Size         int    `toml:"size"`
	Concurrency  int    `toml:"concurrency"`
	Timeout      string `toml:"timeout"`
	TinifyAPIKey string `toml:"tinify_api_key"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	MetricsEnabled     bool     `toml:"metrics_enabled"`
}

// Config defines runtime configuration for plantkeeper.
type Config struct {
	APIURL                   string          `toml:"api_url"`
	DataPath                 string          `toml:"data_path"`
	LogLevel                 string          `toml:"log_level"`
	DiscoveryID              string          `toml:"discovery_id"`
	Images                   ImageConfig     `toml:"images"`
	Normalize                NormalizeConfig `toml:"normalize"`
	Server                   ServerConfig    `toml:"server"`
	TrustedProjectConfigPath string          `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:      DefaultAPIURL,
		DataPath:    "",
		LogLevel:    DefaultLogLevel,
		DiscoveryID: DefaultDiscoveryID,
		Images: ImageConfig{
			DefaultName:             imagestore.DefaultName,
			MaxUploadBytes:          DefaultMaxUploadBytes,
			MultipartMaxMemory:      DefaultMultipartMaxMemory,
			RejectMediaTypeMismatch: DefaultRejectMismatch,
		},
		Normalize: NormalizeConfig{
			Backend:     normalize.BackendLocal,
			Size:        normalize.DefaultSize,
			Concurrency: DefaultNormalizeConcurrency,
			Timeout:     DefaultNormalizeTimeout.String(),
		},
		Server: ServerConfig{
			CORSAllowedOrigins: []string{"*"},
			MetricsEnabled:     true,
		},
	}
}

// NormalizeTimeout returns the parsed per-job timeout.
func (c *Config) NormalizeTimeout() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.Normalize.Timeout))
	if err != nil || d <= 0 {
		return DefaultNormalizeTimeout
	}
	return d
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, ConfigFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"data_path",
	"log_level",
	"discovery_id",
	"images.dir",
	"images.default_name",
	"images.max_upload_bytes",
	"images.multipart_max_memory",
	"images.allowed_media_types",
	"images.reject_media_type_mismatch",
	"normalize.backend",
	"normalize.size",
	"normalize.concurrency",
	"normalize.timeout",
	"normalize.tinify_api_key",
	"server.cors_allowed_origins",
	"server.metrics_enabled",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "data_path":
		return c.DataPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "discovery_id":
		return c.DiscoveryID, nil
	case "images.dir":
		return c.Images.Dir, nil
	case "images.default_name":
		return c.Images.DefaultName, nil
	case "images.max_upload_bytes":
		return strconv.FormatInt(c.Images.MaxUploadBytes, 10), nil
	case "images.multipart_max_memory":
		return strconv.FormatInt(c.Images.MultipartMaxMemory, 10), nil
	case "images.allowed_media_types":
		return strings.Join(c.Images.AllowedMediaTypes, ","), nil
	case "images.reject_media_type_mismatch":
		return strconv.FormatBool(c.Images.RejectMediaTypeMismatch), nil
	case "normalize.backend":
		return c.Normalize.Backend, nil
	case "normalize.size":
		return strconv.Itoa(c.Normalize.Size), nil
	case "normalize.concurrency":
		return strconv.Itoa(c.Normalize.Concurrency), nil
	case "normalize.timeout":
		return c.Normalize.Timeout, nil
	case "normalize.tinify_api_key":
		if c.Normalize.TinifyAPIKey == "" {
			return "", nil
		}
		return "********", nil
	case "server.cors_allowed_origins":
		return strings.Join(c.Server.CORSAllowedOrigins, ","), nil
	case "server.metrics_enabled":
		return strconv.FormatBool(c.Server.MetricsEnabled), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, ConfigFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, ConfigFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, ConfigFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if apiURL := os.Getenv(apiURLEnvKey); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dataPath := os.Getenv(dataEnvKey); dataPath != "" {
		cfg.DataPath = dataPath
	}
	if imagesDir := os.Getenv(imagesDirEnvKey); imagesDir != "" {
		cfg.Images.Dir = imagesDir
	}
	if key := strings.TrimSpace(os.Getenv(tinifyKeyEnvKey)); key != "" {
		cfg.Normalize.TinifyAPIKey = key
	}
	if backend := strings.TrimSpace(os.Getenv(normalizeBackendEnvKey)); backend != "" {
		cfg.Normalize.Backend = backend
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects values that cannot be repaired by falling back to a default.
func (c *Config) Validate() error {
	if _, err := uuid.Parse(c.DiscoveryID); err != nil {
		return fmt.Errorf("discovery_id must be a UUID: %w", err)
	}
	switch c.Normalize.Backend {
	case normalize.BackendLocal, normalize.BackendTinify, normalize.BackendNone:
	default:
		return fmt.Errorf("normalize.backend must be one of %s, %s, %s; got %q",
			normalize.BackendLocal, normalize.BackendTinify, normalize.BackendNone, c.Normalize.Backend)
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "images.max_upload_bytes", "images.multipart_max_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "normalize.size", "normalize.concurrency":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "normalize.timeout":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration such as 30s", key)
		}
		return parsed.String(), nil
	case "images.reject_media_type_mismatch", "server.metrics_enabled":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "images.allowed_media_types", "server.cors_allowed_origins":
		return splitCSV(value), nil
	case "discovery_id":
		parsed, err := uuid.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be a UUID", key)
		}
		return parsed.String(), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// applyDefaults fills in values that were left empty or invalid. The data
// file defaults to the working directory and the image directory to a
// sibling of the data file.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.DiscoveryID) == "" {
		c.DiscoveryID = DefaultDiscoveryID
	}
	if c.DataPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			c.DataPath = filepath.Join(cwd, DefaultDataFileName)
		}
	}
	if c.Images.Dir == "" && c.DataPath != "" {
		c.Images.Dir = filepath.Join(filepath.Dir(c.DataPath), DefaultImagesDir)
	}
	if strings.TrimSpace(c.Images.DefaultName) == "" {
		c.Images.DefaultName = imagestore.DefaultName
	}
	if c.Images.MaxUploadBytes <= 0 {
		c.Images.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Images.MultipartMaxMemory <= 0 {
		c.Images.MultipartMaxMemory = DefaultMultipartMaxMemory
	}
	c.Images.AllowedMediaTypes = normalizeConfiguredMediaTypes(c.Images.AllowedMediaTypes)

	c.Normalize.Backend = strings.ToLower(strings.TrimSpace(c.Normalize.Backend))
	if c.Normalize.Backend == "" {
		c.Normalize.Backend = normalize.BackendLocal
	}
	if c.Normalize.Size <= 0 {
		c.Normalize.Size = normalize.DefaultSize
	}
	if c.Normalize.Concurrency <= 0 {
		c.Normalize.Concurrency = DefaultNormalizeConcurrency
	}
	c.Normalize.Timeout = c.NormalizeTimeout().String()

	if len(c.Server.CORSAllowedOrigins) == 0 {
		c.Server.CORSAllowedOrigins = []string{"*"}
	}
}

func normalizeConfiguredMediaTypes(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		normalized, err := imagestore.NormalizeMediaType(raw)
		if err != nil || normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
