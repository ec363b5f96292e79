package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"plantkeeper/internal/imagestore"
	"plantkeeper/internal/normalize"
)

// isolate points every config lookup at fresh temporary directories and
// clears the env overrides so the developer's own config never leaks in.
func isolate(t *testing.T) (home, workspace string) {
	t.Helper()
	home = t.TempDir()
	workspace = t.TempDir()

	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(workspace); err != nil {
		t.Fatalf("chdir workspace: %v", err)
	}

	t.Setenv("HOME", home)
	for _, key := range []string{
		configDirEnvKey, trustProjectConfigEnvKey, apiURLEnvKey, dataEnvKey,
		imagesDirEnvKey, tinifyKeyEnvKey, normalizeBackendEnvKey,
	} {
		t.Setenv(key, "")
	}
	return home, workspace
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.APIURL != "http://127.0.0.1:5000" {
		t.Fatalf("expected default API URL, got %q", cfg.APIURL)
	}
	if cfg.DataPath != "" {
		t.Fatalf("expected empty data path, got %q", cfg.DataPath)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.DiscoveryID != DefaultDiscoveryID {
		t.Fatalf("expected default discovery id, got %q", cfg.DiscoveryID)
	}
	if cfg.Images.DefaultName != imagestore.DefaultName {
		t.Fatalf("expected default image name, got %q", cfg.Images.DefaultName)
	}
	if cfg.Images.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Fatalf("expected max upload default %d, got %d", DefaultMaxUploadBytes, cfg.Images.MaxUploadBytes)
	}
	if !cfg.Images.RejectMediaTypeMismatch {
		t.Fatal("expected reject mismatch default true")
	}
	if cfg.Normalize.Backend != normalize.BackendLocal || cfg.Normalize.Size != normalize.DefaultSize {
		t.Fatalf("unexpected normalize defaults: %+v", cfg.Normalize)
	}
	if cfg.NormalizeTimeout() != DefaultNormalizeTimeout {
		t.Fatalf("expected default timeout, got %s", cfg.NormalizeTimeout())
	}
	if !cfg.Server.MetricsEnabled || len(cfg.Server.CORSAllowedOrigins) != 1 || cfg.Server.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte(`api_url = "http://localhost:9999"
log_level = "warn"

[images]
dir = "/srv/plants/static"

[normalize]
backend = "none"
timeout = "5s"
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://localhost:9999" {
		t.Fatalf("expected api_url 'http://localhost:9999', got %q", cfg.APIURL)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected log_level 'warn', got %q", cfg.LogLevel)
	}
	if cfg.Images.Dir != "/srv/plants/static" {
		t.Fatalf("expected images.dir, got %q", cfg.Images.Dir)
	}
	if cfg.Normalize.Backend != "none" || cfg.NormalizeTimeout() != 5*time.Second {
		t.Fatalf("unexpected normalize section: %+v", cfg.Normalize)
	}
	if cfg.Images.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Fatal("unset keys should keep their defaults")
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/"+ConfigFileName, &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("defaults should be preserved")
	}
}

func TestLoadFileInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte("api_url = \n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := Default()
	if err := loadFile(path, &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range []string{
		"api_url",
		"data_path",
		"log_level",
		"discovery_id",
		"images.dir",
		"images.allowed_media_types",
		"normalize.backend",
		"normalize.tinify_api_key",
		"server.metrics_enabled",
	} {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	if IsAllowedKey("invalid") {
		t.Fatal("expected 'invalid' to not be allowed")
	}
}

func TestGetKey(t *testing.T) {
	cfg := Default()
	cfg.DataPath = "/tmp/plants.json"
	cfg.Images.AllowedMediaTypes = []string{"image/png", "image/webp"}
	cfg.Normalize.TinifyAPIKey = "secret"
	cfg.Server.CORSAllowedOrigins = []string{"http://a", "http://b"}

	tests := []struct {
		key  string
		want string
	}{
		{key: "api_url", want: DefaultAPIURL},
		{key: "data_path", want: "/tmp/plants.json"},
		{key: "log_level", want: "debug"},
		{key: "images.allowed_media_types", want: "image/png,image/webp"},
		{key: "images.reject_media_type_mismatch", want: "true"},
		{key: "normalize.size", want: "500"},
		{key: "normalize.timeout", want: "30s"},
		{key: "normalize.tinify_api_key", want: "********"},
		{key: "server.cors_allowed_origins", want: "http://a,http://b"},
		{key: "server.metrics_enabled", want: "true"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := cfg.Get(tt.key)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}

	if _, err := cfg.Get("invalid"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

func TestSetKeyCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "new.toml")
	if err := SetKey(path, "api_url", "http://example:1"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://example:1" {
		t.Fatalf("expected api_url, got %q", cfg.APIURL)
	}
}

func TestSetKeyUpdatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.toml")
	if err := os.WriteFile(path, []byte("log_level = \"info\"\napi_url = \"http://keep\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := SetKey(path, "log_level", "error"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf("expected 'error', got %q", cfg.LogLevel)
	}
	if cfg.APIURL != "http://keep" {
		t.Fatalf("expected preserved api_url 'http://keep', got %q", cfg.APIURL)
	}
}

func TestSetKeyInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.toml")
	tests := []struct {
		key   string
		value string
	}{
		{key: "invalid_key", value: "value"},
		{key: "images.max_upload_bytes", value: "-1"},
		{key: "normalize.concurrency", value: "many"},
		{key: "normalize.timeout", value: "soon"},
		{key: "server.metrics_enabled", value: "maybe"},
		{key: "discovery_id", value: "not-a-uuid"},
	}
	for _, tt := range tests {
		if err := SetKey(path, tt.key, tt.value); err == nil {
			t.Fatalf("expected error for %s=%q", tt.key, tt.value)
		}
	}
}

func TestSetNestedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested.toml")
	if err := SetKey(path, "normalize.concurrency", "4"); err != nil {
		t.Fatalf("set concurrency: %v", err)
	}
	if err := SetKey(path, "normalize.backend", "tinify"); err != nil {
		t.Fatalf("set backend: %v", err)
	}
	if err := SetKey(path, "images.allowed_media_types", "image/png, image/jpeg"); err != nil {
		t.Fatalf("set media types: %v", err)
	}
	if err := SetKey(path, "server.metrics_enabled", "false"); err != nil {
		t.Fatalf("set metrics: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Normalize.Concurrency != 4 || cfg.Normalize.Backend != "tinify" {
		t.Fatalf("unexpected normalize section: %+v", cfg.Normalize)
	}
	if len(cfg.Images.AllowedMediaTypes) != 2 || cfg.Images.AllowedMediaTypes[1] != "image/jpeg" {
		t.Fatalf("unexpected media types: %v", cfg.Images.AllowedMediaTypes)
	}
	if cfg.Server.MetricsEnabled {
		t.Fatal("expected metrics disabled")
	}
}

func TestConfigDirOverridePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatalf("global path: %v", err)
	}
	if globalPath != filepath.Join(dir, ConfigFileName) {
		t.Fatalf("unexpected global path: %s", globalPath)
	}

	projectPath, err := ProjectPath()
	if err != nil {
		t.Fatalf("project path: %v", err)
	}
	if projectPath != filepath.Join(dir, ConfigFileName) {
		t.Fatalf("unexpected project path: %s", projectPath)
	}
}

func TestLoadDerivesPathsFromWorkspace(t *testing.T) {
	_, workspace := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Resolve symlinks the same way os.Getwd would have.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if cfg.DataPath != filepath.Join(wd, DefaultDataFileName) {
		t.Fatalf("expected data file in workspace %s, got %q", workspace, cfg.DataPath)
	}
	if cfg.Images.Dir != filepath.Join(wd, DefaultImagesDir) {
		t.Fatalf("expected images dir next to data file, got %q", cfg.Images.Dir)
	}
}

func TestLoadConfigDirOverride(t *testing.T) {
	_, workspace := isolate(t)
	configDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(configDir, ConfigFileName), []byte("api_url = \"http://127.0.0.1:9001\"\ndata_path = \"/data/plants.json\"\n"), 0644); err != nil {
		t.Fatalf("write override config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, ConfigFileName), []byte("api_url = \"http://ignored\"\n"), 0644); err != nil {
		t.Fatalf("write workspace config: %v", err)
	}

	t.Setenv(configDirEnvKey, configDir)
	t.Setenv(trustProjectConfigEnvKey, "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://127.0.0.1:9001" {
		t.Fatalf("expected config-dir api_url override, got %q", cfg.APIURL)
	}
	if cfg.Images.Dir != filepath.Join("/data", DefaultImagesDir) {
		t.Fatalf("expected images dir next to configured data path, got %q", cfg.Images.Dir)
	}
	if cfg.TrustedProjectConfigPath != "" {
		t.Fatalf("config dir override must bypass project config, got %q", cfg.TrustedProjectConfigPath)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(apiURLEnvKey, "http://example.com:8080")
	t.Setenv(dataEnvKey, "/tmp/override.json")
	t.Setenv(imagesDirEnvKey, "/tmp/images")
	t.Setenv(tinifyKeyEnvKey, "abc")
	t.Setenv(normalizeBackendEnvKey, "Tinify")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://example.com:8080" {
		t.Fatalf("expected env override for API URL, got %q", cfg.APIURL)
	}
	if cfg.DataPath != "/tmp/override.json" {
		t.Fatalf("expected env override for data path, got %q", cfg.DataPath)
	}
	if cfg.Images.Dir != "/tmp/images" {
		t.Fatalf("expected env override for images dir, got %q", cfg.Images.Dir)
	}
	if cfg.Normalize.TinifyAPIKey != "abc" || cfg.Normalize.Backend != normalize.BackendTinify {
		t.Fatalf("expected tinify env overrides, got %+v", cfg.Normalize)
	}
}

func TestLoadFallsBackToDefaultsWhenConfiguredEmpty(t *testing.T) {
	home, _ := isolate(t)
	content := "log_level = \"\"\n\n[normalize]\ntimeout = \"never\"\nconcurrency = 0\n\n[images]\nallowed_media_types = [\"IMAGE/PNG\", \"image/png\", \"bad type\"]\n"
	if err := os.WriteFile(filepath.Join(home, ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.NormalizeTimeout() != DefaultNormalizeTimeout || cfg.Normalize.Concurrency != DefaultNormalizeConcurrency {
		t.Fatalf("expected normalize defaults, got %+v", cfg.Normalize)
	}
	if len(cfg.Images.AllowedMediaTypes) != 1 || cfg.Images.AllowedMediaTypes[0] != "image/png" {
		t.Fatalf("expected normalized media types, got %v", cfg.Images.AllowedMediaTypes)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "discovery id", content: "discovery_id = \"plants\"\n"},
		{name: "backend", content: "[normalize]\nbackend = \"magic\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home, _ := isolate(t)
			if err := os.WriteFile(filepath.Join(home, ConfigFileName), []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadIgnoresProjectConfigByDefault(t *testing.T) {
	_, workspace := isolate(t)
	if err := os.WriteFile(filepath.Join(workspace, ConfigFileName), []byte("api_url = \"http://project\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("untrusted project config must be ignored, got %q", cfg.APIURL)
	}
	if cfg.TrustedProjectConfigPath != "" {
		t.Fatalf("expected no trusted project path, got %q", cfg.TrustedProjectConfigPath)
	}
}

func TestLoadAppliesProjectConfigWhenTrusted(t *testing.T) {
	home, workspace := isolate(t)
	if err := os.WriteFile(filepath.Join(home, ConfigFileName), []byte("api_url = \"http://home\"\nlog_level = \"info\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, ConfigFileName), []byte("api_url = \"http://project\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}
	t.Setenv(trustProjectConfigEnvKey, "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://project" {
		t.Fatalf("expected project override, got %q", cfg.APIURL)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected home value to survive, got %q", cfg.LogLevel)
	}
	if cfg.TrustedProjectConfigPath == "" {
		t.Fatal("expected trusted project path to be recorded")
	}
}

func TestLoadDoesNotTrustProjectConfigOnInvalidEnvValue(t *testing.T) {
	_, workspace := isolate(t)
	if err := os.WriteFile(filepath.Join(workspace, ConfigFileName), []byte("api_url = \"http://project\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}
	t.Setenv(trustProjectConfigEnvKey, "sure")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("expected project config to be ignored, got %q", cfg.APIURL)
	}
}
