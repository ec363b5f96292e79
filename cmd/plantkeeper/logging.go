package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"plantkeeper/internal/config"
)

const logLevelEnvKey = "PLANTKEEPER_LOG_LEVEL"

type levelSource string

const (
	sourceFlag    levelSource = "flag"
	sourceEnv     levelSource = "env"
	sourceConfig  levelSource = "config"
	sourceDefault levelSource = "default"
)

// configureLoggerForCLI installs the default slog logger. An invalid --log-level
// is an error; invalid env or config values fall back to the default level and
// produce a warning for the caller to print.
func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	envLevel := os.Getenv(logLevelEnvKey)
	rawLevel, source := selectedLogLevel(flagLevel, envLevel, configLevel)

	level, err := parseLogLevel(rawLevel)
	if err == nil {
		slog.SetDefault(newLogger(level))
		return "", nil
	}

	var warning string
	switch source {
	case sourceFlag:
		return "", fmt.Errorf("invalid --log-level %q", flagLevel)
	case sourceEnv:
		warning = fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel)
	case sourceConfig:
		warning = fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", configLevel, config.DefaultLogLevel)
	}
	fallback, _ := parseLogLevel(config.DefaultLogLevel)
	slog.SetDefault(newLogger(fallback))
	return warning, nil
}

func selectedLogLevel(flagLevel, envLevel, configLevel string) (string, levelSource) {
	switch {
	case strings.TrimSpace(flagLevel) != "":
		return flagLevel, sourceFlag
	case strings.TrimSpace(envLevel) != "":
		return envLevel, sourceEnv
	case strings.TrimSpace(configLevel) != "":
		return configLevel, sourceConfig
	default:
		return "", sourceDefault
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return slog.LevelDebug, nil
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}

	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelDebug, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).With("app", "plantkeeper")
}
