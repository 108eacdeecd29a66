package main

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/c360/docmesh/config"
)

// globalFlags holds the flags shared by every sub-command
type globalFlags struct {
	ConfigPaths []string
	LogLevel    string
	LogFormat   string
	Debug       bool
}

func (f *globalFlags) validate() error {
	if f.Debug {
		f.LogLevel = "debug"
	}
	if f.LogLevel != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(f.LogLevel)) {
		return fmt.Errorf("invalid log level: %s", f.LogLevel)
	}
	if f.LogFormat != "" && !slices.Contains([]string{"json", "text"}, strings.ToLower(f.LogFormat)) {
		return fmt.Errorf("invalid log format: %s", f.LogFormat)
	}
	for _, path := range f.ConfigPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file not found: %s", path)
		}
	}
	return nil
}

// loadConfig merges the configured layers, environment overrides and the
// logging flags into one validated configuration.
func (f *globalFlags) loadConfig() (*config.Config, *config.Loader, error) {
	loader := config.NewLoader()
	for _, path := range f.ConfigPaths {
		loader.AddLayer(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	if f.LogLevel != "" {
		cfg.Log.Level = strings.ToLower(f.LogLevel)
	}
	if f.LogFormat != "" {
		cfg.Log.Format = strings.ToLower(f.LogFormat)
	}
	return cfg, loader, nil
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
