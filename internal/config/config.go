// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for flai.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.flai/config.toml
//   - ~/.flai/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/flai-tui/internal/util"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete flai configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Backend connection
	Server ServerConfig `toml:"server" json:"server"`

	// Terminal UI
	UI UIConfig `toml:"ui" json:"ui"`

	// Log file
	Log LogConfig `toml:"log" json:"log"`

	// Local state and offline cache
	Storage StorageConfig `toml:"storage" json:"storage"`
}

// ServerConfig holds the FlaiChat backend settings.
type ServerConfig struct {
	// URL is the backend base URL (no trailing /api).
	URL string `toml:"url" json:"url"`

	// TimeoutSecs bounds regular requests. Streams are not bounded.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`

	// RequestsPerSecond caps the request rate. 0 disables the limit.
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
}

// Timeout returns TimeoutSecs as a duration.
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// UIConfig holds terminal UI settings.
type UIConfig struct {
	// Theme is "dark", "light" or "auto".
	Theme string `toml:"theme" json:"theme"`

	// ShowUsage shows the token usage footer under assistant messages.
	ShowUsage bool `toml:"show_usage" json:"show_usage"`

	// Markdown renders assistant text through glamour.
	Markdown bool `toml:"markdown" json:"markdown"`

	// ShowSources lists grounding sources under assistant messages.
	ShowSources bool `toml:"show_sources" json:"show_sources"`

	// Frontend is "tui" or "repl"; the REPL is used anyway without a TTY.
	Frontend string `toml:"frontend" json:"frontend"`
}

// LogConfig holds log file settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" json:"level"`

	// File is the log file path. Empty means <data dir>/flai.log.
	File string `toml:"file" json:"file"`
}

// StorageConfig holds local persistence settings.
type StorageConfig struct {
	// DataDir holds state.json, the cache database and the log file.
	// Empty means the config directory.
	DataDir string `toml:"data_dir" json:"data_dir"`

	// CacheEnabled keeps a copy of fetched conversations for offline display.
	CacheEnabled bool `toml:"cache_enabled" json:"cache_enabled"`

	// CachePath is the cache database path. Empty means <data dir>/cache.db.
	CachePath string `toml:"cache_path" json:"cache_path"`

	// UsageRetentionDays is how long the usage ledger keeps records. 0 keeps
	// them forever.
	UsageRetentionDays int `toml:"usage_retention_days" json:"usage_retention_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			URL:               "http://localhost:8000",
			TimeoutSecs:       30,
			RequestsPerSecond: 10,
		},
		UI: UIConfig{
			Theme:       "dark",
			ShowUsage:   true,
			Markdown:    true,
			ShowSources: true,
			Frontend:    "tui",
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			CacheEnabled:       true,
			UsageRetentionDays: 90,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the flai configuration directory path. FLAI_HOME
// overrides the default ~/.flai.
func ConfigDir() (string, error) {
	if dir := os.Getenv("FLAI_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".flai"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// DataDir returns the directory for state, cache and logs.
func (c *Config) DataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir, nil
	}
	return ConfigDir()
}

// StatePath returns the app state file path.
func (c *Config) StatePath() (string, error) {
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.json"), nil
}

// CachePath returns the offline cache database path.
func (c *Config) CachePath() (string, error) {
	if c.Storage.CachePath != "" {
		return c.Storage.CachePath, nil
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.db"), nil
}

// UsageDir returns the directory of the usage ledger.
func (c *Config) UsageDir() (string, error) {
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "usage"), nil
}

// LogPath returns the log file path.
func (c *Config) LogPath() (string, error) {
	if c.Log.File != "" {
		return c.Log.File, nil
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "flai.log"), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// Config files hold the backend URL and may sit beside tokens; keep them 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err != nil {
			// broken file: run on defaults and report it
			fallback, ferr := finish(Default())
			if ferr != nil {
				return nil, ferr
			}
			return fallback, err
		}
		return cfg, nil
	}
	return finish(Default())
}

// LoadTOML loads configuration from a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadJSON loads configuration from a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadFromPath loads configuration from a specific file path with full
// validation. Booleans absent from the file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

// finish applies environment overrides, defaults and validation.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.Server.URL == "" {
		cfg.Server.URL = defaults.Server.URL
	}
	if cfg.Server.TimeoutSecs == 0 {
		cfg.Server.TimeoutSecs = defaults.Server.TimeoutSecs
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.UI.Frontend == "" {
		cfg.UI.Frontend = defaults.UI.Frontend
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	return nil
}

// SetDefaults normalizes values that have a canonical form.
func (c *Config) SetDefaults() {
	_ = fillDefaults(c)
	c.Server.URL = strings.TrimRight(c.Server.URL, "/")
	c.UI.Theme = strings.ToLower(c.UI.Theme)
	c.UI.Frontend = strings.ToLower(c.UI.Frontend)
	c.Log.Level = strings.ToLower(c.Log.Level)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# flai configuration file\n")
	b.WriteString("# Generated by flai - edit with care\n\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Server
	if u, err := url.Parse(c.Server.URL); err != nil || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "server.url",
			Message: fmt.Sprintf("invalid URL '%s'", c.Server.URL),
		})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{
			Field:   "server.url",
			Message: fmt.Sprintf("unsupported scheme '%s', must be http or https", u.Scheme),
		})
	}
	if c.Server.TimeoutSecs < 0 || c.Server.TimeoutSecs > 600 {
		errs = append(errs, ValidationError{
			Field:   "server.timeout_secs",
			Message: fmt.Sprintf("must be between 0 and 600, got %d", c.Server.TimeoutSecs),
		})
	}
	if c.Server.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.requests_per_second",
			Message: "must not be negative",
		})
	}

	if c.Storage.UsageRetentionDays < 0 || c.Storage.UsageRetentionDays > 3650 {
		errs = append(errs, ValidationError{
			Field:   "storage.usage_retention_days",
			Message: fmt.Sprintf("must be between 0 and 3650, got %d", c.Storage.UsageRetentionDays),
		})
	}

	// UI
	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[c.UI.Theme] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}
	validFrontends := map[string]bool{"tui": true, "repl": true}
	if !validFrontends[c.UI.Frontend] {
		errs = append(errs, ValidationError{
			Field:   "ui.frontend",
			Message: fmt.Sprintf("invalid frontend '%s', must be one of: tui, repl", c.UI.Frontend),
		})
	}

	// Log
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - FLAI_SERVER_URL: overrides server.url
//   - FLAI_LOG_LEVEL: overrides log.level
//   - FLAI_DATA_DIR: overrides storage.data_dir
//   - FLAI_THEME: overrides ui.theme
//   - FLAI_NO_CACHE: set to "1" or "true" to disable the offline cache
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("FLAI_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("FLAI_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FLAI_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("FLAI_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("FLAI_NO_CACHE"); v != "" {
		if v == "1" || strings.EqualFold(v, "true") {
			c.Storage.CacheEnabled = false
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "server.url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "ui.theme").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"server.url",
		"server.timeout_secs",
		"server.requests_per_second",
		"ui.theme",
		"ui.show_usage",
		"ui.markdown",
		"ui.show_sources",
		"ui.frontend",
		"log.level",
		"log.file",
		"storage.data_dir",
		"storage.cache_enabled",
		"storage.cache_path",
		"storage.usage_retention_days",
	}
}

// Clone creates a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns an indented JSON rendering for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
