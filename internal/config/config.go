// Package config loads designedit settings from an optional TOML file,
// .env files and DESIGNEDIT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/manash/designedit/pkg/models"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Database DatabaseConfig `toml:"database"`
	Provider ProviderConfig `toml:"provider"`
	Session  SessionConfig  `toml:"session"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Addr            string `toml:"addr"`
	ReadTimeoutSec  int    `toml:"read_timeout_sec"`
	WriteTimeoutSec int    `toml:"write_timeout_sec"`
	IdleTimeoutSec  int    `toml:"idle_timeout_sec"`
	MaxUploadMB     int    `toml:"max_upload_mb"`
}

// StorageConfig places every session scope under Root. PublicURL is the
// URL prefix the media route is mounted at.
type StorageConfig struct {
	Root      string `toml:"root"`
	PublicURL string `toml:"public_url"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ProviderConfig struct {
	Name       string `toml:"name"`
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	TimeoutSec int    `toml:"timeout_sec"`
	Verbose    bool   `toml:"verbose"`
}

type SessionConfig struct {
	CookieName       string `toml:"cookie_name"`
	CookieMaxAgeDays int    `toml:"cookie_max_age_days"`
	SecureCookie     bool   `toml:"secure_cookie"`
}

type LogConfig struct {
	Level string `toml:"level"`
	Env   string `toml:"env"`
}

// Scope directories under Storage.Root.
const (
	ScopeSessions = "sessions"
	ScopeDesigns  = "designs"
	recordsDir    = "records"
)

// DataDir is where designedit keeps its state by default.
func DataDir() string {
	if dir := os.Getenv("DESIGNEDIT_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".designedit"
	}
	return filepath.Join(home, ".designedit")
}

func DefaultPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

func Default() *Config {
	dir := DataDir()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeoutSec:  30,
			WriteTimeoutSec: 200,
			IdleTimeoutSec:  120,
			MaxUploadMB:     20,
		},
		Storage: StorageConfig{
			Root:      filepath.Join(dir, "media"),
			PublicURL: "/media",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dir, "designedit.db"),
		},
		Provider: ProviderConfig{
			Name:       string(models.ProviderOpenAI),
			TimeoutSec: 180,
		},
		Session: SessionConfig{
			CookieName:       "designedit_sid",
			CookieMaxAgeDays: 30,
		},
		Log: LogConfig{
			Level: "info",
			Env:   "production",
		},
	}
}

// Load builds the configuration. An empty path reads DefaultPath when that
// file exists; an explicit path must exist. envFiles are loaded with
// godotenv and never override variables already set.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) ApplyEnvOverrides() error {
	str := map[string]*string{
		"DESIGNEDIT_ADDR":         &c.Server.Addr,
		"DESIGNEDIT_STORAGE_ROOT": &c.Storage.Root,
		"DESIGNEDIT_PUBLIC_URL":   &c.Storage.PublicURL,
		"DESIGNEDIT_DB_PATH":      &c.Database.Path,
		"DESIGNEDIT_PROVIDER":     &c.Provider.Name,
		"DESIGNEDIT_MODEL":        &c.Provider.Model,
		"DESIGNEDIT_API_KEY":      &c.Provider.APIKey,
		"DESIGNEDIT_BASE_URL":     &c.Provider.BaseURL,
		"DESIGNEDIT_COOKIE_NAME":  &c.Session.CookieName,
		"DESIGNEDIT_LOG_LEVEL":    &c.Log.Level,
		"DESIGNEDIT_ENV":          &c.Log.Env,
	}
	for key, dst := range str {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	// PORT is what most platforms inject.
	if v := os.Getenv("PORT"); v != "" && os.Getenv("DESIGNEDIT_ADDR") == "" {
		c.Server.Addr = ":" + v
	}

	ints := map[string]*int{
		"DESIGNEDIT_PROVIDER_TIMEOUT_SEC": &c.Provider.TimeoutSec,
		"DESIGNEDIT_MAX_UPLOAD_MB":        &c.Server.MaxUploadMB,
	}
	for key, dst := range ints {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Storage.Root == "" {
		errs = append(errs, errors.New("storage.root is required"))
	}
	if !strings.HasPrefix(c.Storage.PublicURL, "/") {
		errs = append(errs, fmt.Errorf("storage.public_url %q must start with /", c.Storage.PublicURL))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if _, err := models.ParseProviderType(c.Provider.Name); err != nil {
		errs = append(errs, fmt.Errorf("provider.name: %w", err))
	}
	if c.Provider.TimeoutSec <= 0 {
		errs = append(errs, errors.New("provider.timeout_sec must be positive"))
	}
	if c.Server.WriteTimeoutSec > 0 && c.Server.WriteTimeoutSec <= c.Provider.TimeoutSec {
		errs = append(errs, fmt.Errorf("server.write_timeout_sec (%d) must exceed provider.timeout_sec (%d)",
			c.Server.WriteTimeoutSec, c.Provider.TimeoutSec))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("server.max_upload_mb must be positive"))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name is required"))
	}
	if c.Session.CookieMaxAgeDays <= 0 {
		errs = append(errs, errors.New("session.cookie_max_age_days must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) ProviderType() models.ProviderType {
	p, _ := models.ParseProviderType(c.Provider.Name)
	return p
}

func (c *Config) ReadTimeout() time.Duration  { return seconds(c.Server.ReadTimeoutSec) }
func (c *Config) WriteTimeout() time.Duration { return seconds(c.Server.WriteTimeoutSec) }
func (c *Config) IdleTimeout() time.Duration  { return seconds(c.Server.IdleTimeoutSec) }

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

func (c *Config) CookieMaxAge() time.Duration {
	return time.Duration(c.Session.CookieMaxAgeDays) * 24 * time.Hour
}

// ScopeRoot is the storage directory of one session scope.
func (c *Config) ScopeRoot(scope string) string {
	return filepath.Join(c.Storage.Root, scope)
}

// ScopeURL is the public URL prefix of one session scope.
func (c *Config) ScopeURL(scope string) string {
	return strings.TrimRight(c.Storage.PublicURL, "/") + "/" + scope
}

// RecordsRoot holds the images design records were created with.
func (c *Config) RecordsRoot() string {
	return filepath.Join(c.Storage.Root, recordsDir)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
