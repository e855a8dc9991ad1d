package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/artselect/internal/raster"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Storage   StorageConfig     `yaml:"storage"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Canvas    CanvasConfig      `yaml:"canvas"`
	Search    SearchConfig      `yaml:"search"`
	Session   SessionConfig     `yaml:"session"`
	Discovery DiscoveryConfig   `yaml:"discovery"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Storage, &c.SQLite, &c.Auth, &c.Canvas, &c.Search, &c.Session, &c.Discovery,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig holds the directory bitmap files are written to.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// CanvasConfig sizes every canvas and sets its blank colour and export
// quality.
type CanvasConfig struct {
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	Background  string `yaml:"background"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// BackgroundColor parses Background. Call after Validate.
func (c *CanvasConfig) BackgroundColor() raster.Color {
	bg, _, _, err := raster.ParseColor(c.Background)
	if err != nil {
		return raster.White
	}
	return bg
}

// Validate validates the canvas configuration.
func (c *CanvasConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Width, validation.Required, validation.Min(1), validation.Max(8192)),
		validation.Field(&c.Height, validation.Required, validation.Min(1), validation.Max(8192)),
		validation.Field(&c.Background, validation.Required, validation.By(func(v any) error {
			_, _, _, err := raster.ParseColor(v.(string))
			return err
		})),
		validation.Field(&c.JPEGQuality, validation.Required, validation.Min(1), validation.Max(100)),
	)
}

// SearchConfig points the photo search at an Unsplash-compatible API.
// An empty AccessKey leaves search enabled but unauthenticated.
type SearchConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	AccessKey string        `yaml:"access_key"`
	PerPage   int           `yaml:"per_page"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.PerPage, validation.Min(0), validation.Max(30)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxBytes, validation.Min(int64(0))),
	)
}

// SessionConfig bounds the live drawing sessions.
type SessionConfig struct {
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	MaxSessions int           `yaml:"max_sessions"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.IdleTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxSessions, validation.Min(0)),
	)
}

// DiscoveryConfig controls the mDNS advertisement.
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// Validate validates the discovery configuration.
func (c *DiscoveryConfig) Validate() error {
	if c.Enabled && len(c.Instance) > 63 {
		return errors.New("discovery: instance name longer than 63 bytes")
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Path: "./bitmaps",
		},
		SQLite: SQLiteConfig{
			Path: "./artselect.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Canvas: CanvasConfig{
			Width:       1024,
			Height:      768,
			Background:  "#ffffff",
			JPEGQuality: raster.DefaultJPEGQuality,
		},
		Search: SearchConfig{
			Endpoint: "https://api.unsplash.com",
			PerPage:  30,
			Timeout:  30 * time.Second,
			MaxBytes: 10 << 20,
		},
		Session: SessionConfig{
			IdleTimeout: 30 * time.Minute,
			MaxSessions: 64,
		},
	}
}
