package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/artselect/internal/raster"
	pkgconfig "github.com/starford/artselect/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Canvas.BackgroundColor() != raster.White {
		t.Errorf("background = %+v", cfg.Canvas.BackgroundColor())
	}
}

func TestCanvasConfig_Rejects(t *testing.T) {
	cases := map[string]func(*CanvasConfig){
		"zero width":    func(c *CanvasConfig) { c.Width = 0 },
		"huge height":   func(c *CanvasConfig) { c.Height = 100000 },
		"bad colour":    func(c *CanvasConfig) { c.Background = "plaid" },
		"quality > 100": func(c *CanvasConfig) { c.JPEGQuality = 101 },
	}
	for name, mutate := range cases {
		cfg := NewDefaultConfig()
		mutate(&cfg.Canvas)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestCanvasConfig_NamedBackground(t *testing.T) {
	cfg := CanvasConfig{Width: 10, Height: 10, Background: "black", JPEGQuality: 80}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.BackgroundColor() != raster.Black {
		t.Errorf("background = %+v", cfg.BackgroundColor())
	}
}

func TestSessionConfig_RejectsNegative(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Session.MaxSessions = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative max_sessions should fail")
	}
	cfg = NewDefaultConfig()
	cfg.Session.IdleTimeout = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("negative idle_timeout should fail")
	}
}

func TestSearchConfig_RequiresEndpoint(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Search.Endpoint = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty search endpoint should fail")
	}
}

func TestLoadYAML_WithEnvExpansion(t *testing.T) {
	t.Setenv("ARTSELECT_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `app:
  log_level: debug
  http:
    port: 9090
storage:
  path: ./bits
sqlite:
  path: ./a.db
auth:
  mode: token
  token: ${ARTSELECT_TEST_TOKEN}
canvas:
  width: 320
  height: 200
  background: "#000000"
  jpeg_quality: 75
session:
  idle_timeout: 90s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("app = %+v", cfg.App)
	}
	if !cfg.Auth.AuthEnabled() || cfg.Auth.Token != "s3cret" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Canvas.Width != 320 || cfg.Canvas.BackgroundColor() != raster.Black {
		t.Errorf("canvas = %+v", cfg.Canvas)
	}
	if cfg.Session.IdleTimeout != 90*time.Second || cfg.Session.MaxSessions != 64 {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Search.Endpoint != "https://api.unsplash.com" {
		t.Errorf("search defaults lost: %+v", cfg.Search)
	}
}
