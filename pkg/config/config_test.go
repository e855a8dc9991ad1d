package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_KeepsDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_TOKEN", "abc")
	path := writeFile(t, t.TempDir(), "c.yaml", "token: ${SAMPLE_TOKEN}\nname: ${SAMPLE_UNSET:-fallback}\n")

	cfg := sample{Port: 8080}
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Token != "abc" || cfg.Name != "fallback" || cfg.Port != 8080 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "port: 1\nprot: 2\n")
	cfg := sample{}
	if err := Load(path, &cfg); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoad_RunsValidator(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "port: 0\n")
	cfg := sample{}
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "")
	cfg := sample{Port: 3}
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 3 {
		t.Errorf("port = %d", cfg.Port)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "default.yaml", "port: 7\n")

	cfg := sample{}
	if err := LoadWithDefaults(filepath.Join(dir, "missing.yaml"), def, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 7 {
		t.Errorf("port = %d", cfg.Port)
	}
	if err := LoadWithDefaults(filepath.Join(dir, "missing.yaml"), "", &cfg); err == nil {
		t.Error("expected error without default file")
	}
}
