package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "projectkart.yml")
	content := []byte("server:\n  addr: \":9090\"\nauth:\n  jwt_secret: file-secret\nassets:\n  dir: files\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("file value ignored: %s", cfg.Server.Addr)
	}
	if cfg.Server.BasePath != "/api" {
		t.Fatalf("default not applied: %s", cfg.Server.BasePath)
	}
	if cfg.Auth.TokenTTLHours != 24 {
		t.Fatalf("default ttl not applied: %d", cfg.Auth.TokenTTLHours)
	}
	if cfg.GatewayConfigured() {
		t.Fatal("gateway should be unconfigured without keys")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "projectkart.yml")
	content := []byte("auth:\n  jwt_secret: file-secret\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("GATEWAY_KEY_ID", "rzp_test_key")
	t.Setenv("GATEWAY_KEY_SECRET", "rzp_test_secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Fatalf("env did not win: %s", cfg.Auth.JWTSecret)
	}
	if !cfg.GatewayConfigured() {
		t.Fatal("gateway keys from env not applied")
	}
}

func TestMissingFileIsFine(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yml"))
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load without file: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("defaults not applied: %s", cfg.Server.Addr)
	}
}

func TestJWTSecretRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}
