package config

import (
	"strings"
	"testing"
)

func TestEnsureDSNComposesFromParts(t *testing.T) {
	cfg := DBConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "loyalty",
		Password: "secret",
		Name:     "loyalty",
		SSLMode:  "disable",
	}
	if err := cfg.ensureDSN(); err != nil {
		t.Fatalf("ensureDSN: %v", err)
	}
	for _, part := range []string{"host=localhost", "port=5432", "user=loyalty", "dbname=loyalty", "sslmode=disable"} {
		if !strings.Contains(cfg.DSN, part) {
			t.Fatalf("DSN missing %q: %s", part, cfg.DSN)
		}
	}
}

func TestEnsureDSNKeepsExplicitDSN(t *testing.T) {
	cfg := DBConfig{DSN: "postgres://u:p@h/db"}
	if err := cfg.ensureDSN(); err != nil {
		t.Fatalf("ensureDSN: %v", err)
	}
	if cfg.DSN != "postgres://u:p@h/db" {
		t.Fatalf("explicit DSN must win, got %s", cfg.DSN)
	}
}

func TestEnsureDSNRequiresParts(t *testing.T) {
	cfg := DBConfig{Host: "localhost"}
	if err := cfg.ensureDSN(); err == nil {
		t.Fatalf("expected error when user/name missing")
	}
}

func TestAppEnvHelpers(t *testing.T) {
	if !(AppConfig{Env: "DEV"}).IsDev() {
		t.Fatalf("IsDev should be case-insensitive")
	}
	if !(AppConfig{Env: "prod"}).IsProd() {
		t.Fatalf("IsProd should match prod")
	}
	if (AppConfig{Env: "staging"}).IsProd() {
		t.Fatalf("staging is not prod")
	}
}
