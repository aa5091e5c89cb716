package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const minimalConfig = `
identity:
  issuer: https://id.example.org
  audience: quill-api
  jwks_url: https://id.example.org/.well-known/jwks.json
store:
  driver: memory
blobstore:
  driver: memory
`

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.HandlerTimeout != 25*time.Second {
		t.Errorf("HandlerTimeout = %v", cfg.Server.HandlerTimeout)
	}
	if cfg.Store.DSNEnv != "QUILL_STORE_DSN" {
		t.Errorf("DSNEnv = %q", cfg.Store.DSNEnv)
	}
	if cfg.Blobstore.Bucket != "quill-documents" {
		t.Errorf("Bucket = %q", cfg.Blobstore.Bucket)
	}
	if cfg.Publishing.DOIPrefix != "10.52310" {
		t.Errorf("DOIPrefix = %q", cfg.Publishing.DOIPrefix)
	}
	if !cfg.Observability.Metrics.Enabled || cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v", cfg.Observability.Metrics)
	}
}

func TestLoad_minimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Identity.Issuer != "https://id.example.org" {
		t.Errorf("Issuer = %q", cfg.Identity.Issuer)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %q", cfg.Store.Driver)
	}
	// Unset fields keep their defaults.
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_envOverrides(t *testing.T) {
	t.Setenv("QUILL_SERVER_PORT", "9090")
	t.Setenv("QUILL_STORE_DRIVER", "postgres")
	t.Setenv("QUILL_OBSERVABILITY_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090 from env", cfg.Server.Port)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("Store.Driver = %q, want postgres from env", cfg.Store.Driver)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.Observability.LogLevel)
	}
}

func TestValidate_requiredFields(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error with no identity settings")
	}
	for _, want := range []string{"identity.issuer", "identity.jwks_url", "identity.audience"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err.Error(), want)
		}
	}
}

func TestValidate_badDrivers(t *testing.T) {
	cfg := Defaults()
	cfg.Identity.Issuer = "x"
	cfg.Identity.JWKSURL = "x"
	cfg.Identity.Audience = "x"
	cfg.Store.Driver = "sqlite"
	cfg.Blobstore.Driver = "memory"

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported store driver")
	}
}

func TestValidate_minioRequiresEndpoint(t *testing.T) {
	cfg := Defaults()
	cfg.Identity.Issuer = "x"
	cfg.Identity.JWKSURL = "x"
	cfg.Identity.Audience = "x"
	cfg.Store.Driver = "memory"
	cfg.Blobstore.Driver = "minio"
	cfg.Blobstore.Endpoint = ""

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for minio driver without an endpoint")
	}
}
