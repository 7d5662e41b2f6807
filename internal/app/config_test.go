package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.MongoDatabase != "streamgate" {
		t.Fatalf("MongoDatabase = %q", cfg.MongoDatabase)
	}
	if cfg.ReadinessTimeout != 25*time.Second {
		t.Fatalf("ReadinessTimeout = %v", cfg.ReadinessTimeout)
	}
	if cfg.MetadataTimeout != 10*time.Minute {
		t.Fatalf("MetadataTimeout = %v", cfg.MetadataTimeout)
	}
	if cfg.IdleTimeout != 0 {
		t.Fatalf("IdleTimeout = %v, want disabled", cfg.IdleTimeout)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("READY_TIMEOUT_SECONDS", "5")
	t.Setenv("SESSION_IDLE_TIMEOUT_SECONDS", "120")
	t.Setenv("TORRENT_NO_UPLOAD", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.local, http://b.local ,")

	cfg := LoadConfig()
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.ReadinessTimeout != 5*time.Second {
		t.Fatalf("ReadinessTimeout = %v", cfg.ReadinessTimeout)
	}
	if cfg.IdleTimeout != 2*time.Minute {
		t.Fatalf("IdleTimeout = %v", cfg.IdleTimeout)
	}
	if !cfg.NoUpload {
		t.Fatal("NoUpload should be true")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "http://b.local" {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestGetEnvInt64RejectsGarbage(t *testing.T) {
	t.Setenv("READY_TIMEOUT_SECONDS", "not-a-number")
	if cfg := LoadConfig(); cfg.ReadinessTimeout != 25*time.Second {
		t.Fatalf("ReadinessTimeout = %v, want default", cfg.ReadinessTimeout)
	}
	t.Setenv("READY_TIMEOUT_SECONDS", "-3")
	if cfg := LoadConfig(); cfg.ReadinessTimeout != 25*time.Second {
		t.Fatalf("negative value should fall back to default")
	}
}
