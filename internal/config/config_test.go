package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"CONFIG_FILE", "PORT", "LISTEN_ADDR", "DATABASE_DRIVER", "DATABASE_PATH", "UPLOAD_DIR", "MAX_UPLOAD_BYTES", "SITE_NAME"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected listen addr :8080, got %q", cfg.ListenAddr)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", cfg.DatabaseDriver)
	}
	if cfg.MaxUploadBytes != 16*1024*1024 {
		t.Fatalf("expected 16 MiB upload cap, got %d", cfg.MaxUploadBytes)
	}
	if cfg.SiteName != "Noir Blog" {
		t.Fatalf("unexpected site name %q", cfg.SiteName)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noirblog.yaml")
	content := []byte("port: \"9000\"\nsite_name: From File\nupload_dir: /srv/uploads\nmax_upload_bytes: 1024\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("UPLOAD_DIR", "")
	t.Setenv("SITE_NAME", "From Env")
	t.Setenv("MAX_UPLOAD_BYTES", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.ListenAddr != ":9000" {
		t.Fatalf("expected listen addr from file port, got %q", cfg.ListenAddr)
	}
	if cfg.SiteName != "From Env" {
		t.Fatalf("expected env to win, got %q", cfg.SiteName)
	}
	if cfg.UploadDir != "/srv/uploads" {
		t.Fatalf("expected upload dir from file, got %q", cfg.UploadDir)
	}
	if cfg.MaxUploadBytes != 1024 {
		t.Fatalf("expected invalid env to fall back to file value, got %d", cfg.MaxUploadBytes)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
