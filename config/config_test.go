package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"DB_DRIVER", "RETRY_DELAY", "SOURCES_FILE", "OGLASI_END_PAGE", "MAX_CONCURRENT_REQUESTS"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "postgres" {
		t.Errorf("DBDriver = %q, want postgres", cfg.DBDriver)
	}
	if cfg.RetryDelay != 5*time.Second {
		t.Errorf("RetryDelay = %v, want 5s", cfg.RetryDelay)
	}
	if cfg.MaxConcurrency != 5 {
		t.Errorf("MaxConcurrency = %d, want 5", cfg.MaxConcurrency)
	}
	if got := len(cfg.Sources.Nekretnine.PriceRanges); got != 20 {
		t.Errorf("price ranges = %d, want 20", got)
	}
	last := cfg.Sources.Nekretnine.PriceRanges[19]
	if last.Min != 500000 || last.Max != 9999999 {
		t.Errorf("last range = %+v", last)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		val  string
		want time.Duration
	}{
		{"", 3 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"7", 7 * time.Second},
		{"soon", 3 * time.Second},
	}

	for _, tt := range tests {
		t.Setenv("TEST_DURATION", tt.val)
		if got := getEnvDuration("TEST_DURATION", 3*time.Second); got != tt.want {
			t.Errorf("getEnvDuration(%q) = %v; want %v", tt.val, got, tt.want)
		}
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "mysql")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestLoadSourcesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	yml := `
nekretnine:
  price_ranges:
    - {min: 0, max: 100000}
    - {min: 100000, max: 200000}
oglasi:
  list_url: "http://localhost/oglasi?p=%d"
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSources(path)
	if err != nil {
		t.Fatalf("load sources: %v", err)
	}
	if len(s.Nekretnine.PriceRanges) != 2 {
		t.Errorf("price ranges = %d, want 2", len(s.Nekretnine.PriceRanges))
	}
	if s.Nekretnine.BaseURL != "https://www.nekretnine.rs" {
		t.Errorf("base url should keep default, got %q", s.Nekretnine.BaseURL)
	}
	if s.Oglasi.ListURL != "http://localhost/oglasi?p=%d" {
		t.Errorf("oglasi list url = %q", s.Oglasi.ListURL)
	}
}

func TestLoadSourcesInvalidRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	yml := "nekretnine:\n  price_ranges:\n    - {min: 500, max: 100}\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadSources(path); err == nil {
		t.Fatal("expected error for inverted range")
	}
}
