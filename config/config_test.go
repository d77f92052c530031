package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ottergen/snapper/hashutil"
)

func TestTOMLSourceDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapper.toml")
	if err := os.WriteFile(path, []byte("Verbose = true\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := (TOMLSource{Path: path}).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Verbose {
		t.Errorf("Verbose: have false, want true")
	}
	if cfg.Redundancy != 3 {
		t.Errorf("Redundancy: have %d, want 3 (default)", cfg.Redundancy)
	}
	if cfg.HashAlgorithm != hashutil.CRC32 {
		t.Errorf("HashAlgorithm: have %q, want %q (default)", cfg.HashAlgorithm, hashutil.CRC32)
	}
}

func TestTOMLSourceOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapper.toml")
	body := `
Verbose = false
Redundancy = 5
Integrity = false
Threshold = 64
MaxSnapshots = 10
MinSnapshots = 2
ExpirationSecs = 3600
BufSize = 4096
HashAlgorithm = "xxh32"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := (TOMLSource{Path: path}).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redundancy != 5 || cfg.Threshold != 64 || cfg.MaxSnapshots != 10 || cfg.MinSnapshots != 2 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Expiration != time.Hour {
		t.Errorf("Expiration: have %v, want 1h", cfg.Expiration)
	}
	if cfg.HashAlgorithm != hashutil.XXH32 {
		t.Errorf("HashAlgorithm: have %q, want xxh32", cfg.HashAlgorithm)
	}
}

func TestTOMLSourceUnknownAlgorithm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapper.toml")
	if err := os.WriteFile(path, []byte(`HashAlgorithm = "md5"`+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := (TOMLSource{Path: path}).Load(); err == nil {
		t.Fatalf("Load: expected error for unknown algorithm")
	}
}

func TestTOMLSourceRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapper.toml")
	if err := os.WriteFile(path, []byte("Bogus = true\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := (TOMLSource{Path: path}).Load(); err == nil {
		t.Fatalf("Load: expected error for unrecognized field")
	}
}

func TestStaticSource(t *testing.T) {
	want := Defaults()
	cfg, err := Static(want).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != want {
		t.Errorf("Static.Load(): have %+v, want %+v", cfg, want)
	}
}
