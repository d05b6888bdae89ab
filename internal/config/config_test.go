package config

import (
	"os"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("SERIALOSC_CONFIG_DIR", t.TempDir())

	cfg, err := Load("m1000001")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg != want {
		t.Errorf("Load on missing file = %+v, want defaults %+v", cfg, want)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	t.Setenv("SERIALOSC_CONFIG_DIR", t.TempDir())

	cfg := Default()
	cfg.Server.Port = 17500
	cfg.App.Host = "10.0.0.5"
	cfg.App.Port = 9000
	cfg.App.OSCPrefix = "/grid"
	cfg.Dev.Rotation = Rotate180

	if err := Save("m1000001", cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load("m1000001")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != cfg {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}

func TestLoadInvalidRotationFallsBackToZero(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SERIALOSC_CONFIG_DIR", dir)

	if err := Save("m1000002", Config{Dev: DevConfig{Rotation: 45}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load("m1000002")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Dev.Rotation != Rotate0 {
		t.Errorf("Rotation = %v, want Rotate0", got.Dev.Rotation)
	}
}

func TestLoadEmptyPrefixFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SERIALOSC_CONFIG_DIR", dir)

	if err := Save("m1000003", Config{}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load("m1000003")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.App.OSCPrefix != DefaultOSCPrefix {
		t.Errorf("OSCPrefix = %q, want %q", got.App.OSCPrefix, DefaultOSCPrefix)
	}
}

func TestEnsureDirCreatesDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/serialosc"
	t.Setenv("SERIALOSC_CONFIG_DIR", dir)

	if err := EnsureDir(); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("config directory %s not created: %v", dir, err)
	}
	if _, err := Load("m1000004"); err != nil {
		t.Fatalf("Load after EnsureDir: %v", err)
	}
}
