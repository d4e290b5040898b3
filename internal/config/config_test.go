package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AlverezYari/reviewgreen/pkg/camera"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.Resolution() != camera.DefaultResolution {
		t.Errorf("Resolution() = %v, want %v", cfg.Resolution(), camera.DefaultResolution)
	}
	if cfg.CameraConfig.JPEGQuality != 90 || cfg.Bridge.Quality != 90 || !cfg.Bridge.AllowEditing {
		t.Errorf("capture defaults wrong: %+v %+v", cfg.CameraConfig, cfg.Bridge)
	}
	if cfg.Facing() != camera.FacingBack {
		t.Errorf("Facing() = %s, want environment", cfg.Facing())
	}
}

func TestLoadFromFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"server_port": "9090", "camera": {"front_device_id": "1", "stream_config": {"resolution": "640x480"}}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if cfg.ServerPort != "9090" || cfg.ServerIP != "localhost" {
		t.Errorf("server = %s:%s", cfg.ServerIP, cfg.ServerPort)
	}
	if cfg.CameraConfig.FrontDeviceID != "1" || cfg.CameraConfig.BackDeviceID != "0" {
		t.Errorf("devices = back %q front %q", cfg.CameraConfig.BackDeviceID, cfg.CameraConfig.FrontDeviceID)
	}
	if cfg.Resolution() != (camera.Resolution{Width: 640, Height: 480}) {
		t.Errorf("Resolution() = %v", cfg.Resolution())
	}
	if cfg.CameraConfig.StreamConfig.FPS != 30 {
		t.Errorf("FPS default lost: %d", cfg.CameraConfig.StreamConfig.FPS)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REVIEWGREEN_SERVER_PORT", "7000")
	t.Setenv("REVIEWGREEN_DEFAULT_FACING", "user")
	t.Setenv("REVIEWGREEN_JPEG_QUALITY", "75")
	t.Setenv("REVIEWGREEN_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
	if cfg.Facing() != camera.FacingFront {
		t.Errorf("Facing() = %s", cfg.Facing())
	}
	if cfg.CameraConfig.JPEGQuality != 75 {
		t.Errorf("JPEGQuality = %d", cfg.CameraConfig.JPEGQuality)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"camera": {"stream_config": {"resolution": "huge"}}}`), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatalf("LoadFrom() accepted an invalid resolution")
	}

	cfg := Default()
	cfg.CameraConfig.JPEGQuality = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() accepted quality 0")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.ServerPort = "8181"
	cfg.CameraConfig.FrontDeviceID = "2"
	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo() failed: %v", err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if loaded.ServerPort != "8181" || loaded.CameraConfig.FrontDeviceID != "2" {
		t.Fatalf("saved values not loaded back: %+v", loaded)
	}
}
