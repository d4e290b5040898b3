package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/AlverezYari/reviewgreen/pkg/camera"
)

const appName = "reviewgreen"

// StreamConfig holds the advisory live stream settings
type StreamConfig struct {
	Resolution string `json:"resolution"`
	FPS        int    `json:"fps"`
}

type CameraConfig struct {
	DeviceName    string       `json:"device_name"`
	BackDeviceID  string       `json:"back_device_id"`
	FrontDeviceID string       `json:"front_device_id"`
	DefaultFacing string       `json:"default_facing"`
	JPEGQuality   int          `json:"jpeg_quality"`
	StreamConfig  StreamConfig `json:"stream_config"`
}

// BridgeConfig describes the host helpers used when live capture is unavailable.
// Each command is an argv; the first line the helper prints is the photo path.
type BridgeConfig struct {
	CameraCommand  []string `json:"camera_command"`
	GalleryCommand []string `json:"gallery_command"`
	Quality        int      `json:"quality"`
	AllowEditing   bool     `json:"allow_editing"`
	ResultType     string   `json:"result_type"`
}

type StorageConfig struct {
	DBPath   string `json:"db_path"`
	ShareDir string `json:"share_dir"`
}

type LogConfig struct {
	Path  string `json:"path"`
	Level string `json:"level"`
}

type AppConfig struct {
	ServerPort     string        `json:"server_port"`
	ServerIP       string        `json:"server_ip"`
	AllowedOrigins []string      `json:"allowed_origins"`
	CameraConfig   CameraConfig  `json:"camera"`
	Bridge         BridgeConfig  `json:"bridge"`
	Storage        StorageConfig `json:"storage"`
	Log            LogConfig     `json:"log"`
}

// Default config
func defaultConfig() *AppConfig {
	dataDir := defaultDataDir()
	return &AppConfig{
		ServerIP:       "localhost",
		ServerPort:     "8080",
		AllowedOrigins: []string{"http://localhost:5173"},
		CameraConfig: CameraConfig{
			DeviceName:    "Built-in Camera",
			BackDeviceID:  "0",
			FrontDeviceID: "",
			DefaultFacing: string(camera.FacingBack),
			JPEGQuality:   camera.DefaultQuality,
			StreamConfig: StreamConfig{
				Resolution: camera.DefaultResolution.String(),
				FPS:        30,
			}},
		Bridge: BridgeConfig{
			CameraCommand:  []string{"zenity", "--file-selection", "--title=Take a photo"},
			GalleryCommand: []string{"zenity", "--file-selection", "--title=Select from gallery", "--file-filter=*.jpg *.jpeg *.png"},
			Quality:        90,
			AllowEditing:   true,
			ResultType:     "uri",
		},
		Storage: StorageConfig{
			DBPath:   filepath.Join(dataDir, "reviewgreen.db"),
			ShareDir: filepath.Join(dataDir, "shares"),
		},
		Log: LogConfig{
			Path:  "reviewgreen.log",
			Level: "info",
		},
	}
}

func Default() *AppConfig {
	return defaultConfig()
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	return appName
}

// getConfigPath ensures the config directory and file follow the Linux XDG convention
func getConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("unable to determine user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", appName)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("error creating config directory: %w", err)
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Path returns the config file location used by Load and Save.
func Path() (string, error) {
	return getConfigPath()
}

// Load reads ~/.config/reviewgreen/config.json, then applies .env and
// REVIEWGREEN_* environment overrides.
func Load() (*AppConfig, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("error getting config path: %w", err)
	}
	// .env is optional; production sets the variables directly
	_ = godotenv.Load()
	return LoadFrom(configPath)
}

// LoadFrom reads the config at configPath. A missing file yields the defaults.
func LoadFrom(configPath string) (*AppConfig, error) {
	config := defaultConfig()

	configFile, err := os.Open(configPath)
	if os.IsNotExist(err) {
		applyEnv(config)
		return config, config.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("error opening config file: %w", err)
	}
	defer configFile.Close()

	data, err := io.ReadAll(configFile)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Unmarshal into the default config to fill in missing fields
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file: %w", err)
	}

	applyEnv(config)
	return config, config.Validate()
}

func Save(config *AppConfig) error {
	configPath, err := getConfigPath()
	if err != nil {
		return fmt.Errorf("error getting config path: %w", err)
	}
	return SaveTo(configPath, config)
}

func SaveTo(configPath string, config *AppConfig) error {
	configBytes, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshalling config: %w", err)
	}
	if err := os.WriteFile(configPath, configBytes, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Validate checks the values the capture stack depends on.
func (c *AppConfig) Validate() error {
	if _, err := camera.ParseResolution(c.CameraConfig.StreamConfig.Resolution); err != nil {
		return err
	}
	if _, err := camera.ParseFacingMode(c.CameraConfig.DefaultFacing); err != nil {
		return err
	}
	if q := c.CameraConfig.JPEGQuality; q < 1 || q > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", q)
	}
	if q := c.Bridge.Quality; q < 1 || q > 100 {
		return fmt.Errorf("bridge quality must be between 1 and 100, got %d", q)
	}
	if c.ServerPort == "" {
		return fmt.Errorf("server_port is required")
	}
	return nil
}

// Resolution returns the parsed advisory stream resolution.
func (c *AppConfig) Resolution() camera.Resolution {
	res, err := camera.ParseResolution(c.CameraConfig.StreamConfig.Resolution)
	if err != nil {
		return camera.DefaultResolution
	}
	return res
}

func (c *AppConfig) Facing() camera.FacingMode {
	facing, err := camera.ParseFacingMode(c.CameraConfig.DefaultFacing)
	if err != nil {
		return camera.FacingBack
	}
	return facing
}

func applyEnv(c *AppConfig) {
	c.ServerIP = getEnv("REVIEWGREEN_SERVER_IP", c.ServerIP)
	c.ServerPort = getEnv("REVIEWGREEN_SERVER_PORT", c.ServerPort)
	c.AllowedOrigins = getEnvAsList("REVIEWGREEN_ALLOWED_ORIGINS", c.AllowedOrigins)

	c.CameraConfig.BackDeviceID = getEnv("REVIEWGREEN_BACK_DEVICE_ID", c.CameraConfig.BackDeviceID)
	c.CameraConfig.FrontDeviceID = getEnv("REVIEWGREEN_FRONT_DEVICE_ID", c.CameraConfig.FrontDeviceID)
	c.CameraConfig.DefaultFacing = getEnv("REVIEWGREEN_DEFAULT_FACING", c.CameraConfig.DefaultFacing)
	c.CameraConfig.JPEGQuality = getEnvAsInt("REVIEWGREEN_JPEG_QUALITY", c.CameraConfig.JPEGQuality)
	c.CameraConfig.StreamConfig.Resolution = getEnv("REVIEWGREEN_RESOLUTION", c.CameraConfig.StreamConfig.Resolution)
	c.CameraConfig.StreamConfig.FPS = getEnvAsInt("REVIEWGREEN_FPS", c.CameraConfig.StreamConfig.FPS)

	c.Bridge.AllowEditing = getEnvAsBool("REVIEWGREEN_BRIDGE_ALLOW_EDITING", c.Bridge.AllowEditing)

	c.Storage.DBPath = getEnv("REVIEWGREEN_DB_PATH", c.Storage.DBPath)
	c.Storage.ShareDir = getEnv("REVIEWGREEN_SHARE_DIR", c.Storage.ShareDir)

	c.Log.Path = getEnv("REVIEWGREEN_LOG_PATH", c.Log.Path)
	c.Log.Level = getEnv("REVIEWGREEN_LOG_LEVEL", c.Log.Level)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
