package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"vidfetch/pkg/models"
)

var (
	ErrInvalidPort        = errors.New("invalid port: must be between 1 and 65535")
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be between 1 and 64")
	ErrInvalidTimeout     = errors.New("invalid timeout: must be positive")
	ErrInvalidChunkSize   = errors.New("invalid chunk size: must be between 512 bytes and 4 MiB")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrEmptyDownloadDir   = errors.New("download directory must not be empty")
)

// Environment variables that override values from the config file
const (
	EnvPort        = "VIDFETCH_PORT"
	EnvDownloadDir = "VIDFETCH_DOWNLOAD_DIR"
	EnvMaxJobs     = "VIDFETCH_MAX_JOBS"
	EnvYtdlPath    = "VIDFETCH_YTDLP_PATH"
	EnvFFmpegPath  = "VIDFETCH_FFMPEG_PATH"
	EnvLogLevel    = "VIDFETCH_LOG_LEVEL"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Manager handles configuration loading, saving, and updates
type Manager struct {
	mu         sync.RWMutex
	config     *models.Config
	configPath string
}

// NewManager creates a new configuration manager
// If the config file doesn't exist, it creates one with default values
func NewManager(configPath string) (*Manager, error) {
	manager := &Manager{
		configPath: configPath,
		config:     models.DefaultConfig(),
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := manager.load(); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		if err := manager.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	if err := Validate(manager.config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return manager, nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *models.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := *m.config
	return &cfg
}

// Update applies a function to the configuration and saves it
func (m *Manager) Update(fn func(*models.Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := *m.config
	fn(&next)

	if err := Validate(&next); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	m.config = &next
	return m.save()
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.save()
}

// ApplyEnv loads an optional dotenv file and overlays VIDFETCH_* variables on
// the in-memory configuration. Overrides are not written back to disk.
func (m *Manager) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := *m.config
	if err := overlayEnv(&next); err != nil {
		return err
	}
	if err := Validate(&next); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	m.config = &next

	return nil
}

func overlayEnv(cfg *models.Config) error {
	if v, ok := os.LookupEnv(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		cfg.WebServerPort = port
	}
	if v, ok := os.LookupEnv(EnvMaxJobs); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxJobs, err)
		}
		cfg.MaxConcurrentJobs = n
	}
	if v := os.Getenv(EnvDownloadDir); v != "" {
		cfg.DownloadDir = v
	}
	if v := os.Getenv(EnvYtdlPath); v != "" {
		cfg.YtdlPath = v
	}
	if v := os.Getenv(EnvFFmpegPath); v != "" {
		cfg.FFmpegPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	return nil
}

// load reads configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg models.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}

	m.config = mergeWithDefaults(&cfg)

	return nil
}

// save writes configuration to disk (must be called with lock held)
func (m *Manager) save() error {
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// mergeWithDefaults fills in default values for missing fields
func mergeWithDefaults(cfg *models.Config) *models.Config {
	defaults := models.DefaultConfig()

	if cfg.WebServerPort == 0 {
		cfg.WebServerPort = defaults.WebServerPort
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = defaults.DownloadDir
	}
	if cfg.MaxConcurrentJobs == 0 {
		cfg.MaxConcurrentJobs = defaults.MaxConcurrentJobs
	}
	if cfg.YtdlPath == "" {
		cfg.YtdlPath = defaults.YtdlPath
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = defaults.FFmpegPath
	}
	if cfg.TranscodeTimeoutSec == 0 {
		cfg.TranscodeTimeoutSec = defaults.TranscodeTimeoutSec
	}
	if cfg.BackendTimeoutSec == 0 {
		cfg.BackendTimeoutSec = defaults.BackendTimeoutSec
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = defaults.ChunkSize
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}

	return cfg
}

// Validate checks if the configuration is valid
func Validate(cfg *models.Config) error {
	if cfg.WebServerPort < 1 || cfg.WebServerPort > 65535 {
		return ErrInvalidPort
	}

	if strings.TrimSpace(cfg.DownloadDir) == "" {
		return ErrEmptyDownloadDir
	}

	if cfg.MaxConcurrentJobs < 1 || cfg.MaxConcurrentJobs > 64 {
		return ErrInvalidConcurrency
	}

	if cfg.TranscodeTimeoutSec <= 0 || cfg.BackendTimeoutSec <= 0 {
		return ErrInvalidTimeout
	}

	if cfg.ChunkSize < 512 || cfg.ChunkSize > 4<<20 {
		return ErrInvalidChunkSize
	}

	levelOK := false
	for _, level := range validLogLevels {
		if cfg.LogLevel == level {
			levelOK = true
			break
		}
	}
	if !levelOK {
		return ErrInvalidLogLevel
	}

	return nil
}

// GetDataDir returns the application data directory
func GetDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		dataDir := filepath.Join(dir, "vidfetch")
		os.MkdirAll(dataDir, 0755)
		return dataDir
	}

	if home, err := os.UserHomeDir(); err == nil {
		dataDir := filepath.Join(home, ".vidfetch")
		os.MkdirAll(dataDir, 0755)
		return dataDir
	}

	return "."
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	return filepath.Join(GetDataDir(), "config.json")
}
