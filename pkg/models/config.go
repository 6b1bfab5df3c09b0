package models

// Config represents the application configuration
type Config struct {
	WebServerPort       int    `json:"webServerPort"`
	DownloadDir         string `json:"downloadDir"`
	MaxConcurrentJobs   int    `json:"maxConcurrentJobs"`
	YtdlPath            string `json:"ytdlPath"`
	YtdlAutoInstall     bool   `json:"ytdlAutoInstall"`
	FFmpegPath          string `json:"ffmpegPath"`
	TranscodeTimeoutSec int    `json:"transcodeTimeoutSec"`
	BackendTimeoutSec   int    `json:"backendTimeoutSec"`
	ChunkSize           int    `json:"chunkSize"`
	LogLevel            string `json:"logLevel"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		WebServerPort:       5000,
		DownloadDir:         "./downloads",
		MaxConcurrentJobs:   4,
		YtdlPath:            "yt-dlp",
		YtdlAutoInstall:     false,
		FFmpegPath:          "ffmpeg",
		TranscodeTimeoutSec: 1800,
		BackendTimeoutSec:   3600,
		ChunkSize:           8192,
		LogLevel:            "info",
	}
}
