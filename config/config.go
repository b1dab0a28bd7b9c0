package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

// Config holds all application configuration.
type Config struct {
	// Room connection
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	APIKey    string `yaml:"apiKey"`
	APISecret string `yaml:"apiSecret"`
	RoomName  string `yaml:"roomName"`
	Identity  string `yaml:"identity"`

	// Link endpoints
	DestinationIdentity string `yaml:"destinationIdentity"` // sender side
	SenderIdentity      string `yaml:"senderIdentity"`      // receiver side, empty = first agent

	// Video format
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	FPS        float64 `yaml:"fps"`
	BufferType int     `yaml:"bufferType"`

	// Status HTTP server, empty disables
	HTTPAddr string `yaml:"httpAddr"`

	// Segment archive
	ArchiveType    string `yaml:"archiveType"` // "", "local", "gcs", "s3"
	ArchiveDir     string `yaml:"archiveDir"`
	ArchiveBucket  string `yaml:"archiveBucket"`
	ArchiveBaseDir string `yaml:"archiveBaseDir"`
	ArchiveRegion  string `yaml:"archiveRegion"`
	MaxSegments    int    `yaml:"maxSegments"`

	// Auth
	DefaultTokenExpiration time.Duration `yaml:"defaultTokenExpiration"`
	MaxTokenExpiration     time.Duration `yaml:"maxTokenExpiration"`

	// Logging
	LogLevel string `yaml:"logLevel"`
}

// Load builds configuration from an optional YAML file (CONFIG_FILE) and
// environment variables, env taking precedence.
func Load() (*Config, error) {
	cfg := &Config{
		Width:                  640,
		Height:                 480,
		FPS:                    30,
		ArchiveDir:             "./data/segments",
		MaxSegments:            10,
		DefaultTokenExpiration: time.Hour,
		MaxTokenExpiration:     24 * time.Hour,
		LogLevel:               "info",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.URL = getEnv("LIVEKIT_URL", cfg.URL)
	cfg.Token = getEnv("LIVEKIT_TOKEN", cfg.Token)
	cfg.APIKey = getEnv("LIVEKIT_API_KEY", cfg.APIKey)
	cfg.APISecret = getEnv("LIVEKIT_API_SECRET", cfg.APISecret)
	cfg.RoomName = getEnv("ROOM_NAME", cfg.RoomName)
	cfg.Identity = getEnv("IDENTITY", cfg.Identity)
	cfg.DestinationIdentity = getEnv("DESTINATION_IDENTITY", cfg.DestinationIdentity)
	cfg.SenderIdentity = getEnv("SENDER_IDENTITY", cfg.SenderIdentity)
	cfg.Width = getIntEnv("VIDEO_WIDTH", cfg.Width)
	cfg.Height = getIntEnv("VIDEO_HEIGHT", cfg.Height)
	cfg.FPS = getFloatEnv("VIDEO_FPS", cfg.FPS)
	cfg.BufferType = getIntEnv("VIDEO_BUFFER_TYPE", cfg.BufferType)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.ArchiveType = getEnv("ARCHIVE_TYPE", cfg.ArchiveType)
	cfg.ArchiveDir = getEnv("ARCHIVE_DIR", cfg.ArchiveDir)
	cfg.ArchiveBucket = getEnv("ARCHIVE_BUCKET", cfg.ArchiveBucket)
	cfg.ArchiveBaseDir = getEnv("ARCHIVE_BASE_DIR", cfg.ArchiveBaseDir)
	cfg.ArchiveRegion = getEnv("ARCHIVE_REGION", cfg.ArchiveRegion)
	cfg.MaxSegments = getIntEnv("MAX_SEGMENTS", cfg.MaxSegments)
	cfg.DefaultTokenExpiration = getDurationEnv("DEFAULT_TOKEN_EXPIRATION", cfg.DefaultTokenExpiration)
	cfg.MaxTokenExpiration = getDurationEnv("MAX_TOKEN_EXPIRATION", cfg.MaxTokenExpiration)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

// Helper functions to get environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
