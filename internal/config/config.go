package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration. It is assembled once at startup
// and passed down; no other package reads the environment after boot.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Pipeline PipelineConfig
	Vision   VisionConfig
	Geocoder GeocoderConfig
	CORS     CORSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds the SQLite store configuration.
type DatabaseConfig struct {
	Path string
}

// PipelineConfig holds the intake pipeline policy knobs.
type PipelineConfig struct {
	DPI                int
	MaxPages           int
	EdificabilityRatio float64
	PromptVersion      string
}

// VisionConfig holds the vision model endpoint configuration.
// The endpoint must be OpenAI-compatible (Groq and Gemini both expose one).
type VisionConfig struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// GeocoderConfig holds the external geocoding service configuration.
type GeocoderConfig struct {
	BaseURL   string
	UserAgent string
	Country   string
	Timeout   time.Duration
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// Load reads configuration from environment variables.
// It uses viper to read values and provides sensible defaults for development.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults for development
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_PATH", "parcelaria.db")
	v.SetDefault("PIPELINE_DPI", 200)
	v.SetDefault("PIPELINE_MAX_PAGES", 5)
	v.SetDefault("PIPELINE_RATIO", 0.33)
	v.SetDefault("PIPELINE_PROMPT_VERSION", "cadastral-v2")
	v.SetDefault("VISION_ENDPOINT", "https://api.groq.com/openai/v1")
	v.SetDefault("VISION_MODEL", "llama-3.2-90b-vision-preview")
	v.SetDefault("VISION_TIMEOUT_SECONDS", 30)
	v.SetDefault("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("GEOCODER_USER_AGENT", "parcelaria-api/1.0")
	v.SetDefault("GEOCODER_COUNTRY", "España")
	v.SetDefault("GEOCODER_TIMEOUT_SECONDS", 10)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")

	// Bind environment variables
	v.AutomaticEnv()

	// Build configuration
	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("PORT"),
			Env:  v.GetString("ENV"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("DB_PATH"),
		},
		Pipeline: PipelineConfig{
			DPI:                v.GetInt("PIPELINE_DPI"),
			MaxPages:           v.GetInt("PIPELINE_MAX_PAGES"),
			EdificabilityRatio: v.GetFloat64("PIPELINE_RATIO"),
			PromptVersion:      v.GetString("PIPELINE_PROMPT_VERSION"),
		},
		Vision: VisionConfig{
			Endpoint: v.GetString("VISION_ENDPOINT"),
			Model:    v.GetString("VISION_MODEL"),
			APIKey:   v.GetString("VISION_API_KEY"),
			Timeout:  time.Duration(v.GetInt("VISION_TIMEOUT_SECONDS")) * time.Second,
		},
		Geocoder: GeocoderConfig{
			BaseURL:   v.GetString("GEOCODER_BASE_URL"),
			UserAgent: v.GetString("GEOCODER_USER_AGENT"),
			Country:   v.GetString("GEOCODER_COUNTRY"),
			Timeout:   time.Duration(v.GetInt("GEOCODER_TIMEOUT_SECONDS")) * time.Second,
		},
		CORS: CORSConfig{
			Origins: parseOrigins(v.GetString("CORS_ORIGINS")),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// Validate database config
	if c.Database.Path == "" {
		return fmt.Errorf("DB_PATH is required")
	}

	// Validate pipeline knobs
	if c.Pipeline.DPI < 72 || c.Pipeline.DPI > 600 {
		return fmt.Errorf("PIPELINE_DPI must be between 72 and 600")
	}
	if c.Pipeline.MaxPages < 1 {
		return fmt.Errorf("PIPELINE_MAX_PAGES must be at least 1")
	}
	if c.Pipeline.EdificabilityRatio <= 0 || c.Pipeline.EdificabilityRatio > 1 {
		return fmt.Errorf("PIPELINE_RATIO must be in (0, 1]")
	}
	if c.Pipeline.PromptVersion == "" {
		return fmt.Errorf("PIPELINE_PROMPT_VERSION is required")
	}

	// Validate vision config
	if c.Vision.Endpoint == "" {
		return fmt.Errorf("VISION_ENDPOINT is required")
	}
	if c.Vision.Model == "" {
		return fmt.Errorf("VISION_MODEL is required")
	}
	if c.Vision.Timeout <= 0 {
		return fmt.Errorf("VISION_TIMEOUT_SECONDS must be positive")
	}

	// Validate geocoder config
	if c.Geocoder.BaseURL == "" {
		return fmt.Errorf("GEOCODER_BASE_URL is required")
	}
	if c.Geocoder.UserAgent == "" {
		return fmt.Errorf("GEOCODER_USER_AGENT is required")
	}
	if c.Geocoder.Timeout <= 0 {
		return fmt.Errorf("GEOCODER_TIMEOUT_SECONDS must be positive")
	}

	// Validate CORS config
	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	return nil
}

// parseOrigins splits a comma-separated string of origins into a slice.
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
