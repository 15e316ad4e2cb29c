/**
 * Configuration for the OCR token worker and CLI
 *
 * Loads configuration from environment variables (optionally seeded from a
 * .env file by the entry points).
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultLanguages is the language set used when OCR_LANGUAGES is unset.
const DefaultLanguages = "eng+fra+deu+spa"

// Queue backends
const (
	QueueBackendRedis = "redis"
	QueueBackendAsynq = "asynq"
)

// Config holds worker configuration
type Config struct {
	// OCR configuration
	Languages       []string
	TessdataPrefix  string
	PageSegMode     int
	RasterDPI       int
	ExifRotate      bool
	StrictAlignment bool
	Binarize        bool

	// Redis / queue configuration
	RedisURL     string
	QueueName    string
	QueueBackend string

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout int // milliseconds

	// Temporary directory for job file buffers
	TempDir string

	// Logging
	LogLevel string
	AppEnv   string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Languages:         ParseLanguages(getEnvOrDefault("OCR_LANGUAGES", DefaultLanguages)),
		TessdataPrefix:    getEnvOrDefault("TESSDATA_PREFIX", ""),
		PageSegMode:       getEnvAsIntOrDefault("OCR_PAGE_SEG_MODE", 3),
		RasterDPI:         getEnvAsIntOrDefault("PDF_RASTER_DPI", 300),
		ExifRotate:        getEnvAsBoolOrDefault("OCR_EXIF_ROTATE", false),
		StrictAlignment:   getEnvAsBoolOrDefault("OCR_STRICT_ALIGNMENT", false),
		Binarize:          getEnvAsBoolOrDefault("OCR_BINARIZE", true),
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "ocr:jobs"),
		QueueBackend:      strings.ToLower(getEnvOrDefault("QUEUE_BACKEND", QueueBackendRedis)),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout: getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		TempDir:           getEnvOrDefault("TEMP_DIR", os.TempDir()),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		AppEnv:            getEnvOrDefault("APP_ENV", "development"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if len(c.Languages) == 0 {
		return fmt.Errorf("OCR_LANGUAGES must name at least one language")
	}

	if c.PageSegMode < 0 || c.PageSegMode > 13 {
		return fmt.Errorf("OCR_PAGE_SEG_MODE must be between 0 and 13, got %d", c.PageSegMode)
	}

	if c.RasterDPI < 72 || c.RasterDPI > 1200 {
		return fmt.Errorf("PDF_RASTER_DPI must be between 72 and 1200, got %d", c.RasterDPI)
	}

	if c.QueueBackend != QueueBackendRedis && c.QueueBackend != QueueBackendAsynq {
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", QueueBackendRedis, QueueBackendAsynq, c.QueueBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.ProcessingTimeout < 0 {
		return fmt.Errorf("PROCESSING_TIMEOUT must not be negative, got %d", c.ProcessingTimeout)
	}

	return nil
}

// IsDevelopment reports whether the process runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

// LanguageSpec joins the configured languages the way Tesseract expects them.
func (c *Config) LanguageSpec() string {
	return strings.Join(c.Languages, "+")
}

// ParseLanguages splits a "+" or "," separated language list.
func ParseLanguages(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '+' || r == ',' || r == ' '
	})
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
