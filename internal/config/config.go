// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidWorkers is returned when SLIDES_WORKERS is outside 1..16.
	ErrInvalidWorkers = errors.New("config: SLIDES_WORKERS must be between 1 and 16")
	// ErrInvalidCalibrationSamples is returned when SLIDES_CALIBRATION_SAMPLES is outside 3..12.
	ErrInvalidCalibrationSamples = errors.New("config: SLIDES_CALIBRATION_SAMPLES must be between 3 and 12")
	// ErrInvalidSubprocessTimeout is returned when SUBPROCESS_TIMEOUT is not positive.
	ErrInvalidSubprocessTimeout = errors.New("config: SUBPROCESS_TIMEOUT must be positive")
	// ErrInvalidDownloadTimeout is returned when DOWNLOAD_TIMEOUT is not positive.
	ErrInvalidDownloadTimeout = errors.New("config: DOWNLOAD_TIMEOUT must be positive")
)

// Config holds all configuration for the slide extraction engine.
type Config struct {
	// Engine knobs
	Workers            int    `env:"SLIDES_WORKERS, default=8" json:"workers"`
	CalibrationSamples int    `env:"SLIDES_CALIBRATION_SAMPLES, default=8" json:"calibration_samples"`
	DetectFormat       string `env:"SLIDES_DETECT_FORMAT, default=best[height<=480][ext=mp4]/best[height<=480]/best" json:"detect_format"`
	ExtractFormat      string `env:"SLIDES_EXTRACT_FORMAT, default=best[height<=1080][ext=mp4]/best[height<=1080]/best" json:"extract_format"`
	PreferStream       bool   `env:"SLIDES_PREFER_STREAM, default=true" json:"prefer_stream"`

	// External tool paths. Empty means PATH lookup at startup.
	YtDlpPath     string `env:"YTDLP_PATH" json:"ytdlp_path,omitempty"`
	FFmpegPath    string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`
	FFprobePath   string `env:"FFPROBE_PATH" json:"ffprobe_path,omitempty"`
	TesseractPath string `env:"TESSERACT_PATH" json:"tesseract_path,omitempty"`

	// Timeouts
	SubprocessTimeout time.Duration `env:"SUBPROCESS_TIMEOUT, default=2m" json:"subprocess_timeout"`
	DownloadTimeout   time.Duration `env:"DOWNLOAD_TIMEOUT, default=10m" json:"download_timeout"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/slidecast" json:"temp_dir"`

	// Optional S3 publishing
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 publishing configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// EffectiveDownloadTimeout returns the timeout applied to full media
// downloads. Downloads are long-running, so the configured value is
// floored well above the general subprocess timeout.
func (c *Config) EffectiveDownloadTimeout() time.Duration {
	floor := max(5*c.SubprocessTimeout, 5*time.Minute)
	return max(c.DownloadTimeout, floor)
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configured values are inside their allowed
// ranges.
func (c *Config) Validate() error {
	if c.Workers < 1 || c.Workers > 16 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.Workers)
	}
	if c.CalibrationSamples < 3 || c.CalibrationSamples > 12 {
		return fmt.Errorf("%w: got %d", ErrInvalidCalibrationSamples, c.CalibrationSamples)
	}
	if c.SubprocessTimeout <= 0 {
		return ErrInvalidSubprocessTimeout
	}
	if c.DownloadTimeout <= 0 {
		return ErrInvalidDownloadTimeout
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs. Logs go to stderr so
// stdout stays free for result output.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive
// values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Workers: %d, CalibrationSamples: %d, PreferStream: %t, TempDir: %s, SubprocessTimeout: %s, DownloadTimeout: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Workers,
		c.CalibrationSamples,
		c.PreferStream,
		c.TempDir,
		c.SubprocessTimeout,
		c.DownloadTimeout,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
