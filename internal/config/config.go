package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	ManifestPath string `envconfig:"MANIFEST_PATH" default:"pipelines.yaml"`
	InstallRoot  string `envconfig:"INSTALL_ROOT" default:"."`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"INFO"`
	DBPath       string `envconfig:"DB_PATH" default:"artifacts.db"`
	MaxParallel  int    `envconfig:"MAX_PARALLEL" default:"2"`

	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`
	KeepFailedFor     time.Duration `envconfig:"KEEP_FAILED_FOR" default:"72h"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`
	SourceTimeout     time.Duration `envconfig:"SOURCE_TIMEOUT" default:"30s"`

	Aria2 struct {
		Host           string        `split_words:"true" default:"localhost"`
		Ports          []int         `split_words:"true" default:"6800,16800"`
		Secret         string        `split_words:"true"`
		Bootstrap      bool          `split_words:"true" default:"true"`
		Binary         string        `split_words:"true" default:"aria2c"`
		MinVersion     string        `split_words:"true" default:"1.35.0"`
		RequestTimeout time.Duration `split_words:"true" default:"10s"`
	}

	Download struct {
		MaxAttempts     int           `split_words:"true" default:"3"`
		RetryWait       time.Duration `split_words:"true" default:"15s"`
		PollInterval    time.Duration `split_words:"true" default:"500ms"`
		ProbeTimeout    time.Duration `split_words:"true" default:"10s"`
		Split           int           `split_words:"true" default:"8"`
		MaxConnections  int           `split_words:"true" default:"8"`
		MinSplitSize    string        `split_words:"true" default:"1M"`
		UserAgent       string        `split_words:"true" default:"Mozilla/5.0 (X11; Linux x86_64) mocap_installer"`
		ProgressLogStep int64         `split_words:"true" default:"104857600"`
	}

	HuggingFace struct {
		Token      string `split_words:"true"`
		Endpoint   string `split_words:"true" default:"https://huggingface.co"`
		Mirror     string `split_words:"true" default:"https://hf-mirror.com"`
		NeedMirror bool   `split_words:"true"`
	}

	CookieHost struct {
		SessionCookie string `split_words:"true" default:"PHPSESSID"`
		SessionID     string `split_words:"true"`
		JarDir        string `split_words:"true"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"mocap_installer"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9094"`
		Username        string        `split_words:"true"`
		Password        string        `split_words:"true"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables prefixed with MOCAP_ and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("mocap", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.MaxParallel <= 0 {
		return nil, fmt.Errorf("MAX_PARALLEL must be positive, got %d", cfg.MaxParallel)
	}

	if cfg.Download.MaxAttempts <= 0 {
		return nil, fmt.Errorf("DOWNLOAD_MAX_ATTEMPTS must be positive, got %d", cfg.Download.MaxAttempts)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
