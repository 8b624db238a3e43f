package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig holds the web UI listener settings.
type ServerConfig struct {
	Addr        string
	MaxUploadMB int
	Timeout     time.Duration
}

// PreviewConfig controls page thumbnails.
type PreviewConfig struct {
	DPI     int
	Quality int
}

// ExportConfig controls where and how exports are named.
type ExportConfig struct {
	Dir    string
	Suffix string
}

// Config is the top-level configuration.
type Config struct {
	Logging      LoggingConfig
	Axiom        AxiomConfig
	Server       ServerConfig
	Preview      PreviewConfig
	Export       ExportConfig
	Profile      string
	ProfilesFile string
}

// Load reads .env files (missing files are ignored) and then the environment.
// Variables already set in the environment win over .env entries.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	return FromEnv(), nil
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pagetrim.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pagetrim",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Addr:        getEnv("PAGETRIM_ADDR", "127.0.0.1:8080"),
		MaxUploadMB: parseInt(getEnv("PAGETRIM_MAX_UPLOAD_MB", "200"), 200),
		Timeout:     parseDuration(getEnv("HTTP_TIMEOUT", "60s"), 60*time.Second),
	}
	if cfg.Server.MaxUploadMB <= 0 {
		cfg.Server.MaxUploadMB = 200
	}

	cfg.Preview = PreviewConfig{
		DPI:     parseInt(getEnv("PAGETRIM_PREVIEW_DPI", "50"), 50),
		Quality: parseInt(getEnv("PAGETRIM_PREVIEW_QUALITY", "75"), 75),
	}

	cfg.Export = ExportConfig{
		Dir:    getEnv("PAGETRIM_EXPORT_DIR", "."),
		Suffix: getEnv("PAGETRIM_OUTPUT_SUFFIX", ""),
	}

	cfg.Profile = getEnv("PAGETRIM_PROFILE", DefaultProfile)
	cfg.ProfilesFile = getEnv("PAGETRIM_PROFILES_FILE", "")

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
