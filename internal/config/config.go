package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	GithubToken        string        `mapstructure:"GITHUB_TOKEN"`
	TargetRepositories string        `mapstructure:"TARGET_REPOSITORIES"`
	MaxCommitsPerRepo  int           `mapstructure:"MAX_COMMITS_PER_REPO"`
	OutputDir          string        `mapstructure:"OUTPUT_DIR"`
	SyncInterval       time.Duration `mapstructure:"SYNC_INTERVAL"`
	HTTPAddr           string        `mapstructure:"HTTP_ADDR"`

	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `mapstructure:"S3_SECRET_KEY"`
	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3UseSSL    bool   `mapstructure:"S3_USE_SSL"`
}

// LoadConfig reads configuration from file and/or environment variables.
// A missing credential or an empty repository list is the only configuration
// state that halts the process before any work starts.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_COMMITS_PER_REPO", 100)
	viper.SetDefault("OUTPUT_DIR", "./output")
	viper.SetDefault("SYNC_INTERVAL", "24h")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("S3_ENDPOINT", "localhost:9000")
	viper.SetDefault("S3_ACCESS_KEY", "minioadmin")
	viper.SetDefault("S3_SECRET_KEY", "minioadmin")
	viper.SetDefault("S3_BUCKET", "commit-data")
	viper.SetDefault("S3_USE_SSL", false)

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range []string{"GITHUB_TOKEN", "TARGET_REPOSITORIES"} {
		_ = viper.BindEnv(key)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.GithubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is a required configuration field")
	}
	if strings.TrimSpace(cfg.TargetRepositories) == "" {
		return nil, errors.New("TARGET_REPOSITORIES must contain at least one repository")
	}

	return &cfg, nil
}
