package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/Skufu/healthml/internal/logging"
)

type Config struct {
	Port         string         `yaml:"port"`
	GinMode      string         `yaml:"gin_mode"`
	ModelPath    string         `yaml:"model_path"`
	DatabaseURL  string         `yaml:"database_url"`
	EnableDB     bool           `yaml:"enable_db"`
	CacheSize    int            `yaml:"prediction_cache_size"`
	AllowOrigins []string       `yaml:"cors_allow_origins"`
	Log          logging.Config `yaml:"log"`
}

func defaultConfig() *Config {
	return &Config{
		Port:         "8000",
		GinMode:      "release",
		ModelPath:    "disease_model.json",
		CacheSize:    256,
		AllowOrigins: []string{"*"},
		Log:          logging.Config{Level: "info", Format: "json"},
	}
}

// loadConfig layers defaults, the optional CONFIG_FILE and the environment
// (including .env), in that order.
func loadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadConfigFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.GinMode = getEnv("GIN_MODE", cfg.GinMode)
	cfg.ModelPath = getEnv("MODEL_PATH", cfg.ModelPath)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.EnableDB = strings.EqualFold(getEnv("ENABLE_DB", strconv.FormatBool(cfg.EnableDB)), "true")
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	if v := os.Getenv("PREDICTION_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PREDICTION_CACHE_SIZE: %w", err)
		}
		cfg.CacheSize = n
	}
	if v := os.Getenv("CORS_ALLOW_ORIGINS"); v != "" {
		cfg.AllowOrigins = splitList(v)
	}

	if cfg.EnableDB && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}
	switch cfg.GinMode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		return nil, fmt.Errorf("GIN_MODE: unknown mode %q (want %s, %s or %s)", cfg.GinMode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
	if cfg.CacheSize < 0 {
		return nil, fmt.Errorf("PREDICTION_CACHE_SIZE must not be negative, got %d", cfg.CacheSize)
	}
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("MODEL_PATH must not be empty")
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}

	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
