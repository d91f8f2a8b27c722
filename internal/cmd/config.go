package main

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds every recognized server option. Values come from the
// environment (after godotenv); an optional yaml file overrides them.
type Config struct {
	Port           string   `env:"PORT" envDefault:"3000"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	MaxTime        int      `env:"MAX_TIME" envDefault:"60"`
	PointsAwarded  int      `env:"POINTS_AWARDED" envDefault:"5"`
	CatalogPath    string   `env:"CATALOG_PATH" envDefault:"catalog.json"`
	LogDir         string   `env:"LOG_DIR" envDefault:"logs"`
	ConfigPath     string   `env:"CONFIG_PATH"`
}

// fileConfig mirrors the optional yaml config file
type fileConfig struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Game struct {
		MaxTime       int `yaml:"max_time"`
		PointsAwarded int `yaml:"points_awarded"`
	} `yaml:"game"`
	Paths struct {
		Catalog string `yaml:"catalog"`
		LogDir  string `yaml:"log_dir"`
	} `yaml:"paths"`
}

func loadConfig() (*Config, error) {
	var config Config
	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if config.ConfigPath != "" {
		if err := applyConfigFile(&config, config.ConfigPath); err != nil {
			return nil, err
		}
	}

	return &config, nil
}

func applyConfigFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if file.Server.Port != "" {
		config.Port = file.Server.Port
	}
	if len(file.Server.AllowedOrigins) > 0 {
		config.AllowedOrigins = file.Server.AllowedOrigins
	}
	if file.Game.MaxTime > 0 {
		config.MaxTime = file.Game.MaxTime
	}
	if file.Game.PointsAwarded > 0 {
		config.PointsAwarded = file.Game.PointsAwarded
	}
	if file.Paths.Catalog != "" {
		config.CatalogPath = file.Paths.Catalog
	}
	if file.Paths.LogDir != "" {
		config.LogDir = file.Paths.LogDir
	}

	return nil
}
