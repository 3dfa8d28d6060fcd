// Package config loads service and client settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Server holds everything `dcims serve` reads from the environment.
type Server struct {
	DatabaseURL   string   `env:"DCIMS_DATABASE_URL" envDefault:"./dcims.db"`
	AnonKey       string   `env:"DCIMS_ANON_KEY,required,notEmpty"`
	JWTSecret     string   `env:"DCIMS_JWT_SECRET,required,notEmpty"`
	Port          string   `env:"DCIMS_PORT" envDefault:"8080"`
	StrictFilter  bool     `env:"DCIMS_STRICT_FILTERS" envDefault:"true"`
	MaxBodyBytes  int64    `env:"DCIMS_MAX_BODY_BYTES" envDefault:"1048576"`
	MaxWidgetRows int      `env:"DCIMS_WIDGET_MAX_ROWS" envDefault:"50000"`
	CORSOrigins   []string `env:"DCIMS_CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	LogLevel      string   `env:"DCIMS_LOG_LEVEL" envDefault:"info"`
}

// Client holds the settings the import and export commands use to reach a
// running server.
type Client struct {
	URL     string `env:"DCIMS_URL" envDefault:"http://localhost:8080"`
	AnonKey string `env:"DCIMS_ANON_KEY,required,notEmpty"`
	Token   string `env:"DCIMS_TOKEN"`
}

// loadEnvFile pre-loads envFile into the process environment. Variables
// already set take precedence over the file.
func loadEnvFile(envFile string) error {
	if envFile == "" {
		return nil
	}
	slog.Info("loading env from file", "path", envFile)
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("load env file %q: %w", envFile, err)
	}
	return nil
}

// LoadServer reads the server configuration. envFile may be empty.
func LoadServer(envFile string) (*Server, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg := &Server{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.MaxBodyBytes <= 0 {
		return nil, fmt.Errorf("DCIMS_MAX_BODY_BYTES must be positive, got %d", cfg.MaxBodyBytes)
	}
	if cfg.MaxWidgetRows <= 0 {
		return nil, fmt.Errorf("DCIMS_WIDGET_MAX_ROWS must be positive, got %d", cfg.MaxWidgetRows)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient reads the CLI client configuration. envFile may be empty.
func LoadClient(envFile string) (*Client, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg := &Client{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return cfg, nil
}

// SlogLevel returns the configured log level. LoadServer has already
// rejected unknown names.
func (c *Server) SlogLevel() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("DCIMS_LOG_LEVEL: %w", err)
	}
	return l, nil
}
