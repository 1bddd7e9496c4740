package server

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"
)

// Config is the runtime configuration, loaded from the environment (a local
// .env file is picked up automatically).
type Config struct {
	Port          int    `env:"PORT" envDefault:"8080"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"*"`
	OracleURL     string `env:"ORACLE_URL" envDefault:"http://localhost:8000"`
	// DatabaseURL enables match-history recording when set. Leaving it empty
	// runs the server fully in memory.
	DatabaseURL string `env:"DATABASE_URL"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
