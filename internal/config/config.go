// Package config loads process configuration from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Client configures the terminal client.
type Client struct {
	ServiceURL   string        `env:"DUEL_SERVICE_URL" envDefault:"http://localhost:8080"`
	Token        string        `env:"DUEL_TOKEN"`
	Self         string        `env:"DUEL_PLAYER"`
	TurnDuration time.Duration `env:"DUEL_TURN_DURATION" envDefault:"30s"`
	TickInterval time.Duration `env:"DUEL_TICK_INTERVAL" envDefault:"1s"`
	DialTimeout  time.Duration `env:"DUEL_DIAL_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"DUEL_WRITE_TIMEOUT" envDefault:"3s"`
	LogLevel     string        `env:"DUEL_LOG_LEVEL" envDefault:"warn"`
	LogFormat    string        `env:"DUEL_LOG_FORMAT" envDefault:"console"`
}

// Server configures the reference game service.
type Server struct {
	Addr            string        `env:"DUEL_ADDR" envDefault:":8080"`
	DatabaseURL     string        `env:"DUEL_DATABASE_URL" envDefault:"file:duel.db?_pragma=busy_timeout(5000)"`
	JWTSecret       string        `env:"DUEL_JWT_SECRET,required"`
	TokenTTL        time.Duration `env:"DUEL_TOKEN_TTL" envDefault:"24h"`
	TurnDuration    time.Duration `env:"DUEL_TURN_DURATION" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"DUEL_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"DUEL_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"DUEL_LOG_FORMAT" envDefault:"json"`
}

// LoadDotEnv reads files into the environment without overriding variables
// that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ParseEnv fills target from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func LoadClient() (Client, error) {
	var c Client
	if err := LoadDotEnv(); err != nil {
		return c, err
	}
	err := ParseEnv(&c)
	return c, err
}

func LoadServer() (Server, error) {
	var s Server
	if err := LoadDotEnv(); err != nil {
		return s, err
	}
	if err := ParseEnv(&s); err != nil {
		return s, err
	}
	if s.TurnDuration <= 0 {
		return s, fmt.Errorf("DUEL_TURN_DURATION must be positive, got %s", s.TurnDuration)
	}
	return s, nil
}
