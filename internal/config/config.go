package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Server
	ListenAddr  string `env:"NOVACHAT_LISTEN_ADDR" envDefault:"0.0.0.0:8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Inference backend (an OpenAI-compatible endpoint, e.g. LM Studio)
	BackendHost    string        `env:"NOVACHAT_BACKEND_HOST" envDefault:"127.0.0.1"`
	BackendPort    int           `env:"NOVACHAT_BACKEND_PORT" envDefault:"1234"`
	BackendPath    string        `env:"NOVACHAT_BACKEND_PATH" envDefault:"/v1/chat/completions"`
	BackendModel   string        `env:"NOVACHAT_BACKEND_MODEL" envDefault:"local-model"`
	BackendTimeout time.Duration `env:"NOVACHAT_BACKEND_TIMEOUT" envDefault:"180s"`

	// Generation parameters forwarded with every completion request
	Temperature float64 `env:"NOVACHAT_TEMPERATURE" envDefault:"0.7"`
	MaxTokens   int     `env:"NOVACHAT_MAX_TOKENS" envDefault:"2000"`

	// Turn behavior
	HistoryWindow  int `env:"NOVACHAT_HISTORY_WINDOW" envDefault:"50"`
	PasswordMinLen int `env:"NOVACHAT_PASSWORD_MIN_LEN" envDefault:"4"`

	// Optional append-only turn journal; empty disables it
	JournalPath string `env:"NOVACHAT_JOURNAL_PATH"`

	// Client
	ServerAddr string `env:"NOVACHAT_SERVER_ADDR" envDefault:"127.0.0.1:8080"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// BackendURL is the full completions endpoint the gateway posts to.
func (c *Config) BackendURL() string {
	return "http://" + net.JoinHostPort(c.BackendHost, strconv.Itoa(c.BackendPort)) + c.BackendPath
}
