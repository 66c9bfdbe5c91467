package auth

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/NicolasHaas/gorelay/pkg/model"
)

// Backend names accepted in Config.Backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config selects and parameterizes the account backend.
type Config struct {
	Backend    string `yaml:"backend" toml:"backend" env:"BACKEND" validate:"oneof=memory sqlite postgres"`
	SQLitePath string `yaml:"sqlite_path" toml:"sqlite_path" env:"SQLITE_PATH" validate:"required_if=Backend sqlite"`

	Host     string `yaml:"host" toml:"host" env:"DB_HOST" validate:"required_if=Backend postgres"`
	Port     int    `yaml:"port" toml:"port" env:"DB_PORT" validate:"gte=0,lte=65535"`
	Database string `yaml:"database" toml:"database" env:"DB_NAME" validate:"required_if=Backend postgres"`
	User     string `yaml:"user" toml:"user" env:"DB_USER" validate:"required_if=Backend postgres"`
	Password string `yaml:"password" toml:"password" env:"DB_PASSWORD"`
	SSLMode  string `yaml:"sslmode" toml:"sslmode" env:"DB_SSLMODE" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`

	// Accounts are inserted at startup when their login does not exist yet.
	Accounts []model.Account `yaml:"accounts" toml:"accounts"`
}

// DefaultConfig returns the in-memory backend with no extra accounts.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendMemory,
		SQLitePath: "gorelay.db",
		Port:       5432,
		SSLMode:    "disable",
	}
}

// PostgresDSN builds a connection URL from the host/database/user/password fields.
func (c Config) PostgresDSN() string {
	host := c.Host
	if c.Port > 0 {
		host += ":" + strconv.Itoa(c.Port)
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   host,
		Path:   "/" + c.Database,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// New returns the provider named by cfg.Backend without initializing it.
func New(cfg Config) (Provider, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemory(cfg.Accounts...), nil
	case BackendSQLite:
		return NewSQLite(cfg.SQLitePath, cfg.Accounts...), nil
	case BackendPostgres:
		return NewPostgres(cfg.PostgresDSN(), cfg.Accounts...), nil
	default:
		return nil, fmt.Errorf("auth: unknown backend %q", cfg.Backend)
	}
}

// Open creates the configured provider and initializes it.
func Open(ctx context.Context, cfg Config) (Provider, error) {
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := p.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("auth: initialize %s backend: %w", cfg.Backend, err)
	}
	return p, nil
}
