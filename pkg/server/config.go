package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/gorelay/pkg/auth"
	"github.com/NicolasHaas/gorelay/pkg/model"
)

// EnvPrefix prefixes every environment override, e.g. GORELAY_PORT.
const EnvPrefix = "GORELAY_"

// Config holds server configuration.
type Config struct {
	Host          string        `yaml:"host" toml:"host" env:"HOST"`
	Port          int           `yaml:"port" toml:"port" env:"PORT" validate:"gte=0,lte=65535"`
	WebSocketAddr string        `yaml:"websocket_addr" toml:"websocket_addr" env:"WEBSOCKET_ADDR"` // empty = disabled
	MetricsAddr   string        `yaml:"metrics_addr" toml:"metrics_addr" env:"METRICS_ADDR"`       // empty = disabled
	IdleTimeout   time.Duration `yaml:"idle_timeout" toml:"idle_timeout" env:"IDLE_TIMEOUT" validate:"gte=0"`
	WriteTimeout  time.Duration `yaml:"write_timeout" toml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gte=0"`
	MetricsLog    time.Duration `yaml:"metrics_log_interval" toml:"metrics_log_interval" env:"METRICS_LOG_INTERVAL" validate:"gte=0"`

	Limits Limits      `yaml:"limits" toml:"limits" envPrefix:"LIMITS_"`
	Auth   auth.Config `yaml:"auth" toml:"auth" envPrefix:"AUTH_"`
}

// Limits configures per-session flood control.
type Limits struct {
	MessageRate  float64 `yaml:"message_rate" toml:"message_rate" env:"MESSAGE_RATE" validate:"gte=0"` // lines/second, 0 = unlimited
	MessageBurst int     `yaml:"message_burst" toml:"message_burst" env:"MESSAGE_BURST" validate:"gte=0"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:         8189,
		MetricsAddr:  ":9190",
		IdleTimeout:  20 * time.Minute,
		WriteTimeout: 10 * time.Second,
		MetricsLog:   60 * time.Second,
		Limits: Limits{
			MessageRate:  0,
			MessageBurst: 5,
		},
		Auth: auth.DefaultConfig(),
	}
}

// ListenAddr is the TCP bind address.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadConfig starts from DefaultConfig, applies the file at path (YAML or
// TOML by extension; empty path skips it) and then GORELAY_* environment
// variables. The result is not validated; callers apply flags first and then
// call Validate.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
		if err != nil {
			return cfg, fmt.Errorf("server: read config: %w", err)
		}
		if err := decodeConfig(path, data, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := env.Parse(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("server: env config: %w", err)
	}
	return cfg, nil
}

func decodeConfig(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("server: parse toml config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("server: parse yaml config: %w", err)
		}
	default:
		return fmt.Errorf("server: unsupported config format %q", filepath.Ext(path))
	}
	return nil
}

var validate = validator.New()

// Validate checks field ranges and backend requirements.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("server: invalid config: %w", err)
	}
	for _, acct := range c.Auth.Accounts {
		if acct.Login == "" || acct.DisplayName == "" {
			return fmt.Errorf("server: invalid config: seed account needs login and display_name")
		}
	}
	return nil
}

// AccountsExport is the top-level YAML for account export. Its accounts list
// can be pasted into the auth.accounts section of a config file.
type AccountsExport struct {
	Accounts []model.Account `yaml:"accounts"`
}

// ExportAccountsYAML exports every account of the provider as YAML.
func ExportAccountsYAML(ctx context.Context, lister auth.Lister) ([]byte, error) {
	accounts, err := lister.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(&AccountsExport{Accounts: accounts})
}
