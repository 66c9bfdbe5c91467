package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/gorelay/pkg/auth"
	"github.com/NicolasHaas/gorelay/pkg/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("LoadConfig(\"\") mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8189", cfg.ListenAddr())
}

func TestLoadConfigFile(t *testing.T) {
	want := DefaultConfig()
	want.Host = "127.0.0.1"
	want.Port = 9000
	want.WebSocketAddr = ":9001"
	want.IdleTimeout = 5 * time.Minute
	want.Limits.MessageRate = 2
	want.Limits.MessageBurst = 10
	want.Auth.Backend = auth.BackendSQLite
	want.Auth.SQLitePath = "/var/lib/gorelay/accounts.db"
	want.Auth.Accounts = []model.Account{
		{Login: "ops", Password: "hunter22", DisplayName: "ops", Role: model.RoleAdmin},
	}

	tcases := map[string]struct {
		file    string
		content string
	}{
		"yaml": {
			file: "gorelay.yaml",
			content: `
host: 127.0.0.1
port: 9000
websocket_addr: ":9001"
idle_timeout: 5m
limits:
  message_rate: 2
  message_burst: 10
auth:
  backend: sqlite
  sqlite_path: /var/lib/gorelay/accounts.db
  accounts:
    - login: ops
      password: hunter22
      display_name: ops
      role: admin
`,
		},
		"toml": {
			file: "gorelay.toml",
			content: `
host = "127.0.0.1"
port = 9000
websocket_addr = ":9001"
idle_timeout = "5m"

[limits]
message_rate = 2.0
message_burst = 10

[auth]
backend = "sqlite"
sqlite_path = "/var/lib/gorelay/accounts.db"

[[auth.accounts]]
login = "ops"
password = "hunter22"
display_name = "ops"
role = "admin"
`,
		},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadConfig(writeFile(t, tc.file, tc.content))
			require.NoError(t, err)
			if diff := cmp.Diff(want, cfg); diff != "" {
				t.Errorf("LoadConfig mismatch (-want +got):\n%s", diff)
			}
			require.NoError(t, cfg.Validate())
		})
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "gorelay.yaml", "port: 9000\nauth:\n  backend: sqlite\n")

	t.Setenv("GORELAY_PORT", "7000")
	t.Setenv("GORELAY_METRICS_ADDR", "127.0.0.1:9999")
	t.Setenv("GORELAY_LIMITS_MESSAGE_RATE", "1.5")
	t.Setenv("GORELAY_AUTH_BACKEND", "postgres")
	t.Setenv("GORELAY_AUTH_DB_HOST", "db.internal")
	t.Setenv("GORELAY_AUTH_DB_NAME", "chat")
	t.Setenv("GORELAY_AUTH_DB_USER", "relay")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "127.0.0.1:9999", cfg.MetricsAddr)
	assert.InDelta(t, 1.5, cfg.Limits.MessageRate, 1e-9)
	assert.Equal(t, auth.BackendPostgres, cfg.Auth.Backend)
	assert.Equal(t, "postgres://relay:@db.internal:5432/chat?sslmode=disable", cfg.Auth.PostgresDSN())
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigErrors(t *testing.T) {
	tcases := map[string]string{
		"missing file": filepath.Join(t.TempDir(), "nope.yaml"),
		"bad yaml":     writeFile(t, "bad.yaml", "port: [\n"),
		"bad toml":     writeFile(t, "bad.toml", "port = \n"),
		"unknown ext":  writeFile(t, "gorelay.ini", "port=1\n"),
	}
	for name, path := range tcases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(path)
			require.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tcases := map[string]func(*Config){
		"port out of range": func(c *Config) { c.Port = 70000 },
		"negative timeout":  func(c *Config) { c.IdleTimeout = -time.Second },
		"negative rate":     func(c *Config) { c.Limits.MessageRate = -1 },
		"unknown backend":   func(c *Config) { c.Auth.Backend = "redis" },
		"sqlite no path": func(c *Config) {
			c.Auth.Backend = auth.BackendSQLite
			c.Auth.SQLitePath = ""
		},
		"postgres no host": func(c *Config) {
			c.Auth.Backend = auth.BackendPostgres
			c.Auth.Database = "chat"
			c.Auth.User = "relay"
		},
		"bad sslmode": func(c *Config) { c.Auth.SSLMode = "sometimes" },
		"seed without display name": func(c *Config) {
			c.Auth.Accounts = []model.Account{{Login: "ops", Password: "hunter22"}}
		},
	}
	for name, mutate := range tcases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestExportAccountsYAML(t *testing.T) {
	ctx := context.Background()
	provider := auth.NewMemory(model.Account{Login: "alice", Password: "secret1", DisplayName: "Alice"})
	require.NoError(t, provider.Initialize(ctx))
	require.NoError(t, provider.Ban(ctx, "Alice"))

	data, err := ExportAccountsYAML(ctx, provider)
	require.NoError(t, err)

	var got AccountsExport
	require.NoError(t, yaml.Unmarshal(data, &got))
	want := []model.Account{
		auth.DefaultAdmin,
		{Login: "alice", Password: "secret1", DisplayName: "Alice", Role: model.RoleUser, Banned: true},
	}
	if diff := cmp.Diff(want, got.Accounts); diff != "" {
		t.Errorf("exported accounts mismatch (-want +got):\n%s", diff)
	}

	// The export can be fed back as seed accounts.
	reseeded := auth.NewMemory(got.Accounts...)
	require.NoError(t, reseeded.Initialize(ctx))
	banned, err := reseeded.IsBanned(ctx, "Alice")
	require.NoError(t, err)
	assert.True(t, banned)
}
