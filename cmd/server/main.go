package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/NicolasHaas/gorelay/pkg/auth"
	"github.com/NicolasHaas/gorelay/pkg/logging"
	"github.com/NicolasHaas/gorelay/pkg/server"
	"github.com/NicolasHaas/gorelay/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "YAML or TOML config file (optional)")
	host := flag.String("host", "", "TCP bind host (overrides config)")
	port := flag.Int("port", -1, "TCP bind port (overrides config)")
	wsAddr := flag.String("websocket", "", "WebSocket bind address, e.g. :8190 (overrides config)")
	metricsAddr := flag.String("metrics", "", "HTTP bind address for Prometheus /metrics (overrides config)")
	noMetrics := flag.Bool("no-metrics", false, "Disable the metrics endpoint")
	backend := flag.String("backend", "", "Account backend: memory, sqlite or postgres (overrides config)")
	dbPath := flag.String("db", "", "SQLite database file path (overrides config)")
	exportAccounts := flag.Bool("export-accounts", false, "Export all accounts as YAML and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")

	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	if *showVersion {
		fmt.Println("gorelay-server", version.Full())
		return
	}

	// Configure structured logging
	logger, err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	// Flags win over file and environment.
	if *host != "" {
		cfg.Host = *host
	}
	if *port >= 0 {
		cfg.Port = *port
	}
	if *wsAddr != "" {
		cfg.WebSocketAddr = *wsAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *noMetrics {
		cfg.MetricsAddr = ""
	}
	if *backend != "" {
		cfg.Auth.Backend = *backend
	}
	if *dbPath != "" {
		cfg.Auth.SQLitePath = *dbPath
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	provider, err := auth.Open(ctx, cfg.Auth)
	if err != nil {
		slog.Error("open account store", "backend", cfg.Auth.Backend, "err", err)
		os.Exit(1)
	}

	// Handle export command (run and exit)
	if *exportAccounts {
		defer provider.Close()
		lister, ok := provider.(auth.Lister)
		if !ok {
			slog.Error("export accounts", "err", fmt.Errorf("backend %q cannot list accounts", cfg.Auth.Backend))
			return
		}
		data, err := server.ExportAccountsYAML(ctx, lister)
		if err != nil {
			slog.Error("export accounts", "err", err)
			return
		}
		fmt.Print(string(data))
		return
	}

	slog.Info("starting gorelay", "version", version.String())
	srv := server.New(cfg, server.Dependencies{Provider: provider, Logger: logger})
	if err := srv.Run(ctx); err != nil {
		_ = provider.Close()
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
