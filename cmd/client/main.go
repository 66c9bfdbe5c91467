package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicolasHaas/gorelay/pkg/client"
	"github.com/NicolasHaas/gorelay/pkg/logging"
	"github.com/NicolasHaas/gorelay/pkg/version"
)

func main() {
	addr := flag.String("addr", "localhost:8189", "Server address host:port")
	bookmark := flag.String("bookmark", "", "Connect to a saved server by name")
	save := flag.String("save", "", "Save -addr under this bookmark name")
	bookmarks := flag.String("bookmarks-file", client.DefaultBookmarkPath(), "Bookmark file")
	showVersion := flag.Bool("version", false, "Print version and exit")

	// Default to "warn" so logs don't interleave with chat; override with GORELAY_LOG_LEVEL.
	level := "warn"
	if v := os.Getenv("GORELAY_LOG_LEVEL"); v != "" {
		level = v
	}
	logLevel := flag.String("log-level", level, "Log level: "+logging.LevelNames())
	flag.Parse()

	if *showVersion {
		fmt.Println("gorelay-client", version.Full())
		return
	}

	if _, err := logging.Setup(logging.Options{Level: *logLevel, Output: os.Stderr}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	store := client.NewBookmarkStore(*bookmarks)
	if err := store.Load(); err != nil {
		slog.Warn("load bookmarks", "path", *bookmarks, "err", err)
	}

	target := *addr
	name := *save
	if *bookmark != "" {
		b := store.Find(*bookmark)
		if b == nil {
			fmt.Fprintf(os.Stderr, "unknown bookmark %q\n", *bookmark)
			os.Exit(1)
		}
		target = b.Addr
		name = b.Name
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, err := client.Dial(dialCtx, target)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if name != "" {
		if *save != "" {
			store.Add(client.Bookmark{Name: name, Addr: target})
		}
		store.Touch(name, time.Now().Unix())
		if err := store.Save(); err != nil {
			slog.Warn("save bookmarks", "path", *bookmarks, "err", err)
		}
	}

	if err := c.Run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
