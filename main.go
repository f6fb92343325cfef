package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.aimuz.me/holdtalk/audio"
	"go.aimuz.me/holdtalk/config"
	"go.aimuz.me/holdtalk/history"
	"go.aimuz.me/holdtalk/hotkey/oshook"
	"go.aimuz.me/holdtalk/internal/app"
	"go.aimuz.me/holdtalk/internal/types"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config.json (default: user config dir)")
		logLevel   = flag.String("log-level", "", "override log level: debug, info, warn, error")
		lazy       = flag.Bool("lazy", false, "build the pipeline on first use")
		noNotify   = flag.Bool("no-notify", false, "disable desktop notifications")
		showRecent = flag.Int("history", 0, "print the last N sessions and exit")
	)
	flag.Parse()

	os.Exit(run(*configPath, *logLevel, *lazy, *noNotify, *showRecent))
}

func run(configPath, logLevel string, lazy, noNotify bool, showRecent int) int {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}
	if logLevel != "" {
		cfg.LogLevel = strings.ToLower(logLevel)
	}
	if lazy {
		cfg.Lazy = true
	}
	if noNotify {
		cfg.Notifications = false
	}

	logs := setupLogging(cfg)
	defer logs.Close()

	if showRecent > 0 {
		return printHistory(cfg, showRecent)
	}

	slog.Info("starting holdtalk", "version", version, "commit", commit, "date", date,
		"config", cfg.Path())

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:     cfg.SentryDSN,
			Release: "holdtalk@" + version,
		})
		if err != nil {
			slog.Warn("init sentry", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	dev, err := audio.OpenPortAudio()
	if err != nil {
		slog.Error("open audio device", "error", err)
		sentry.CaptureException(err)
		return 1
	}

	svc, err := app.New(cfg, app.Deps{
		Device:  dev,
		Source:  oshook.New(),
		Resolve: oshook.ResolveCombo,
	})
	if err != nil {
		slog.Error("initialize", "error", err)
		sentry.CaptureException(err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		slog.Error("run", "error", err)
		sentry.CaptureException(err)
		if errors.Is(err, types.ErrInitialization) {
			return 1
		}
		return 2
	}
	slog.Info("bye")
	return 0
}

// setupLogging installs a text logger writing to stderr and a rotated
// file under the log directory.
func setupLogging(cfg *config.Config) io.Closer {
	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Paths.Logs, "holdtalk.log"),
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	h := slog.NewTextHandler(io.MultiWriter(os.Stderr, rotated), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
	return rotated
}

func printHistory(cfg *config.Config, n int) int {
	store, err := history.Open(cfg.Paths.History)
	if err != nil {
		slog.Error("open history", "error", err)
		return 1
	}
	defer store.Close()

	recs, err := store.Recent(n)
	if err != nil {
		slog.Error("read history", "error", err)
		return 1
	}
	app.NewConsole(os.Stdout).History(recs)
	return 0
}
