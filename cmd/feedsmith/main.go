package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/feedsmith/feedsmith/pkg/config"
	"github.com/feedsmith/feedsmith/pkg/fetch"
	"github.com/feedsmith/feedsmith/pkg/icon"
	"github.com/feedsmith/feedsmith/pkg/repository"
	"github.com/feedsmith/feedsmith/pkg/scheduler"
	"github.com/feedsmith/feedsmith/pkg/throttle"
	"github.com/feedsmith/feedsmith/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"c" long:"config" env:"CONFIG" default:"config.yml" description:"config file path"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	if opts.NoColor {
		color.NoColor = true
	}
	setupLog(opts.Debug)

	lgr.Printf("[INFO] starting feedsmith version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		lgr.Printf("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, &opts); err != nil {
		lgr.Printf("[ERROR] %v", err)
		cancel()
		os.Exit(1)
	}
	cancel()

	lgr.Printf("[INFO] shutdown complete")
}

func run(ctx context.Context, opts *Opts) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repos, err := repository.NewRepositories(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			lgr.Printf("[WARN] failed to close storage: %v", err)
		}
	}()

	// shared concurrency primitives, injected into both network clients
	pool := throttle.NewPool(cfg.Schedule.MaxConcurrent)
	locks := throttle.NewKeyedMutex()

	fetcher := fetch.New(pool, locks, cfg.HTTP.Timeout, cfg.HTTP.UserAgent)
	finder := icon.NewFinder(pool, locks, cfg.HTTP.Timeout, cfg.HTTP.UserAgent)

	sweeper := scheduler.NewSweeper(scheduler.SweeperConfig{
		Users:          repos.User,
		Feeds:          repos.Feed,
		Entries:        repos.Entry,
		Icons:          repos.Icon,
		Fetcher:        fetcher,
		Finder:         finder,
		ErrorThreshold: cfg.Schedule.ErrorThreshold,
		MaxConcurrent:  cfg.Schedule.MaxConcurrent,
	})

	sched := scheduler.New(repos.Job)
	if err := sched.AddJob(ctx, "entries", cfg.Schedule.EntryInterval, 0, sweeper.SweepEntries); err != nil {
		return fmt.Errorf("add entries job: %w", err)
	}
	if err := sched.AddJob(ctx, "icons", cfg.Schedule.IconInterval, cfg.Schedule.IconOffset, sweeper.SweepIcons); err != nil {
		return fmt.Errorf("add icons job: %w", err)
	}

	sched.Start(ctx)
	defer sched.Stop()

	srv := server.New(cfg, &apiStore{repos: repos}, sched, sweeper, revision, opts.Debug)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))
	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
