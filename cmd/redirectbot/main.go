package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/SAScholar/STConverterWatchingDog/internal/config"
	"github.com/SAScholar/STConverterWatchingDog/internal/crawler"
	"github.com/SAScholar/STConverterWatchingDog/internal/logging"
	"github.com/SAScholar/STConverterWatchingDog/internal/variant"
	"github.com/SAScholar/STConverterWatchingDog/internal/wiki"
	"github.com/SAScholar/STConverterWatchingDog/internal/writer"
)

// CLIFlags are the command line flags. Anything left empty falls back to
// the config file and REDIRECTBOT_ environment variables.
type CLIFlags struct {
	Config   string `help:"Path to TOML configuration file" short:"c" type:"path"`
	LogFile  string `help:"Log file, '-' for stderr"`
	LogLevel string `help:"Log level (debug, info, warn, error)"`
	DryRun   bool   `help:"Log intended edits without saving them"`
	Once     bool   `help:"Run a single poll cycle and exit"`
}

func main() {
	var flags CLIFlags
	kong.Parse(&flags,
		kong.Name("redirectbot"),
		kong.Description("Keeps Simplified/Traditional variant redirects pointing at the same target."),
	)

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(flags CLIFlags) error {
	cfg, err := config.Load(flags.Config)
	if err != nil {
		return err
	}
	if flags.LogFile != "" {
		cfg.Log.File = flags.LogFile
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if flags.DryRun {
		cfg.Loop.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer, err := logging.New(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer closer.Close()

	mode, err := variant.ParseMode(cfg.Variant.Classify)
	if err != nil {
		return err
	}
	conv, err := variant.NewOpenCC()
	if err != nil {
		return err
	}

	client, err := wiki.New(wiki.Options{
		APIURL:       cfg.Wiki.APIURL,
		UserAgent:    cfg.Wiki.UserAgent,
		Username:     cfg.Wiki.Username,
		Password:     cfg.Wiki.Password,
		Timeout:      cfg.Wiki.Timeout,
		EditInterval: cfg.Wiki.EditInterval,
		MaxLag:       cfg.Wiki.MaxLag,
	})
	if err != nil {
		return err
	}

	store, err := writer.New(cfg.Store.Path, cfg.Store.LockPath, cfg.Store.LockTimeout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Login(ctx); err != nil {
		logger.Error("login failed", "user", cfg.Wiki.Username, "err", err)
		return err
	}
	if cfg.Wiki.Username == "" {
		logger.Warn("no wiki username configured, running anonymously")
	}

	prop := crawler.New(client, conv, store, crawler.Options{
		Namespace: cfg.Watch.Namespace,
		Tag:       cfg.Watch.Tag,
		Limit:     cfg.Watch.Limit,
		Summary:   cfg.Watch.Summary,
		Mode:      mode,
		Idle:      cfg.Loop.Idle,
		DryRun:    cfg.Loop.DryRun,
	}, logger)

	if flags.Once {
		res := prop.RunOnce(ctx)
		logger.Info("single cycle finished", "status", res.Status, "changes", len(res.Changes))
		return res.Err
	}

	err = prop.Run(ctx)
	logger.Info("stopped", "reason", err, "summary", prop.Progress().Summary())
	if ctx.Err() != nil {
		return nil
	}
	return err
}
