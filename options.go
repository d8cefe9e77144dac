package main

import (
	"context"
	"time"

	"netscope/internal/capture"
	"netscope/internal/config"
	"netscope/internal/logger"
	"netscope/internal/pipeline"
	"netscope/internal/store"
)

// Options are shared by every command.
type Options struct {
	ConfigFile string `short:"c" long:"config" description:"path to config.json (default: /etc/netscope/config.json, then ./config.json)"`
	Database   string `long:"db" description:"SQLite database file holding the session tables"`
	LogLevel   string `long:"log-level" description:"debug, info, warn or error"`
	Verbose    bool   `short:"v" long:"verbose" description:"log every frame (same as --log-level=debug)"`
}

// load resolves the configuration and starts logging. Flags win over the
// environment, which wins over the file.
func (o *Options) load() (*config.Config, error) {
	cfg, source, err := config.Find(o.ConfigFile)
	if err != nil {
		return nil, err
	}
	if o.Database != "" {
		cfg.Store.Path = o.Database
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.InitializeLogging(); err != nil {
		return nil, err
	}

	log := logger.GetLogger()
	if source != "" {
		log.Debug("Loaded configuration from %s", source)
	}
	log.Debug("Configuration: %s", cfg)
	return cfg, nil
}

func (o *Options) openPipeline(ctx context.Context) (*pipeline.Pipeline, *config.Config, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(ctx, store.Config{
		Path:        cfg.Store.Path,
		BusyTimeout: time.Duration(cfg.Store.BusyTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return nil, nil, err
	}
	return pipeline.New(st, captureConfig(cfg), logger.GetLogger()), cfg, nil
}

func captureConfig(cfg *config.Config) capture.Config {
	promisc := true
	if cfg.Capture.Promiscuous != nil {
		promisc = *cfg.Capture.Promiscuous
	}
	return capture.Config{
		SnapLen:      cfg.Capture.SnapLen,
		Promiscuous:  promisc,
		PollInterval: cfg.PollInterval(),
	}
}
