package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/vulnverified/aegis/internal/config"
	"github.com/vulnverified/aegis/internal/engine"
	"github.com/vulnverified/aegis/internal/logger"
	"github.com/vulnverified/aegis/internal/metrics"
	"github.com/vulnverified/aegis/internal/osint"
	"github.com/vulnverified/aegis/internal/output"
	"github.com/vulnverified/aegis/internal/recon"
	"github.com/vulnverified/aegis/internal/target"
	"github.com/vulnverified/aegis/internal/wordlist"
)

func (c *cli) run(cmd *cobra.Command, host string, sel engine.Selection) error {
	cfg, err := config.Load(c.v, c.configFile)
	if err != nil {
		return err
	}

	// Respect NO_COLOR env var.
	noColor := cfg.Output.NoColor
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		noColor = true
	}
	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	tgt, err := target.New(host)
	if err != nil {
		return err
	}

	labels := wordlist.Subdomains()
	if sel.Subdomains && cfg.Subdomains.Wordlist != "" {
		if labels, err = wordlist.Load(cfg.Subdomains.Wordlist); err != nil {
			return err
		}
	}
	engCfg, err := cfg.EngineConfig(labels)
	if err != nil {
		return err
	}

	// Set up context with signal handling for clean Ctrl+C.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if cfg.Deadline > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
	}()

	rec := metrics.New()
	userAgent := cfg.Subdomains.UserAgent
	if userAgent == "" {
		userAgent = fmt.Sprintf("aegis/%s (+https://github.com/vulnverified/aegis)", version)
	}

	reconOpts := recon.Options{
		UserAgent:    userAgent,
		ProbeTimeout: cfg.Subdomains.Timeout,
		Log:          log,
		Metrics:      rec,
	}
	stages := engine.Stages{
		Prober:  recon.NewSubdomainProber(reconOpts),
		Scanner: recon.NewPortScanner(reconOpts),
		Gatherer: osint.New(osint.Options{
			UserAgent:    userAgent,
			Timeout:      cfg.OSINT.Timeout,
			RateLimit:    cfg.OSINT.RateLimit,
			Concurrency:  cfg.OSINT.Concurrency,
			ZoneTransfer: cfg.OSINT.ZoneTransfer,
			PassiveDNS:   cfg.OSINT.PassiveDNS,
			Log:          log,
			Metrics:      rec,
		}),
	}

	showProgress := format == output.FormatTable && !c.silent
	progress := output.NewProgress(os.Stderr, c.verbose, !showProgress, noColor)
	if showProgress {
		output.WriteHeader(os.Stderr, noColor)
	}

	e := engine.New(engCfg, stages,
		engine.WithLogger(log),
		engine.WithMetrics(rec),
		engine.WithProgress(progress),
	)
	report, err := e.Run(ctx, tgt, sel)
	if err != nil {
		return err
	}
	progress.Complete()

	if path := cfg.Output.MetricsFile; path != "" {
		if err := rec.WriteTextfile(path); err != nil {
			log.Warnw("Writing metrics failed", "path", path, "error", err)
		}
	}

	return output.Write(cmd.OutOrStdout(), report, format, noColor)
}
