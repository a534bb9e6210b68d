package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"BriefingScanner/internal/app"
	"BriefingScanner/internal/config"
	"BriefingScanner/internal/logging"
)

type options struct {
	Config  string   `short:"c" long:"config" env:"BRIEFING_SCANNER_CONFIG" description:"path to YAML configuration"`
	Once    bool     `long:"once" description:"run a single briefing cycle and exit"`
	Tickers []string `short:"t" long:"ticker" description:"restrict the run to these tickers (repeatable)"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(1)
	}

	cfg := config.Load(opts.Config)
	logger := logging.NewWithFile(cfg.Logging.Level, cfg.Logging.File)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger, opts.Tickers)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	run := application.Run
	if opts.Once {
		run = application.RunOnce
	}

	if err := run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
