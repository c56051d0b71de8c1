package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chordring/internal/bootstrap"
	"chordring/internal/client"
	"chordring/internal/client/tester"
	"chordring/internal/client/tester/writer"
	"chordring/internal/config"
	"chordring/internal/logger"
	zapfactory "chordring/internal/logger/zap"
)

var defaultConfigPath = "config/tester/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := tester.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(config.LoggerConfig{
			Active:   cfg.Logger.Active,
			Level:    cfg.Logger.Level,
			Encoding: cfg.Logger.Encoding,
			Mode:     cfg.Logger.Mode,
			File: config.FileLoggerConfig{
				Path:       cfg.Logger.File.Path,
				MaxSize:    cfg.Logger.File.MaxSize,
				MaxBackups: cfg.Logger.File.MaxBackups,
				MaxAge:     cfg.Logger.File.MaxAge,
				Compress:   cfg.Logger.File.Compress,
			},
		})
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewZapAdapter(zapLog)
	} else {
		lgr = &logger.NopLogger{}
	}
	cfg.LogConfig(lgr)

	var w writer.Writer
	if cfg.CSV.Enabled {
		w, err = writer.NewCSVWriter(cfg.CSV.Path)
		if err != nil {
			lgr.Error("failed to initialize csv writer", logger.F("err", err.Error()))
			return
		}
	} else {
		w = writer.NopWriter{}
	}
	defer w.Close()

	var boot bootstrap.Bootstrap
	switch cfg.Bootstrap.Mode {
	case "static":
		boot = bootstrap.NewStaticBootstrap(cfg.Bootstrap.Peers)
	case "route53":
		boot, err = bootstrap.NewRoute53Bootstrap(config.Route53Config{
			HostedZoneID: cfg.Bootstrap.Route53.HostedZoneID,
			DomainSuffix: cfg.Bootstrap.Route53.DomainSuffix,
			TTL:          cfg.Bootstrap.Route53.TTL,
		})
	case "coredns":
		boot, err = bootstrap.NewCoreDNSBootstrap(config.CoreDNSConfig{
			Endpoints: cfg.Bootstrap.CoreDNS.Endpoints,
			BasePath:  cfg.Bootstrap.CoreDNS.BasePath,
			Domain:    cfg.Bootstrap.CoreDNS.Domain,
			TTL:       cfg.Bootstrap.CoreDNS.TTL,
		})
	}
	if err != nil {
		lgr.Error("failed to initialize bootstrap", logger.F("err", err.Error()))
		return
	}

	mgr := client.New(cfg.Query.Timeout, 60*time.Second)
	defer mgr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		lgr.Warn("received termination signal", logger.F("signal", sig.String()))
		cancel()
	}()

	runner := tester.New(cfg, lgr.Named("runner"), w, boot, mgr)
	start := time.Now()
	if err := runner.Run(ctx); err != nil {
		lgr.Error("tester run failed", logger.F("err", err.Error()))
	}
	lgr.Info("tester finished", logger.F("elapsed", time.Since(start).String()))
}
