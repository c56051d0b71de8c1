package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chordring/internal/backup"
	"chordring/internal/bootstrap"
	"chordring/internal/config"
	"chordring/internal/diag"
	"chordring/internal/dispatcher"
	"chordring/internal/domain"
	"chordring/internal/logger"
	zapfactory "chordring/internal/logger/zap"
	"chordring/internal/lookup"
	"chordring/internal/node"
	"chordring/internal/ring"
	"chordring/internal/routingtable"
	"chordring/internal/server"
	"chordring/internal/stabilizer"
	"chordring/internal/storage"
	"chordring/internal/telemetry"
)

var defaultConfigPath = "config/node/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewZapAdapter(zapLog)
	} else {
		lgr = &logger.NopLogger{}
	}
	cfg.LogConfig(lgr)

	lis, advertised, err := server.Listen(cfg.DHT.Mode, cfg.Node.Bind, cfg.Node.Host, cfg.Node.Port)
	if err != nil {
		lgr.Error("failed to initialize listener", logger.F("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = lis.Close() }()
	lgr.Debug("created listener", logger.F("addr", lis.Addr().String()))

	space, err := ring.NewSpace(cfg.DHT.IDBits, cfg.DHT.FaultTolerance.SuccessorListSize)
	if err != nil {
		lgr.Error("failed to initialize identifier space", logger.F("err", err.Error()))
		os.Exit(1)
	}

	var id ring.ID
	if cfg.Node.Id == "" {
		id = space.NewIDFromString(advertised)
	} else {
		id, err = space.FromHexString(cfg.Node.Id)
		if err != nil {
			lgr.Error("invalid node ID in configuration", logger.F("err", err.Error()))
			os.Exit(1)
		}
	}
	self := domain.NodeInfo{ID: id, Addr: advertised}
	lgr = lgr.Named("node").With(logger.FNode("self", &self))
	lgr.Info("node initializing")

	shutdownTracer := telemetry.InitTracer(cfg.Telemetry, "chordring-node", id)
	defer func() { _ = shutdownTracer(context.Background()) }()

	rt := routingtable.New(&self, space, routingtable.WithLogger(lgr.Named("routingtable")))
	rt.InitSingleNode()
	lgr.Debug("routing table initialized")

	disp := dispatcher.New(self,
		dispatcher.WithLogger(lgr.Named("dispatcher")),
		dispatcher.WithConfig(dispatcher.Config{
			WorkerPoolSize: cfg.DHT.Dispatcher.WorkerPoolSize,
			QueueSize:      cfg.DHT.Dispatcher.QueueSize,
			DialTimeout:    cfg.DHT.Dispatcher.DialTimeout,
			SendTimeout:    cfg.DHT.Dispatcher.SendTimeout,
			IdleTTL:        cfg.DHT.Dispatcher.IdleTTL,
		}),
	)

	store := storage.NewMemoryStorage(lgr.Named("storage"))

	lookupCfg := lookup.Config{MaxHops: cfg.DHT.MaxHops, HopTimeout: cfg.DHT.Dispatcher.SendTimeout}
	stabCfg := stabilizer.Config{
		Interval:           cfg.DHT.FaultTolerance.StabilizationInterval,
		PredecessorTimeout: cfg.DHT.FaultTolerance.PredecessorTimeout,
		FingerFillTimeout:  cfg.DHT.FaultTolerance.FingerFillTimeout,
		FillConcurrency:    cfg.DHT.FaultTolerance.FingerFillConcurrency,
	}
	n := node.New(self, space, rt, disp, store, lookupCfg, stabCfg, lgr)
	disp.SetLocal(n)

	backupSvc := backup.NewService(rt, store, space, lgr.Named("backup"))
	if err := disp.RegisterService(backup.ServiceName, backupSvc); err != nil {
		lgr.Error("failed to register backup service", logger.F("err", err.Error()))
		os.Exit(1)
	}
	diagSvc := diag.NewService(rt, space, n)
	if err := disp.RegisterService(diag.ServiceName, diagSvc); err != nil {
		lgr.Error("failed to register diag service", logger.F("err", err.Error()))
		os.Exit(1)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- disp.Serve(lis) }()
	lgr.Debug("dispatcher serving")

	var reg bootstrap.Bootstrap
	switch cfg.DHT.Bootstrap.Mode {
	case "static":
		reg = bootstrap.NewStaticBootstrap(cfg.DHT.Bootstrap.Peers)
	case "route53":
		reg, err = bootstrap.NewRoute53Bootstrap(cfg.DHT.Bootstrap.Route53)
	case "coredns":
		reg, err = bootstrap.NewCoreDNSBootstrap(cfg.DHT.Bootstrap.CoreDNS)
	default:
		err = fmt.Errorf("unsupported bootstrap mode %q", cfg.DHT.Bootstrap.Mode)
	}
	if err != nil {
		lgr.Error("failed to initialize bootstrap", logger.F("err", err.Error()))
		_ = disp.Close()
		os.Exit(1)
	}

	discoverCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	peers, err := reg.Discover(discoverCtx)
	cancel()
	if err != nil {
		lgr.Error("failed to resolve bootstrap peers", logger.F("err", err.Error()))
		_ = disp.Close()
		os.Exit(1)
	}
	lgr.Info("resolved bootstrap peers", logger.F("peers", peers))

	joined := false
	for _, addr := range peers {
		if addr == advertised {
			continue
		}
		joinCtx, joinCancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := n.Join(joinCtx, domain.NodeInfo{Addr: addr})
		joinCancel()
		if err != nil {
			lgr.Warn("failed to join via peer, trying next", logger.F("peer", addr), logger.F("err", err.Error()))
			continue
		}
		joined = true
		break
	}
	if !joined {
		lgr.Info("no reachable bootstrap peer, founding new ring")
	}

	regCtx, regCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = reg.Register(regCtx, &self)
	regCancel()
	if err != nil {
		lgr.Warn("failed to register node", logger.F("err", err.Error()))
	} else {
		lgr.Info("node registered")
		defer func() {
			deregCtx, deregCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer deregCancel()
			if err := reg.Deregister(deregCtx, &self); err != nil {
				lgr.Warn("failed to deregister node", logger.F("err", err.Error()))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	n.StartStabilization()
	lgr.Debug("stabilization started")

	select {
	case <-ctx.Done():
		lgr.Info("shutdown signal received, stopping gracefully")
		stop()
		n.StopStabilization()
		if err := disp.Close(); err != nil {
			lgr.Warn("dispatcher close returned error", logger.F("err", err.Error()))
		}
	case err := <-serveErr:
		lgr.Error("dispatcher terminated unexpectedly", logger.F("err", err.Error()))
		stop()
		n.StopStabilization()
		os.Exit(1)
	}
}
