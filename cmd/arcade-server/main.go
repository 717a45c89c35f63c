// Package main provides the ARCADE API server. Besides serving reads it runs
// the scheduled importer, the import job workers and access log retention.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/client-go/kubernetes"

	"github.com/IBM/arcade/pkg/api"
	"github.com/IBM/arcade/pkg/archive"
	"github.com/IBM/arcade/pkg/audit"
	"github.com/IBM/arcade/pkg/authz"
	"github.com/IBM/arcade/pkg/cache"
	"github.com/IBM/arcade/pkg/ha"
	"github.com/IBM/arcade/pkg/importer"
	"github.com/IBM/arcade/pkg/interpolate"
	"github.com/IBM/arcade/pkg/jobs"
	"github.com/IBM/arcade/pkg/oem"
	"github.com/IBM/arcade/pkg/store"
	"github.com/IBM/arcade/pkg/telemetry"
)

var version = "dev"

func main() {
	var (
		listenAddr   string
		otlpEndpoint string
		debug        bool
	)

	flag.StringVar(&listenAddr, "listen", ":8080", "Address to listen on")
	flag.StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP/HTTP trace endpoint (default: $OTEL_EXPORTER_OTLP_ENDPOINT)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	_ = flag.Set("logtostderr", "true")

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	shutdownTracing, err := telemetry.Init(ctx, "arcade-server", version, otlpEndpoint)
	if err != nil {
		glog.Fatalf("Failed to initialize tracing: %v", err)
	}

	storeCfg := store.ConfigFromEnv()
	importCfg := importer.ConfigFromEnv()
	authzCfg := authz.ConfigFromEnv()
	auditCfg := audit.AuditConfigFromEnv()
	cacheCfg := cache.CacheConfigFromEnv()
	jobCfg := jobs.JobConfigFromEnv()
	haCfg := ha.HAConfigFromEnv()

	logger.Info("starting arcade server",
		"listen", listenAddr,
		"version", version,
		"dbType", storeCfg.Type,
		"authzMode", authzCfg.Mode,
		"leaderElection", haCfg.LeaderElectionEnabled)

	db, err := store.Open(ctx, storeCfg, logger, jobs.Models()...)
	if err != nil {
		glog.Fatalf("Failed to open database: %v", err)
	}

	bucket, err := archive.NewBucket(ctx, archive.ConfigFromEnv(), logger)
	if err != nil {
		glog.Fatalf("Failed to open archive: %v", err)
	}
	sources, err := importer.LoadSources(importCfg.SourcesFile)
	if err != nil {
		glog.Fatalf("Failed to load sources: %v", err)
	}
	runner, err := importer.NewRunner(bucket, db, sources, importCfg,
		importer.WithLogger(logger),
		importer.WithMetrics(importer.NewMetrics(prometheus.DefaultRegisterer)))
	if err != nil {
		glog.Fatalf("Failed to create importer: %v", err)
	}

	cacheManager := cache.NewCacheManager(cacheCfg)
	var results *cache.LRUCache[*oem.Record]
	if cacheCfg.Enabled {
		results = cache.NewLRUCache[*oem.Record](cacheCfg.MaxSize, cacheCfg.InterpolationTTL)
	}

	var tokens *authz.TokenVerifier
	if authzCfg.JWT.PublicKeyPath != "" {
		tokens, err = authz.NewTokenVerifier(authzCfg.JWT, logger)
		if err != nil {
			glog.Fatalf("Failed to load JWT public key: %v", err)
		}
	}

	jobStore := jobs.NewJobStore(db.DB())
	accessStore := audit.NewAccessStore(db.DB())
	evaluator := authz.NewEvaluator(db, authz.NewAuthorizer(authzCfg, authz.NewGrantAuthorizer(db)), accessStore, logger)
	jobRunner := &invalidatingRunner{Runner: runner, cache: cacheManager}

	server := api.NewServer(db.DB(), evaluator, interpolate.NewInterpolator(interpolate.LagrangeEngine{}, results, logger), logger,
		api.WithIdentity(authzCfg.UserHeader, tokens),
		api.WithCacheManager(cacheManager),
		api.WithAccessLog(accessStore, auditCfg),
		api.WithJobs(jobStore, jobRunner))

	var k8s kubernetes.Interface
	if haCfg.LeaderElectionEnabled {
		k8s, err = ha.NewClientset(haCfg)
		if err != nil {
			glog.Fatalf("Failed to create kubernetes client for leader election: %v", err)
		}
	}

	background := &backgroundLoops{
		scheduler: importer.NewScheduler(runner, importCfg.Interval, jobStore, logger),
		pool:      jobs.NewWorkerPool(jobStore, jobRunner, jobCfg, logger),
		retention: audit.NewRetentionWorker(accessStore, auditCfg.RetentionDays, logger),
		cache:     cacheManager,
		logger:    logger,
	}
	var bgDone sync.WaitGroup
	bgDone.Add(1)
	go func() {
		defer bgDone.Done()
		if err := ha.RunSingleton(ctx, haCfg, k8s, logger, background.run); err != nil {
			logger.Error("leader election failed", "error", err)
			cancel()
		}
	}()

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()
	logger.Info("arcade server ready", "listen", listenAddr, "sources", len(sources))

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	bgDone.Wait()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}
	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}
	logger.Info("arcade server stopped")
}
