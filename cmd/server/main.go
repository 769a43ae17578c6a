package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dddanielliu/emotion-light-sound/internal/config"
	"github.com/dddanielliu/emotion-light-sound/internal/dispatch"
	"github.com/dddanielliu/emotion-light-sound/internal/genqueue"
	"github.com/dddanielliu/emotion-light-sound/internal/logger"
	"github.com/dddanielliu/emotion-light-sound/internal/metrics"
	"github.com/dddanielliu/emotion-light-sound/internal/musicgen"
	"github.com/dddanielliu/emotion-light-sound/internal/push"
	"github.com/dddanielliu/emotion-light-sound/internal/registry"
	"github.com/dddanielliu/emotion-light-sound/internal/server"
	"github.com/dddanielliu/emotion-light-sound/internal/vision"
)

var (
	// Command-line flags; each overrides its config-file counterpart.
	configPath   = flag.String("config", "", "YAML config file path")
	httpAddr     = flag.String("http", "", "HTTP server address")
	metricsAddr  = flag.String("metrics", "", "Metrics server address")
	artifactDir  = flag.String("artifact-dir", "", "BadgerDB directory for generated artifacts (empty = in-memory)")
	generatorURL = flag.String("generator-url", "", "Music generator endpoint")
	analyzerURL  = flag.String("analyzer-url", "", "Frame analyzer endpoint (empty = passthrough)")
	logLevel     = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor     = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *httpAddr != "" {
		cfg.Addr = *httpAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *artifactDir != "" {
		cfg.ArtifactDir = *artifactDir
	}
	if *generatorURL != "" {
		cfg.GeneratorURL = *generatorURL
	}
	if *analyzerURL != "" {
		cfg.AnalyzerURL = *analyzerURL
	}

	logger.Info("Main", "Server starting...")
	logger.Info("Main", "Log level: %s", level)
	logger.Info("Main", "HTTP server: %s", cfg.Addr)
	logger.Info("Main", "Metrics server: %s", cfg.MetricsAddr)
	logger.Info("Main", "Generator: %s", cfg.GeneratorURL)

	m := metrics.New()

	reg, err := registry.New(registry.Options{Dir: cfg.ArtifactDir, InMemory: cfg.ArtifactDir == ""})
	if err != nil {
		log.Fatalf("Failed to open artifact registry: %v", err)
	}
	defer reg.Close()

	// Stale artifacts from a previous run must not be servable.
	if err := reg.EvictAll(); err != nil {
		log.Fatalf("Failed to clear artifact registry: %v", err)
	}

	generator := musicgen.New(cfg.GeneratorURL, cfg.GeneratorTimeout)
	readyCtx, cancelReady := context.WithTimeout(context.Background(), 10*time.Second)
	if err := generator.Ready(readyCtx); err != nil {
		cancelReady()
		log.Fatalf("Music generator not ready: %v", err)
	}
	cancelReady()
	logger.Info("Main", "Music generator ready at %s", cfg.GeneratorURL)

	var detector vision.Detector
	if cfg.AnalyzerURL != "" {
		detector = vision.NewAnalyzer(cfg.AnalyzerURL, cfg.AnalyzerTimeout)
		logger.Info("Main", "Analyzer: %s", cfg.AnalyzerURL)
	} else {
		detector = vision.Passthrough()
		logger.Warn("Main", "No analyzer configured, frames pass through unlabeled")
	}

	hub := push.NewHub(cfg.PushBuffer, m)
	queue := genqueue.New(m)
	dispatcher := dispatch.New(hub, reg, nil, m)
	worker := genqueue.NewWorker(queue, generator, dispatcher, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	go func() {
		logger.Info("Main", "Starting metrics server on %s", cfg.MetricsAddr)
		if err := m.StartServer(cfg.MetricsAddr); err != nil {
			logger.Warn("Main", "Metrics server error: %v", err)
		}
	}()

	srv := server.New(cfg, hub, queue, reg, detector, m)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("Main", "Starting HTTP server on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")

	cancel()
	<-workerDone

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Main", "Error during shutdown: %v", err)
	}

	logger.Info("Main", "Server stopped")
}
