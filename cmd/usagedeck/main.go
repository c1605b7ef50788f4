package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bleedingdev/usagedeck/internal/api"
	"github.com/bleedingdev/usagedeck/internal/archive"
	"github.com/bleedingdev/usagedeck/internal/cache"
	"github.com/bleedingdev/usagedeck/internal/config"
	"github.com/bleedingdev/usagedeck/internal/keystore"
	"github.com/bleedingdev/usagedeck/internal/usage"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	openBrowser := flag.Bool("open", false, "open the dashboard in a browser after startup")
	flag.Parse()

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	setupLogging(cfg)

	store, err := openStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to open keystore")
	}
	defer store.Close()

	fetcher := usage.NewClient(cfg.UsageURL, cfg.FetchTimeout)

	var onRefresh func(*usage.Snapshot)
	if cfg.Archive.Endpoint != "" && cfg.Archive.Bucket != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		archiver, err := archive.New(ctx, cfg.Archive.Endpoint, cfg.Archive.Bucket, cfg.Archive.AccessKey, cfg.Archive.SecretKey, cfg.Archive.UseSSL)
		cancel()
		if err != nil {
			log.WithError(err).Warn("Snapshot archiving disabled")
		} else {
			onRefresh = archiver.StoreAsync
		}
	}

	refresh := usage.Refresher(store, fetcher, cfg.FetchConcurrency, cfg.BatchPause, usage.LogAudit)
	ctrl := cache.NewController(refresh, onRefresh)
	defer ctrl.Stop()

	// The first refresh is synchronous: the server does not accept traffic
	// until it has either a snapshot or a recorded failure.
	ctrl.TryRefresh(context.Background())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go ctrl.Run(rootCtx, cfg.RefreshInterval)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	server := api.NewServer(store, fetcher, ctrl, cfg.ExportPassword)
	server.RegisterRoutes(router)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.WithField("addr", addr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	if *openBrowser {
		if err := open.Run(fmt.Sprintf("http://localhost:%d/", cfg.Port)); err != nil {
			log.WithError(err).Warn("Failed to open browser")
		}
	}

	<-rootCtx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
}

func setupLogging(cfg *config.Config) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if cfg.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    20, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	if os.Getenv("LOG_LEVEL") == "debug" {
		log.SetLevel(log.DebugLevel)
	}
}

func openStore(cfg *config.Config) (keystore.Store, error) {
	switch cfg.Keystore.Type {
	case "sqlite", "":
		return keystore.NewSQLiteStore(cfg.Keystore.Path)
	case "postgres":
		return keystore.NewPostgresStore(cfg.Keystore.DSN)
	default:
		return nil, fmt.Errorf("unknown keystore type: %s", cfg.Keystore.Type)
	}
}
