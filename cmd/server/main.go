// Package main provides the MOPS disclosure LINE bot server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/twmops/mops-linebot-go/internal/bot"
	"github.com/twmops/mops-linebot-go/internal/config"
	"github.com/twmops/mops-linebot-go/internal/logger"
	"github.com/twmops/mops-linebot-go/internal/metrics"
	"github.com/twmops/mops-linebot-go/internal/modules/bookbuilding"
	"github.com/twmops/mops-linebot-go/internal/modules/mops"
	"github.com/twmops/mops-linebot-go/internal/modules/stockinfo"
	"github.com/twmops/mops-linebot-go/internal/modules/usage"
	"github.com/twmops/mops-linebot-go/internal/modules/watchlist"
	"github.com/twmops/mops-linebot-go/internal/notify"
	"github.com/twmops/mops-linebot-go/internal/r2client"
	"github.com/twmops/mops-linebot-go/internal/ratelimit"
	"github.com/twmops/mops-linebot-go/internal/scraper"
	mopscraper "github.com/twmops/mops-linebot-go/internal/scraper/mops"
	"github.com/twmops/mops-linebot-go/internal/scraper/twstock"
	"github.com/twmops/mops-linebot-go/internal/sentry"
	"github.com/twmops/mops-linebot-go/internal/snapshot"
	"github.com/twmops/mops-linebot-go/internal/stockdir"
	"github.com/twmops/mops-linebot-go/internal/storage"
	"github.com/twmops/mops-linebot-go/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})
	log.Infof("Starting MOPS LineBot server")

	if err := sentry.Initialize(sentry.Config{
		Token:       cfg.SentryToken,
		Host:        cfg.SentryHost,
		Environment: cfg.Environment,
	}); err != nil {
		log.WithError(err).Warnf("Failed to initialize Sentry, error tracking disabled")
	} else if sentry.IsEnabled() {
		defer sentry.Flush(2 * time.Second)
		log.Infof("Sentry error tracking enabled")
	}

	// Optional R2 restore before opening the database.
	var r2 *r2client.Client
	var snapshotMgr *snapshot.Manager
	if cfg.HasR2() {
		r2, err = r2client.New(context.Background(), r2client.Config{
			Endpoint:    cfg.R2Endpoint,
			AccessKeyID: cfg.R2AccessKeyID,
			SecretKey:   cfg.R2SecretKey,
			BucketName:  cfg.R2Bucket,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to create R2 client")
		}

		snapshotMgr = snapshot.NewManager(snapshot.ManagerConfig{
			Client: r2,
			Logger: log.WithModule("snapshot"),
		})
		restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 2*time.Minute)
		if err := snapshotMgr.Restore(restoreCtx, cfg.SQLitePath()); err != nil {
			if errors.Is(err, snapshot.ErrNotFound) {
				log.Infof("No remote snapshot found, starting with a fresh database")
			} else {
				log.WithError(err).Errorf("Snapshot restore failed, starting with a fresh database")
			}
		}
		cancelRestore()
	}

	db, err := storage.New(cfg.SQLitePath())
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	defer func() { _ = db.Close() }()
	log.WithField("path", cfg.SQLitePath()).Infof("Database connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewBuildInfoCollector())
	m := metrics.New(registry)

	scraperClient := scraper.NewClient(cfg.ScraperTimeout, config.ScraperRateLimit, cfg.ScraperMaxRetries)

	// Upstream clients.
	ezClient := mopscraper.NewEzSearchClient(scraperClient)
	historyEngine := mopscraper.NewHistoryEngine(ezClient, mopscraper.HistoryOptions{
		Cap:       cfg.FetchCap,
		BlockDays: cfg.BlockDays,
		Workers:   cfg.FetchWorkers,
	}, log.WithModule("history"), m)
	todayClient := mopscraper.NewTodayClient(scraperClient)
	bookClient := mopscraper.NewBookbuildingClient(scraperClient)

	// Company directory: seed from the SQLite cache, then keep fresh.
	directory := stockdir.New(twstock.NewClient(scraperClient), log.WithModule("stockdir"), m)
	directory.UseCache(db)
	if err := directory.LoadCache(context.Background()); err != nil {
		log.WithError(err).Warnf("Failed to seed company directory from cache")
	}

	// Bot modules and dispatch.
	botRegistry := bot.NewRegistry()
	botRegistry.Register(mops.NewHandler(historyEngine, todayClient, directory, db, log.WithModule("mops"), cfg.Bot.MaxRangeDays))
	botRegistry.Register(watchlist.NewHandler(db, directory, log.WithModule("watchlist"), cfg.Bot.MaxWatchedStocks))
	botRegistry.Register(bookbuilding.NewHandler(bookClient, log.WithModule("bookbuilding")))
	botRegistry.Register(stockinfo.NewHandler(directory, log.WithModule("stockinfo"), cfg.Bot.MaxCandidates))
	botRegistry.Register(usage.NewHandler(log.WithModule("usage")))
	log.Infof("Registered bot modules: %s", strings.Join(botRegistry.Modules(), ", "))

	ownerLimiter := ratelimit.NewOwnerLimiter(ratelimit.OwnerLimiterConfig{
		MaxTokens:     cfg.Bot.UserRateLimitBurst,
		RefillRate:    cfg.Bot.UserRateLimitRefillPerSec,
		CleanupPeriod: config.RateLimiterCleanupInterval,
	})
	defer ownerLimiter.Stop()

	processor := bot.NewProcessor(bot.ProcessorConfig{
		Registry:     botRegistry,
		OwnerLimiter: ownerLimiter,
		Logger:       log.WithModule("bot"),
		Metrics:      m,
		BotConfig:    &cfg.Bot,
	})

	webhookHandler, err := webhook.NewHandler(webhook.HandlerConfig{
		ChannelSecret: cfg.LineChannelSecret,
		ChannelToken:  cfg.LineChannelToken,
		BotConfig:     &cfg.Bot,
		Metrics:       m,
		Logger:        log.WithModule("webhook"),
		Processor:     processor,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create webhook handler")
	}

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(sentryMiddleware())
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(log.WithModule("http")))
	setupRoutes(router, cfg, webhookHandler, db, directory, registry)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  config.WebhookHTTPRead,
		WriteTimeout: config.WebhookHTTPWrite,
		IdleTimeout:  config.WebhookHTTPIdle,
	}

	// Background jobs.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	var jobs sync.WaitGroup

	jobs.Go(func() {
		directory.Run(jobCtx, cfg.DirectoryRefreshInterval)
	})

	if cfg.NotifyInterval > 0 {
		lineClient, err := messaging_api.NewMessagingApiAPI(cfg.LineChannelToken)
		if err != nil {
			log.WithError(err).Fatal("Failed to create messaging API client")
		}
		notifySvc := notify.NewService(notify.ServiceConfig{
			Watchlists: db,
			SentNotice: db,
			Source:     todayClient,
			Pusher:     lineClient,
			Limiter:    ratelimit.New(cfg.Bot.GlobalRateLimitRPS, cfg.Bot.GlobalRateLimitRPS),
			Logger:     log.WithModule("notify"),
			Metrics:    m,
			Interval:   cfg.NotifyInterval,
		})
		jobs.Go(func() {
			notifySvc.Run(jobCtx)
		})
		log.WithField("interval", cfg.NotifyInterval).Infof("Watchlist notifications enabled")
	}

	if snapshotMgr != nil {
		jobs.Go(func() {
			snapshotMgr.Run(jobCtx, db, cfg.R2SnapshotInterval)
		})
		log.WithField("interval", cfg.R2SnapshotInterval).Infof("R2 snapshot backups enabled")
	}

	go func() {
		log.WithField("port", cfg.Port).Infof("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infof("Shutting down server")

	// Stop accepting events, then drain in-flight webhook work.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Errorf("HTTP server forced to shutdown")
	}
	if err := webhookHandler.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Errorf("Webhook handler forced to shutdown")
	}

	// Jobs get the remaining shutdown budget; the snapshot job takes a
	// final backup on its way out.
	cancelJobs()
	jobsDone := make(chan struct{})
	go func() {
		jobs.Wait()
		close(jobsDone)
	}()
	select {
	case <-jobsDone:
		log.Infof("Background jobs stopped")
	case <-shutdownCtx.Done():
		log.Warnf("Timeout waiting for background jobs")
	}

	if err := db.Close(); err != nil {
		log.WithError(err).Errorf("Failed to close database")
	}
	log.Infof("Server stopped")
}
