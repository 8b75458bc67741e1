package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campaign-dialer/internal/audit"
	"campaign-dialer/internal/campaign"
	"campaign-dialer/internal/config"
	"campaign-dialer/internal/contacts"
	"campaign-dialer/internal/dialer"
	"campaign-dialer/internal/jobs"
	"campaign-dialer/internal/stats"
	"campaign-dialer/internal/webhook"
	"campaign-dialer/pkg/logger"
	"campaign-dialer/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	loc, err := cfg.CampaignLocation()
	if err != nil {
		log.Error("campaign timezone load failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	contactStore := contacts.NewPostgresRepo(db)
	jobStore := jobs.NewPostgresRepo(db)
	statStore := stats.NewPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	retell := dialer.NewRetellDialer(cfg.Dialer)

	executor := campaign.NewExecutor(contactStore, jobStore, retell, campaign.ExecutorConfig{
		Location:      loc,
		CutoffHour:    cfg.Campaign.CutoffHour,
		CutoffMinute:  cfg.Campaign.CutoffMinute,
		DispatchDelay: cfg.Campaign.DispatchDelay,
	}, logger.Named(log, "executor"))

	scheduler := campaign.NewScheduler(
		contactStore, jobStore, statStore, executor,
		campaign.NewRedisAgentLocker(rdb), loc, logger.Named(log, "scheduler"))
	defer scheduler.Stop()

	if cfg.Campaign.RecoverOnStart {
		recovery := campaign.NewRecovery(contactStore, jobStore, executor, logger.Named(log, "recovery")).WithAudit(auditSvc)
		go func() {
			if err := recovery.RecoverPendingJobs(rootCtx); err != nil {
				log.Error("job recovery failed", "err", err)
			}
		}()
	}

	// The transcript classifier is an external collaborator; until one is
	// wired, analyzed-call events are logged and dropped by the ingester.
	ingester := webhook.NewIngester(contactStore, statStore, nil, loc, logger.Named(log, "webhook"))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		db:        db,
		scheduler: scheduler,
		jobs:      jobStore,
		audit:     auditSvc,
		ingester:  ingester,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
