package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Haseeb-Arshad/codingcam-backend/db/postgres/migrations"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/api"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/auth"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/cache"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/config"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/logger"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/outbox"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/persistence/memory"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/persistence/postgres"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/reporting"
	httptransport "github.com/Haseeb-Arshad/codingcam-backend/internal/transport/http"
)

type backingStore interface {
	domain.Store
	auth.KeyLookup
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store      backingStore
		dispatcher *outbox.Dispatcher
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		store = memory.NewStore()
	default:
		if cfg.MigrateOnStart {
			if err := migrations.Up(cfg.PostgresURL); err != nil {
				log.Fatal("failed to apply migrations", "error", err)
			}
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatal("failed to connect to postgres", "error", err)
		}
		defer pool.Close()
		pg := postgres.NewStore(pool)
		if err := pg.Ping(ctx); err != nil {
			log.Fatal("postgres unreachable", "error", err)
		}
		store = pg

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, outbox.WithBatchTimeout(cfg.KafkaBatchTimeout))
		defer producer.Close()
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(pool, producer, registry, log, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		go dispatcher.Start(ctx)
	}

	var leaderboardCache cache.Leaderboard = cache.NoopLeaderboard{}
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("leaderboard cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer rdb.Close()
			leaderboardCache = cache.NewRedisLeaderboard(rdb, cfg.LeaderboardCacheTTL)
		}
	}

	engine := domain.NewEngine(store, domain.WithLogger(log))
	reports := reporting.NewService(engine, store, reporting.WithCache(leaderboardCache), reporting.WithLogger(log))
	handler := api.NewHandler(engine, reports, api.WithLogger(log), api.WithPersistenceRetries(cfg.PersistenceRetry))

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	resolver := auth.NewResolver(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, store)
	authMiddleware := auth.NewMiddleware(resolver, auth.SkipPaths(api.PublicPaths...), log)

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), httptransport.Chain(mux,
		httptransport.RequestLogger(log),
		httptransport.CORS(cfg.CORSAllowedOrigins),
		httptransport.RateLimit(cfg.IngestRateLimit, cfg.IngestRateWindow, api.IngestPaths()...),
		authMiddleware.Wrap,
	))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("metrics listening", "addr", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		log.Info("codingcam api listening", "addr", cfg.HTTPAddress, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	<-shutdownCh
	log.Info("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown failed", "error", err)
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}
}
