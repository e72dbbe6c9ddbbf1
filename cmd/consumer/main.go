package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/config"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/consumer"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/logger"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/persistence/postgres"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal("failed to connect to postgres", "error", err)
	}
	defer pool.Close()

	engine := domain.NewEngine(postgres.NewStore(pool), domain.WithLogger(log))
	handler := consumer.NewIngestHandler(engine, log, cfg.PersistenceRetry)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("consumer metrics listening", "addr", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range cfg.ConsumerTopics {
		topic := topic
		reader := kafka.NewReader(readerConfig(cfg, topic))
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(log.With("topic", topic)))

		g.Go(func() error {
			defer reader.Close()
			log.Info("consumer started", "topic", topic, "group", cfg.ConsumerGroupID)
			if err := proc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("consumer stopped with error", "error", err)
	}
	log.Info("consumer shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown error", "error", err)
	}
}

func readerConfig(cfg config.Config, topic string) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           topic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		MaxWait:         time.Second,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	}
}
