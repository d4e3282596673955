package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/exhibitions/config"
	"github.com/Domenick1991/exhibitions/internal/bootstrap"
	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/kafka"
	"github.com/Domenick1991/exhibitions/internal/logger"
	"github.com/Domenick1991/exhibitions/internal/service/exhibitions"
	"github.com/Domenick1991/exhibitions/internal/service/notification"
	"github.com/Domenick1991/exhibitions/internal/telemetry"
	"github.com/joho/godotenv"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := pflag.StringP("config", "c", "", "path to config.yaml (defaults to $CONFIG_PATH, then ./config.yaml)")
	pflag.Parse()

	_ = godotenv.Load()

	path := *cfgPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		log.Fatalf("worker requires the postgres driver, got %q", cfg.Database.Driver)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("worker error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	storage, err := bootstrap.OpenStorage(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer storage.Close()

	// The worker never serves the catalog, so lookups go straight to storage.
	events := exhibitions.NewExhibitionService(storage.Exhibitions, storage.Tx, nil, zl.Named("exhibitions"))
	dispatcher := bootstrap.NewDispatcher(cfg, storage, events, zl)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Notifications.Queue == config.QueueKafka {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, zl.Named("kafka"))
		defer consumer.Close()

		g.Go(func() error {
			return consumer.Consume(gctx, func(ctx context.Context, msg kafkaGo.Message) error {
				return handleJob(ctx, dispatcher, msg, zl)
			})
		})
	}

	g.Go(func() error {
		return sweep(gctx, dispatcher, cfg.Worker, zl)
	})

	zl.Info("worker started",
		zap.String("queue", cfg.Notifications.Queue),
		zap.Int("sweep_minutes", cfg.Worker.RedeliverySweepMinutes))
	return g.Wait()
}

// handleJob delivers one queued notification. Undecodable and stale jobs are skipped;
// failed deliveries are already recorded and left to the sweep.
func handleJob(ctx context.Context, dispatcher *notification.Dispatcher, msg kafkaGo.Message, zl *zap.Logger) error {
	job, err := kafka.DecodeNotificationJob(msg)
	if err != nil {
		zl.Warn("skipping notification job", zap.Error(err), zap.Int64("offset", msg.Offset))
		return nil
	}
	outcome, err := dispatcher.DeliverByID(ctx, job.RegistrationID)
	switch {
	case errors.Is(err, domain.ErrRegistrationNotFound):
		zl.Warn("notification job for unknown registration", zap.String("registration_id", job.RegistrationID))
		return nil
	case err != nil:
		return err
	}
	if !outcome.Delivered {
		zl.Info("notification not delivered",
			zap.String("registration_id", job.RegistrationID),
			zap.String("reason", outcome.Reason))
	}
	return nil
}

func sweep(ctx context.Context, dispatcher *notification.Dispatcher, cfg config.WorkerConfig, zl *zap.Logger) error {
	if cfg.RedeliverySweepMinutes <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(time.Duration(cfg.RedeliverySweepMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			delivered, err := dispatcher.RedeliverFailed(ctx, cfg.RedeliveryBatch)
			if err != nil {
				zl.Error("redelivery sweep failed", zap.Error(err))
				continue
			}
			if delivered > 0 {
				zl.Info("redelivered notifications", zap.Int("count", delivered))
			}
		}
	}
}
