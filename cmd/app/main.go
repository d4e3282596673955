package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/exhibitions/api"
	"github.com/Domenick1991/exhibitions/config"
	"github.com/Domenick1991/exhibitions/internal/bootstrap"
	"github.com/Domenick1991/exhibitions/internal/cache"
	"github.com/Domenick1991/exhibitions/internal/kafka"
	"github.com/Domenick1991/exhibitions/internal/logger"
	"github.com/Domenick1991/exhibitions/internal/service/entry"
	"github.com/Domenick1991/exhibitions/internal/service/exhibitions"
	"github.com/Domenick1991/exhibitions/internal/service/notification"
	"github.com/Domenick1991/exhibitions/internal/service/registration"
	"github.com/Domenick1991/exhibitions/internal/telemetry"
	"github.com/Domenick1991/exhibitions/internal/ticket"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
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

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			zl.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	storage, err := bootstrap.OpenStorage(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer storage.Close()

	health := map[string]api.HealthCheck{"database": storage.Ping}

	var catalogCache exhibitions.Cache
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedisCache(cfg.Redis)
		defer redisCache.Close()
		catalogCache = redisCache
		health["redis"] = redisCache.Ping
	}

	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, zl.Named("kafka"))
		defer producer.Close()
	}

	exhibitionService := exhibitions.NewExhibitionService(storage.Exhibitions, storage.Tx, catalogCache, zl.Named("exhibitions"))
	dispatcher := bootstrap.NewDispatcher(cfg, storage, exhibitionService, zl)

	var queue notification.Queue
	if cfg.Notifications.Queue == config.QueueKafka {
		queue = kafka.NewNotificationQueue(producer, cfg.Kafka.NotificationsTopic)
	} else {
		inline := notification.NewAsyncQueue(dispatcher, cfg.Notifications.Workers, cfg.Notifications.Workers*64, zl.Named("notification"))
		defer inline.Close()
		queue = inline
	}

	codec := ticket.NewCodec([]byte(cfg.Tickets.SigningKey))
	opts := []registration.Option{registration.WithMaxQuantity(cfg.Registration.MaxQuantity)}
	validator := entry.NewValidator(codec, storage.Registrations, exhibitionService, storage.Registrants, zl.Named("entry"))
	if producer != nil && cfg.Kafka.RegistrationsTopic != "" {
		opts = append(opts, registration.WithProducer(producer, cfg.Kafka.RegistrationsTopic))
		validator = validator.WithProducer(producer, cfg.Kafka.RegistrationsTopic)
	}
	registrationService := registration.NewRegistrationService(
		storage.Registrations,
		storage.Tx,
		exhibitionService,
		storage.Registrants,
		codec,
		queue,
		zl.Named("registration"),
		opts...,
	)

	router := api.NewRouter(api.RouterDeps{
		Auth:          api.NewAuthenticator(cfg.Auth),
		Registrations: api.NewRegistrationHandler(registrationService, dispatcher, ticket.NewRenderer(cfg.Tickets.QRSize), zl),
		Tickets:       api.NewTicketHandler(validator),
		Exhibitions:   api.NewExhibitionHandler(exhibitionService),
		Health:        health,
		SwaggerDir:    cfg.HTTP.SwaggerDir,
		Logger:        zl.Named("http"),
	})

	zl.Info("starting exhibitions service",
		zap.String("driver", cfg.Database.Driver),
		zap.String("notifications", cfg.Notifications.Mode),
		zap.String("queue", cfg.Notifications.Queue))
	return bootstrap.Run(ctx, cfg, router, storage.Ping, zl)
}
