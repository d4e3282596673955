package bootstrap

import (
	"context"
	"fmt"

	"github.com/Domenick1991/exhibitions/config"
	"github.com/Domenick1991/exhibitions/internal/email"
	"github.com/Domenick1991/exhibitions/internal/repository"
	"github.com/Domenick1991/exhibitions/internal/repository/memstore"
	"github.com/Domenick1991/exhibitions/internal/service/notification"
	"github.com/Domenick1991/exhibitions/internal/ticket"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Storage is the repository set of the configured driver.
type Storage struct {
	Exhibitions   repository.ExhibitionRepository
	Registrants   repository.RegistrantRepository
	Registrations repository.RegistrationRepository
	Tx            repository.Transactor

	Ping  func(ctx context.Context) error
	Close func()
}

// OpenStorage connects to postgres, or builds the seeded in-process store for the
// memory driver.
func OpenStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Storage, error) {
	if cfg.Database.Driver == config.DriverMemory {
		store := memstore.NewSeeded(cfg.Seed)
		logger.Warn("using in-memory storage, data is lost on restart",
			zap.Int("exhibitions", len(cfg.Seed.Exhibitions)),
			zap.Int("registrants", len(cfg.Seed.Registrants)))
		return &Storage{
			Exhibitions:   store.Exhibitions(),
			Registrants:   store.Registrants(),
			Registrations: store.Registrations(),
			Tx:            store,
			Ping:          func(context.Context) error { return nil },
			Close:         func() {},
		}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("database schema applied")
	}

	return &Storage{
		Exhibitions:   repository.NewExhibitionRepository(pool),
		Registrants:   repository.NewRegistrantRepository(pool),
		Registrations: repository.NewRegistrationRepository(pool),
		Tx:            repository.NewTransactor(pool, cfg.Database.MaxConflictRetries, logger),
		Ping:          pool.Ping,
		Close:         pool.Close,
	}, nil
}

// NewDispatcher wires the notification dispatcher with SMTP delivery in live mode.
func NewDispatcher(cfg *config.Config, storage *Storage, events notification.EventLookup, logger *zap.Logger) *notification.Dispatcher {
	var transport notification.Transport
	if cfg.Notifications.Mode == config.NotificationsLive {
		transport = email.NewSender(cfg.Notifications.SMTP)
	}
	return notification.NewDispatcher(
		storage.Registrations,
		events,
		storage.Registrants,
		ticket.NewRenderer(cfg.Tickets.QRSize),
		transport,
		cfg.Notifications,
		logger.Named("notification"),
	)
}
