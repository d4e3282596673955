package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Domenick1991/exhibitions/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	shutdownTimeout = 5 * time.Second
	probeInterval   = 10 * time.Second
)

// Probe reports whether the service can do useful work, usually a database ping.
type Probe func(ctx context.Context) error

type Servers struct {
	grpcServer   *grpc.Server
	httpServer   *http.Server
	health       *health.Server
	grpcListener net.Listener
	httpListener net.Listener
	probe        Probe
	logger       *zap.Logger
}

// New binds the gRPC and HTTP listeners. The gRPC side only carries the standard
// health service and reflection; the API itself is served over HTTP.
func New(cfg *config.Config, handler http.Handler, probe Probe, logger *zap.Logger) (*Servers, error) {
	grpcLis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return nil, fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTP.Address)
	if err != nil {
		_ = grpcLis.Close()
		return nil, fmt.Errorf("listen HTTP %s: %w", cfg.HTTP.Address, err)
	}

	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	return &Servers{
		grpcServer: grpcSrv,
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		health:       healthSrv,
		grpcListener: grpcLis,
		httpListener: httpLis,
		probe:        probe,
		logger:       logger,
	}, nil
}

func (s *Servers) GRPCAddr() string { return s.grpcListener.Addr().String() }

func (s *Servers) HTTPAddr() string { return s.httpListener.Addr().String() }

// Serve blocks until ctx is cancelled or a server fails, then stops both.
func (s *Servers) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	s.refreshHealth(gctx)

	g.Go(func() error {
		s.logger.Info("gRPC server listening", zap.String("addr", s.GRPCAddr()))
		if err := s.grpcServer.Serve(s.grpcListener); !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.logger.Info("HTTP server listening", zap.String("addr", s.HTTPAddr()))
		if err := s.httpServer.Serve(s.httpListener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(probeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				s.refreshHealth(gctx)
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		s.health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		s.logger.Info("servers stopped")
		return nil
	})

	return g.Wait()
}

func (s *Servers) refreshHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.probe != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.probe(probeCtx)
		cancel()
		if err != nil {
			s.logger.Warn("health probe failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
}

// Run starts both servers and blocks until ctx is cancelled or a server fails.
func Run(ctx context.Context, cfg *config.Config, handler http.Handler, probe Probe, logger *zap.Logger) error {
	s, err := New(cfg, handler, probe, logger)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}
