package service

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/ethereum/go-ethereum/log"

	"github.com/webqa/qa-runner/metrics"
)

const (
	DefaultHealthzPort = 8080
)

// Config holds the listen addresses of the side-car servers
type Config struct {
	MetricsHost string
	MetricsPort int
	HealthzPort int
	Log         log.Logger
}

// Service runs the healthz and metrics servers next to a run
type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer
	cfg     Config
	log     log.Logger
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	s := &Service{
		Healthz: &HealthzServer{log: cfg.Log},
		Metrics: &MetricsServer{},
		cfg:     cfg,
		log:     cfg.Log,
	}
	return s
}

// Start binds both servers and serves them in the background
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("service starting")

	healthzAddr := net.JoinHostPort(s.cfg.MetricsHost, strconv.Itoa(s.cfg.HealthzPort))
	if err := s.Healthz.Start(ctx, healthzAddr); err != nil {
		metrics.RecordErrorDetails("error starting healthz server", err)
		return err
	}
	s.log.Info("healthz server started", "addr", s.Healthz.Addr())

	metricsAddr := net.JoinHostPort(s.cfg.MetricsHost, strconv.Itoa(s.cfg.MetricsPort))
	if err := s.Metrics.Start(ctx, metricsAddr); err != nil {
		metrics.RecordErrorDetails("error starting metrics server", err)
		_ = s.Healthz.Shutdown(ctx)
		return err
	}
	s.log.Info("metrics server started", "addr", s.Metrics.Addr())

	s.log.Info("service started")
	return nil
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.log.Info("service shutting down")

	healthzErr := s.Healthz.Shutdown(ctx)
	s.log.Info("healthz stopped")

	metricsErr := s.Metrics.Shutdown(ctx)
	s.log.Info("metrics stopped")

	s.log.Info("service stopped")
	return errors.Join(healthzErr, metricsErr)
}
