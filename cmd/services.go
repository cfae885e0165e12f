package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database/mariadb"
	"github.com/kozaktomas/rollcall/internal/database/postgres"
	"github.com/kozaktomas/rollcall/internal/gateway"
	"github.com/kozaktomas/rollcall/internal/imagecheck"
	"github.com/kozaktomas/rollcall/internal/logging"
	"github.com/kozaktomas/rollcall/internal/metrics"
	"github.com/kozaktomas/rollcall/internal/recognizer"
	"github.com/kozaktomas/rollcall/internal/roster"
	"github.com/kozaktomas/rollcall/internal/session"
	"github.com/kozaktomas/rollcall/internal/web/handlers"
)

// services is everything a command needs to run attendance sessions.
type services struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Metrics
	pool       *postgres.Pool
	campus     *mariadb.Pool
	records    *postgres.AttendanceRepository
	logs       *postgres.RecognitionLogRepository
	recognizer *recognizer.Client
	registry   *session.Registry
}

// loadConfig reads and validates the configuration and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newServices connects the stores and builds the session registry.
func newServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*services, error) {
	m, err := metrics.New()
	if err != nil {
		return nil, err
	}

	logger.Info("connecting to PostgreSQL")
	pool, err := postgres.Open(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	svc := &services{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		pool:    pool,
		records: postgres.NewAttendanceRepository(pool),
		logs:    postgres.NewRecognitionLogRepository(pool),
	}

	var rosters roster.Provider
	switch cfg.Roster.Source {
	case "mariadb":
		logger.Info("reading rosters from MariaDB")
		campus, err := mariadb.NewPool(ctx, cfg.Roster.DatabaseURL, logger)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("failed to connect roster database: %w", err)
		}
		svc.campus = campus
		rosters = campus
	default:
		rosters = postgres.NewRosterRepository(pool)
	}
	rosters = roster.NewCached(rosters, cfg.Roster.CacheTTL, logger)

	svc.recognizer = recognizer.New(cfg.Recognizer, m.Recognizer, logger)

	registry, err := session.NewRegistry(session.Dependencies{
		Roster:     rosters,
		Images:     imagecheck.New(cfg.Image),
		Recognizer: svc.recognizer,
		Committer:  gateway.New(svc.records, cfg.Policy.CommitConcurrency, m.Commit, logger),
		Logs:       svc.logs,
		Metrics:    m.Sessions,
		Logger:     logger,
	}, cfg.Policy)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.registry = registry
	return svc, nil
}

// healthChecks lists the dependencies reported by the health endpoint.
func (s *services) healthChecks() map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{
		"database":   s.pool,
		"recognizer": handlers.PingFunc(s.recognizer.Health),
	}
	if s.campus != nil {
		checks["roster"] = s.campus
	}
	return checks
}

// Close stops the registry and releases the database connections.
func (s *services) Close() {
	if s.registry != nil {
		s.registry.Stop()
	}
	if s.campus != nil {
		if err := s.campus.Close(); err != nil {
			s.logger.Warn("closing roster database", zap.Error(err))
		}
	}
	if err := s.pool.Close(); err != nil {
		s.logger.Warn("closing database", zap.Error(err))
	}
}
