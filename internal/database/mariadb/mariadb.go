// Package mariadb reads class rosters from the campus MariaDB database.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

const (
	maxOpenConns = 5
	maxIdleConns = 2
	connectWait  = 10 * time.Second
)

// Pool is a read-only connection pool to the campus database.
type Pool struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPool connects to the campus database. The DSN uses the driver format,
// e.g. campus:campus@tcp(mariadb:3306)/campus.
func NewPool(ctx context.Context, dsn string, logger *zap.Logger) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	// Roster names are compared after decoding, so they must arrive as UTF-8.
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, connectWait)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	logger = logger.Named("mariadb")
	logger.Info("connected to roster database", zap.String("addr", cfg.Addr), zap.String("db", cfg.DBName))
	return &Pool{db: db, logger: logger}, nil
}

// Ping verifies the connection to the campus database.
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping MariaDB: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing roster database connection: %w", err)
		}
	}
	return nil
}
