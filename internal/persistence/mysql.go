package persistence

import (
	"context"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jovemegidio/sistemaerp-suporte/internal/config"
)

// MySQL wraps access to the sqlx connection pool.
type MySQL struct {
	DB *sqlx.DB
}

// NewMySQL establishes a connection pool against the configured database.
func NewMySQL(ctx context.Context, cfg config.MySQLConfig, logger *zap.Logger) (*MySQL, error) {
	db, err := sqlx.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifeSec) * time.Second)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("connected to mysql", zap.String("database", cfg.Name))
	return &MySQL{DB: db}, nil
}

// Close releases pool resources.
func (m *MySQL) Close() {
	if m != nil && m.DB != nil {
		_ = m.DB.Close()
	}
}

// Handle returns the underlying sqlx pool.
func (m *MySQL) Handle() *sqlx.DB {
	if m == nil {
		return nil
	}
	return m.DB
}

// Ping verifies database connectivity.
func (m *MySQL) Ping(ctx context.Context) error {
	return m.DB.PingContext(ctx)
}
