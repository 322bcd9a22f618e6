package circuitbreaker

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DatabaseClient wraps a sqlx.DB with circuit breaker protection
type DatabaseClient struct {
	db      *sqlx.DB
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewDatabaseClient creates a circuit-breaker-protected database client
func NewDatabaseClient(name string, db *sqlx.DB, config Config, logger *zap.Logger) *DatabaseClient {
	if config.OnStateChange == nil {
		config.OnStateChange = MetricsStateChangeHook()
	}
	cb := NewCircuitBreaker(name, config, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(cb)
	return &DatabaseClient{
		db:      db,
		breaker: cb,
		logger:  logger,
	}
}

// Unwrap returns the underlying sqlx.DB
func (d *DatabaseClient) Unwrap() *sqlx.DB {
	return d.db
}

func (d *DatabaseClient) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	err := d.breaker.Execute(ctx, func() error {
		var opErr error
		result, opErr = d.db.ExecContext(ctx, query, args...)
		GlobalMetricsCollector.RecordRequest(d.breaker.name, opErr == nil)
		return opErr
	})
	return result, err
}

func (d *DatabaseClient) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return d.breaker.Execute(ctx, func() error {
		err := d.db.GetContext(ctx, dest, query, args...)
		if err == sql.ErrNoRows {
			GlobalMetricsCollector.RecordRequest(d.breaker.name, true)
			return err
		}
		GlobalMetricsCollector.RecordRequest(d.breaker.name, err == nil)
		return err
	})
}

func (d *DatabaseClient) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return d.breaker.Execute(ctx, func() error {
		err := d.db.SelectContext(ctx, dest, query, args...)
		GlobalMetricsCollector.RecordRequest(d.breaker.name, err == nil)
		return err
	})
}

func (d *DatabaseClient) PingContext(ctx context.Context) error {
	return d.breaker.Execute(ctx, func() error {
		err := d.db.PingContext(ctx)
		GlobalMetricsCollector.RecordRequest(d.breaker.name, err == nil)
		return err
	})
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}

// State exposes the underlying breaker state
func (d *DatabaseClient) State() State {
	return d.breaker.State()
}
