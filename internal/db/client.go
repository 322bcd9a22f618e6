package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/circuitbreaker"
)

// Config holds database configuration.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
	SSLMode         string
}

// Client manages the Postgres connection and an async write queue.
// Persistence is fire-and-forget: queue failures are logged, never
// propagated to the request path.
type Client struct {
	db     *circuitbreaker.DatabaseClient
	logger *zap.Logger

	writeQueue chan writeRequest
	workers    int
	stopCh     chan struct{}
	workerWg   sync.WaitGroup
}

type writeKind int

const (
	writePlan writeKind = iota
	writeTurn
)

func (k writeKind) String() string {
	switch k {
	case writePlan:
		return "plan"
	case writeTurn:
		return "turn"
	default:
		return "unknown"
	}
}

type writeRequest struct {
	kind     writeKind
	data     interface{}
	callback func(error)
}

// NewClient opens a connection pool and starts the write workers.
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 25
	}
	if config.IdleConnections == 0 {
		config.IdleConnections = 5
	}
	if config.MaxLifetime == 0 {
		config.MaxLifetime = 5 * time.Minute
	}
	if config.SSLMode == "" {
		config.SSLMode = "require"
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	rawDB, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	rawDB.SetMaxOpenConns(config.MaxConnections)
	rawDB.SetMaxIdleConns(config.IdleConnections)
	rawDB.SetConnMaxLifetime(config.MaxLifetime)

	db := circuitbreaker.NewDatabaseClient("postgres", rawDB, circuitbreaker.GetDatabaseConfig(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	client := newClient(db, logger)
	logger.Info("Database client initialized",
		zap.String("host", config.Host),
		zap.Int("max_connections", config.MaxConnections),
		zap.Int("workers", client.workers),
	)
	return client, nil
}

func newClient(db *circuitbreaker.DatabaseClient, logger *zap.Logger) *Client {
	c := &Client{
		db:         db,
		logger:     logger,
		writeQueue: make(chan writeRequest, 1000),
		workers:    4,
		stopCh:     make(chan struct{}),
	}
	c.startWorkers()
	return c
}

func (c *Client) startWorkers() {
	for i := 0; i < c.workers; i++ {
		c.workerWg.Add(1)
		go c.writeWorker(i)
	}
}

func (c *Client) writeWorker(id int) {
	defer c.workerWg.Done()
	for {
		select {
		case <-c.stopCh:
			c.drainQueue()
			c.logger.Debug("Write worker stopped", zap.Int("worker_id", id))
			return
		case req := <-c.writeQueue:
			c.processWrite(req)
		}
	}
}

func (c *Client) processWrite(req writeRequest) {
	var err error
	switch req.kind {
	case writePlan:
		if record, ok := req.data.(*PlanRecord); ok {
			err = c.insertPlan(context.Background(), record)
		}
	case writeTurn:
		if record, ok := req.data.(*TurnRecord); ok {
			err = c.insertTurn(context.Background(), record)
		}
	}

	if req.callback != nil {
		req.callback(err)
	}
	if err != nil {
		c.logger.Error("Failed to process write request",
			zap.String("kind", req.kind.String()),
			zap.Error(err),
		)
	}
}

func (c *Client) drainQueue() {
	timeout := time.After(10 * time.Second)
	for {
		select {
		case req := <-c.writeQueue:
			c.processWrite(req)
		case <-timeout:
			c.logger.Warn("Timeout draining write queue")
			return
		default:
			return
		}
	}
}

// queueWrite enqueues a write, falling back to a synchronous write
// when the queue is full so nothing is dropped.
func (c *Client) queueWrite(kind writeKind, data interface{}, callback func(error)) {
	select {
	case c.writeQueue <- writeRequest{kind: kind, data: data, callback: callback}:
	default:
		c.logger.Warn("Write queue full, writing synchronously",
			zap.String("kind", kind.String()))
		c.processWrite(writeRequest{kind: kind, data: data, callback: callback})
	}
}

// Close drains the queue and closes the connection pool.
func (c *Client) Close() error {
	close(c.stopCh)
	c.workerWg.Wait()

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	c.logger.Info("Database client closed")
	return nil
}

// Wrapped exposes the circuit-breaker client for health checks.
func (c *Client) Wrapped() *circuitbreaker.DatabaseClient {
	return c.db
}
