package db

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/circuitbreaker"
)

// Config holds database configuration
type Config struct {
	Driver          string        `mapstructure:"driver"` // "postgres" or "sqlite3"
	DSN             string        `mapstructure:"dsn"`    // overrides the postgres fields when set
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	IdleConnections int           `mapstructure:"idle_connections"`
	MaxLifetime     time.Duration `mapstructure:"max_lifetime"`
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
}

func (c *Config) applyDefaults() {
	if c.Driver == "" {
		c.Driver = "postgres"
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 25
	}
	if c.IdleConnections == 0 {
		c.IdleConnections = 5
	}
	if c.MaxLifetime == 0 {
		c.MaxLifetime = 5 * time.Minute
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.QueueSize == 0 {
		c.QueueSize = 1000
	}
}

func (c *Config) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Client manages database connections and operations
type Client struct {
	db     *sqlx.DB
	cb     *circuitbreaker.CircuitBreaker
	logger *zap.Logger
	config *Config

	// Write queue for async operations
	writeQueue chan WriteRequest
	stopCh     chan struct{}
	stopOnce   sync.Once
	workerWg   sync.WaitGroup
}

// WriteRequest represents an async write operation
type WriteRequest struct {
	Type     WriteType
	Data     interface{}
	Callback func(error)
}

type WriteType int

const (
	WriteTypeEventLog WriteType = iota
)

// String returns the string representation of WriteType
func (wt WriteType) String() string {
	switch wt {
	case WriteTypeEventLog:
		return "EventLog"
	default:
		return "Unknown"
	}
}

// NewClient opens the database, verifies connectivity and applies the schema.
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	config.applyDefaults()

	rawDB, err := sqlx.Open(config.Driver, config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	rawDB.SetMaxOpenConns(config.MaxConnections)
	rawDB.SetMaxIdleConns(config.IdleConnections)
	rawDB.SetConnMaxLifetime(config.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rawDB.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := NewClientFromDB(rawDB, config, logger)
	if err := client.Migrate(ctx); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("Database client initialized",
		zap.String("driver", config.Driver),
		zap.Int("max_connections", config.MaxConnections),
		zap.Int("workers", config.Workers),
	)
	return client, nil
}

// NewClientFromDB wraps an already opened handle and starts the write workers.
func NewClientFromDB(db *sqlx.DB, config *Config, logger *zap.Logger) *Client {
	if config == nil {
		config = &Config{Driver: db.DriverName()}
	}
	config.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.NameDB, circuitbreaker.SettingsFor(circuitbreaker.NameDB).ToConfig(), logger)
	circuitbreaker.GlobalMetricsCollector.RegisterCircuitBreaker(circuitbreaker.NameDB, config.Driver, cb)

	c := &Client{
		db:         db,
		cb:         cb,
		logger:     logger,
		config:     config,
		writeQueue: make(chan WriteRequest, config.QueueSize),
		stopCh:     make(chan struct{}),
	}
	c.startWorkers()
	return c
}

// startWorkers initializes the worker pool for async writes
func (c *Client) startWorkers() {
	for i := 0; i < c.config.Workers; i++ {
		c.workerWg.Add(1)
		go c.writeWorker(i)
	}
}

// writeWorker processes write requests from the queue
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

// processWrite handles a single write request
func (c *Client) processWrite(req WriteRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch data := req.Data.(type) {
	case *EventLog:
		err = c.SaveEventLog(ctx, data)
	default:
		err = fmt.Errorf("unsupported write payload %T", req.Data)
	}

	if req.Callback != nil {
		req.Callback(err)
	}
	if err != nil {
		c.logger.Error("Failed to process write request",
			zap.String("type", req.Type.String()),
			zap.Error(err),
		)
	}
}

// drainQueue processes remaining requests during shutdown
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

// QueueWrite adds a write request to the async queue. A full queue falls back
// to a synchronous write so nothing is dropped.
func (c *Client) QueueWrite(writeType WriteType, data interface{}, callback func(error)) {
	req := WriteRequest{Type: writeType, Data: data, Callback: callback}
	select {
	case <-c.stopCh:
		c.processWrite(req)
	case c.writeQueue <- req:
	default:
		c.logger.Warn("Write queue is full, falling back to synchronous write",
			zap.String("type", writeType.String()))
		c.processWrite(req)
	}
}

// exec runs a statement through the database breaker.
func (c *Client) exec(ctx context.Context, query string, args ...interface{}) error {
	return c.cb.Execute(ctx, func() error {
		_, err := c.db.ExecContext(ctx, c.db.Rebind(query), args...)
		return err
	})
}

// Ping checks database connectivity through the breaker.
func (c *Client) Ping(ctx context.Context) error {
	return c.cb.Execute(ctx, func() error { return c.db.PingContext(ctx) })
}

// Migrate creates the tables used by the run store.
func (c *Client) Migrate(ctx context.Context) error {
	for _, stmt := range schemaFor(c.config.Driver) {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func schemaFor(driver string) []string {
	jsonType, timeType := "JSONB", "TIMESTAMPTZ"
	if driver == "sqlite3" {
		jsonType, timeType = "TEXT", "TIMESTAMP"
	}
	r := strings.NewReplacer("{json}", jsonType, "{time}", timeType)
	return []string{
		r.Replace(`CREATE TABLE IF NOT EXISTS research_runs (
			run_id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			mode TEXT NOT NULL,
			phase TEXT NOT NULL,
			status TEXT NOT NULL,
			extracted_tools {json} NOT NULL,
			companies {json} NOT NULL,
			recommendation TEXT,
			failure_reason TEXT,
			summary {json} NOT NULL,
			started_at {time} NOT NULL,
			completed_at {time},
			duration_ms BIGINT,
			created_at {time} NOT NULL,
			updated_at {time} NOT NULL
		)`),
		`CREATE INDEX IF NOT EXISTS idx_research_runs_started_at ON research_runs (started_at)`,
		r.Replace(`CREATE TABLE IF NOT EXISTS run_events (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			type TEXT NOT NULL,
			stage TEXT,
			entity TEXT,
			progress INTEGER NOT NULL,
			message TEXT,
			payload {json} NOT NULL,
			timestamp {time} NOT NULL,
			created_at {time} NOT NULL,
			UNIQUE (run_id, seq)
		)`),
	}
}

// Close stops the write workers, drains the queue and closes the connection.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.workerWg.Wait()
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	c.logger.Info("Database client closed")
	return nil
}

// DB returns the underlying handle for direct queries.
func (c *Client) DB() *sqlx.DB {
	return c.db
}
