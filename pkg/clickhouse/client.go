// Package clickhouse is the execution backend: it runs candidate queries on ClickHouse under
// engine-enforced ceilings and introspects the table schema for prompts.
package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	defaultAddr        = "localhost:9000"
	defaultDatabase    = "default"
	defaultUsername    = "default"
	defaultDialTimeout = 10 * time.Second
)

// Querier is the subset of the driver connection used by this package.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	Exec(ctx context.Context, query string, args ...any) error
	Ping(ctx context.Context) error
}

// Client is a ClickHouse connection.
type Client struct {
	conn     driver.Conn
	database string
	log      *slog.Logger
}

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	addr        string
	database    string
	username    string
	password    string
	secure      bool
	dialTimeout time.Duration
	logger      *slog.Logger
}

// WithAddr sets the native protocol address.
func WithAddr(addr string) Option {
	return func(c *clientConfig) {
		c.addr = addr
	}
}

// WithDatabase sets the database.
func WithDatabase(database string) Option {
	return func(c *clientConfig) {
		c.database = database
	}
}

// WithUser sets the username.
func WithUser(username string) Option {
	return func(c *clientConfig) {
		c.username = username
	}
}

// WithPassword sets the password.
func WithPassword(password string) Option {
	return func(c *clientConfig) {
		c.password = password
	}
}

// WithSecure enables TLS.
func WithSecure(secure bool) Option {
	return func(c *clientConfig) {
		c.secure = secure
	}
}

// WithDialTimeout sets the connection dial timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.dialTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// Open connects to ClickHouse and pings it.
func Open(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		addr:        defaultAddr,
		database:    defaultDatabase,
		username:    defaultUsername,
		dialTimeout: defaultDialTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	chOpts := &clickhouse.Options{
		Addr: []string{cfg.addr},
		Auth: clickhouse.Auth{
			Database: cfg.database,
			Username: cfg.username,
			Password: cfg.password,
		},
		DialTimeout: cfg.dialTimeout,
	}
	if cfg.secure {
		chOpts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(chOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse at %s: %w", cfg.addr, err)
	}
	cfg.logger.Debug("clickhouse: connected", "addr", cfg.addr, "database", cfg.database)

	return &Client{conn: conn, database: cfg.database, log: cfg.logger}, nil
}

// Conn returns the underlying connection.
func (c *Client) Conn() Querier {
	return c.conn
}

// Database returns the configured database name.
func (c *Client) Database() string {
	return c.database
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
