package clickhousetesting

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcch "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"github.com/malbeclabs/pathsql/pkg/clickhouse"
)

type DBConfig struct {
	Database       string
	Username       string
	Password       string
	Port           string
	ContainerImage string
}

func (cfg *DBConfig) setDefaults() {
	if cfg.Database == "" {
		cfg.Database = "test"
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	if cfg.Password == "" {
		cfg.Password = "password"
	}
	if cfg.Port == "" {
		cfg.Port = "9000"
	}
	if cfg.ContainerImage == "" {
		cfg.ContainerImage = "clickhouse/clickhouse-server:latest"
	}
}

// DB is a ClickHouse server in a container with an empty traces table.
type DB struct {
	*clickhouse.Client
	container *tcch.ClickHouseContainer
	t         testing.TB
}

func NewDefaultDB(t testing.TB) *DB {
	return NewDB(t, nil)
}

func NewDB(t testing.TB, cfg *DBConfig) *DB {
	ctx := t.Context()

	if cfg == nil {
		cfg = &DBConfig{}
	}
	cfg.setDefaults()

	var container *tcch.ClickHouseContainer
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		var err error
		container, err = tcch.Run(ctx,
			cfg.ContainerImage,
			tcch.WithDatabase(cfg.Database),
			tcch.WithUsername(cfg.Username),
			tcch.WithPassword(cfg.Password),
		)
		if err != nil {
			lastErr = err
			if isRetryableContainerStartErr(err) && attempt < 3 {
				time.Sleep(time.Duration(attempt) * 750 * time.Millisecond)
				continue
			}
			require.NoError(t, err)
		}
		break
	}
	if container == nil {
		t.Fatalf("failed to start ClickHouse container after retries: %v", lastErr)
	}
	testcontainers.CleanupContainer(t, container)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, nat.Port(fmt.Sprintf("%s/tcp", cfg.Port)))
	require.NoError(t, err)
	addr := fmt.Sprintf("%s:%s", host, mappedPort.Port())

	// The server may need a moment after start before it accepts connections.
	var client *clickhouse.Client
	for attempt := 1; attempt <= 3; attempt++ {
		client, err = clickhouse.Open(ctx,
			clickhouse.WithAddr(addr),
			clickhouse.WithDatabase(cfg.Database),
			clickhouse.WithUser(cfg.Username),
			clickhouse.WithPassword(cfg.Password),
			clickhouse.WithLogger(slog.Default()),
		)
		if err != nil && isRetryableConnectionErr(err) && attempt < 3 {
			time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
			continue
		}
		require.NoError(t, err)
		break
	}

	require.NoError(t, clickhouse.CreateTracesTable(ctx, client.Conn(), cfg.Database))

	db := &DB{Client: client, container: container, t: t}
	t.Cleanup(db.close)
	return db
}

func (db *DB) close() {
	if err := db.Client.Close(); err != nil {
		db.t.Logf("failed to close ClickHouse: %v", err)
	}
}

// Exec runs a setup statement, failing the test on error.
func (db *DB) Exec(query string, args ...any) {
	require.NoError(db.t, db.Conn().Exec(db.t.Context(), query, args...))
}

func isRetryableContainerStartErr(err error) bool {
	s := err.Error()
	return strings.Contains(s, "wait until ready") ||
		strings.Contains(s, "mapped port") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "context deadline exceeded") ||
		strings.Contains(s, "/containers/") && strings.Contains(s, "json")
}

func isRetryableConnectionErr(err error) bool {
	s := err.Error()
	return strings.Contains(s, "handshake") ||
		strings.Contains(s, "unexpected packet") ||
		strings.Contains(s, "failed to ping") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "dial tcp")
}
