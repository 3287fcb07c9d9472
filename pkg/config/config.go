// Package config holds the runtime configuration of pathsql. Values come from defaults, then the
// environment, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/pathsql/pkg/capability"
	"github.com/malbeclabs/pathsql/pkg/clickhouse"
	"github.com/malbeclabs/pathsql/pkg/evaluator"
	"github.com/malbeclabs/pathsql/pkg/execution"
	"github.com/malbeclabs/pathsql/pkg/gateway"
)

const (
	DefaultModel          = "claude-sonnet-4-5"
	DefaultOllamaURL      = "http://localhost:11434"
	DefaultClickHouseDB   = "default"
	DefaultClickHouseUser = "default"
	DefaultConcurrency    = 1
)

type ClickHouse struct {
	Addr     string
	Database string
	Username string
	Password string
	Secure   bool
}

type Config struct {
	Verbose bool

	ClickHouse ClickHouse

	AnthropicAPIKey  string
	AnthropicBaseURL string
	OllamaURL        string

	// Model is the default model for generation and repair.
	Model string
	// ModelsFile is an optional YAML file of extra capability rules.
	ModelsFile string

	GatewayTimeout time.Duration
	// GatewayMaxRetries of zero disables retries.
	GatewayMaxRetries int
	// GatewayCacheTTL of zero or less disables the response cache.
	GatewayCacheTTL time.Duration

	MaxAttempts int
	Limits      execution.Limits
	Concurrency int

	MetricsAddr string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ClickHouse: ClickHouse{
			Database: DefaultClickHouseDB,
			Username: DefaultClickHouseUser,
		},
		OllamaURL:         DefaultOllamaURL,
		Model:             DefaultModel,
		GatewayTimeout:    gateway.DefaultTimeout,
		GatewayMaxRetries: gateway.DefaultMaxRetries,
		GatewayCacheTTL:   gateway.DefaultCacheTTL,
		MaxAttempts:       evaluator.DefaultMaxAttempts,
		Limits:            execution.DefaultLimits(),
		Concurrency:       DefaultConcurrency,
	}
}

// LoadDotEnv loads variables from the given files, or ".env" when none are given, into the process
// environment. Missing files are ignored and variables already set are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from environment variables that are set and non-empty.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	parse := func(key string, set func(string) error) {
		if v, ok := lookup(key); ok && v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
			}
		}
	}
	duration := func(dst *time.Duration) func(string) error {
		return func(v string) (err error) {
			*dst, err = time.ParseDuration(v)
			return err
		}
	}
	integer := func(dst *int) func(string) error {
		return func(v string) (err error) {
			*dst, err = strconv.Atoi(v)
			return err
		}
	}

	str("CLICKHOUSE_ADDR", &c.ClickHouse.Addr)
	str("CLICKHOUSE_DATABASE", &c.ClickHouse.Database)
	str("CLICKHOUSE_USERNAME", &c.ClickHouse.Username)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	parse("CLICKHOUSE_SECURE", func(v string) (err error) {
		c.ClickHouse.Secure, err = strconv.ParseBool(v)
		return err
	})

	str("ANTHROPIC_API_KEY", &c.AnthropicAPIKey)
	str("ANTHROPIC_BASE_URL", &c.AnthropicBaseURL)
	str("OLLAMA_URL", &c.OllamaURL)

	str("PATHSQL_MODEL", &c.Model)
	str("PATHSQL_MODELS_FILE", &c.ModelsFile)
	parse("PATHSQL_GATEWAY_TIMEOUT", duration(&c.GatewayTimeout))
	parse("PATHSQL_MAX_RETRIES", integer(&c.GatewayMaxRetries))
	parse("PATHSQL_CACHE_TTL", duration(&c.GatewayCacheTTL))
	parse("PATHSQL_MAX_ATTEMPTS", integer(&c.MaxAttempts))
	parse("PATHSQL_MAX_ROWS", integer(&c.Limits.MaxRows))
	parse("PATHSQL_MAX_EXECUTION_TIME", duration(&c.Limits.MaxExecutionTime))
	parse("PATHSQL_MAX_MEMORY_BYTES", func(v string) (err error) {
		c.Limits.MaxMemoryBytes, err = strconv.ParseInt(v, 10, 64)
		return err
	})
	parse("PATHSQL_CONCURRENCY", integer(&c.Concurrency))
	str("PATHSQL_METRICS_ADDR", &c.MetricsAddr)

	return errors.Join(errs...)
}

// BindFlags registers flags for every field. Current field values become the flag defaults, so
// flags override whatever ApplyEnv set.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ClickHouse.Addr, "clickhouse-addr", c.ClickHouse.Addr, "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR env var)")
	fs.StringVar(&c.ClickHouse.Database, "clickhouse-database", c.ClickHouse.Database, "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	fs.StringVar(&c.ClickHouse.Username, "clickhouse-username", c.ClickHouse.Username, "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	fs.StringVar(&c.ClickHouse.Password, "clickhouse-password", c.ClickHouse.Password, "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	fs.BoolVar(&c.ClickHouse.Secure, "clickhouse-secure", c.ClickHouse.Secure, "use TLS for ClickHouse (or set CLICKHOUSE_SECURE env var)")

	fs.StringVar(&c.OllamaURL, "ollama-url", c.OllamaURL, "Ollama base URL (or set OLLAMA_URL env var)")
	fs.StringVarP(&c.Model, "model", "m", c.Model, "model used for generation and repair (or set PATHSQL_MODEL env var)")
	fs.StringVar(&c.ModelsFile, "models-file", c.ModelsFile, "YAML file of extra model capability rules (or set PATHSQL_MODELS_FILE env var)")

	fs.DurationVar(&c.GatewayTimeout, "gateway-timeout", c.GatewayTimeout, "timeout of a single model request")
	fs.IntVar(&c.GatewayMaxRetries, "gateway-max-retries", c.GatewayMaxRetries, "retries of transient model failures (0 disables)")
	fs.DurationVar(&c.GatewayCacheTTL, "gateway-cache-ttl", c.GatewayCacheTTL, "reuse of zero-temperature responses (0 disables)")

	fs.IntVar(&c.MaxAttempts, "max-attempts", c.MaxAttempts, "maximum executions per query in the repair loop")
	fs.IntVar(&c.Limits.MaxRows, "max-rows", c.Limits.MaxRows, "maximum rows read back per execution")
	fs.DurationVar(&c.Limits.MaxExecutionTime, "max-execution-time", c.Limits.MaxExecutionTime, "engine-enforced execution time limit")
	fs.Int64Var(&c.Limits.MaxMemoryBytes, "max-memory-bytes", c.Limits.MaxMemoryBytes, "engine-enforced memory limit in bytes")
	fs.IntVar(&c.Concurrency, "concurrency", c.Concurrency, "number of queries generated in parallel")

	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "address to serve Prometheus metrics on, e.g. :9090")
}

func (c *Config) Validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.GatewayTimeout <= 0 {
		errs = append(errs, errors.New("gateway timeout must be positive"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("max attempts must be at least 1"))
	}
	if c.Concurrency < 1 {
		errs = append(errs, errors.New("concurrency must be at least 1"))
	}
	if c.Limits.MaxRows <= 0 || c.Limits.MaxExecutionTime <= 0 || c.Limits.MaxMemoryBytes <= 0 {
		errs = append(errs, errors.New("execution limits must be positive"))
	}
	return errors.Join(errs...)
}

// RequireClickHouse reports an error when no ClickHouse address is configured.
func (c *Config) RequireClickHouse() error {
	if c.ClickHouse.Addr == "" {
		return errors.New("--clickhouse-addr is required (or set CLICKHOUSE_ADDR env var)")
	}
	return nil
}

// Registry returns the capability registry with any rules from ModelsFile prepended.
func (c *Config) Registry() (*capability.Registry, error) {
	if c.ModelsFile == "" {
		return capability.NewRegistry(), nil
	}
	rules, err := capability.LoadRules(c.ModelsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load models file: %w", err)
	}
	return capability.NewRegistry(rules...), nil
}

// ClickHouseOptions returns the connection options for clickhouse.Open.
func (c *Config) ClickHouseOptions(log *slog.Logger) []clickhouse.Option {
	return []clickhouse.Option{
		clickhouse.WithAddr(c.ClickHouse.Addr),
		clickhouse.WithDatabase(c.ClickHouse.Database),
		clickhouse.WithUser(c.ClickHouse.Username),
		clickhouse.WithPassword(c.ClickHouse.Password),
		clickhouse.WithSecure(c.ClickHouse.Secure),
		clickhouse.WithLogger(log),
	}
}

// RouterConfig builds the gateway router configuration. The Anthropic client is configured only
// when an API key is set.
func (c *Config) RouterConfig(log *slog.Logger) (gateway.RouterConfig, error) {
	cfg := gateway.RouterConfig{
		Logger:       log,
		DefaultModel: c.Model,
		Timeout:      c.GatewayTimeout,
		MaxRetries:   c.GatewayMaxRetries,
		CacheTTL:     c.GatewayCacheTTL,
		Ollama:       gateway.NewOllamaClient(gateway.OllamaConfig{Logger: log, BaseURL: c.OllamaURL}),
	}
	if c.GatewayMaxRetries <= 0 {
		cfg.MaxRetries = -1
	}
	if c.GatewayCacheTTL <= 0 {
		cfg.CacheTTL = -1
	}
	if c.AnthropicAPIKey != "" {
		ac, err := gateway.NewAnthropicClient(gateway.AnthropicConfig{Logger: log, APIKey: c.AnthropicAPIKey, BaseURL: c.AnthropicBaseURL})
		if err != nil {
			return gateway.RouterConfig{}, err
		}
		cfg.Anthropic = ac
	}
	return cfg, nil
}
