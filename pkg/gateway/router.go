package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jellydator/ttlcache/v3"

	"github.com/malbeclabs/pathsql/pkg/metrics"
)

const (
	providerAnthropic = "anthropic"
	providerOllama    = "ollama"

	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 2
	DefaultCacheTTL   = 10 * time.Minute
)

// RouterConfig configures the Router.
type RouterConfig struct {
	Logger *slog.Logger

	// Anthropic serves models whose name starts with "claude". Ollama serves everything else.
	Anthropic Client
	Ollama    Client

	// DefaultModel is used when a request names no model.
	DefaultModel string

	// Timeout bounds each provider call.
	Timeout time.Duration

	// MaxRetries bounds retries of transient failures. Negative disables retries.
	MaxRetries int

	// RetryInitialInterval is the first backoff interval.
	RetryInitialInterval time.Duration

	// CacheTTL is how long zero-temperature responses are reused. Negative disables the cache.
	CacheTTL time.Duration
}

func (cfg *RouterConfig) Validate() error {
	if cfg.Anthropic == nil && cfg.Ollama == nil {
		return errors.New("at least one provider client is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 500 * time.Millisecond
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return nil
}

// Router dispatches requests to a provider adapter by model name.
type Router struct {
	log   *slog.Logger
	cfg   RouterConfig
	cache *ttlcache.Cache[string, Response]
}

// NewRouter creates a Router. Call Close to stop the cache janitor.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate router config: %w", err)
	}
	r := &Router{log: cfg.Logger, cfg: cfg}
	if cfg.CacheTTL > 0 {
		r.cache = ttlcache.New(ttlcache.WithTTL[string, Response](cfg.CacheTTL))
		go r.cache.Start()
	}
	return r, nil
}

// Close stops background cache expiry.
func (r *Router) Close() {
	if r.cache != nil {
		r.cache.Stop()
	}
}

// Provider returns the provider that serves model.
func Provider(model string) string {
	if strings.HasPrefix(strings.ToLower(model), "claude") {
		return providerAnthropic
	}
	return providerOllama
}

// Generate routes req to its provider.
func (r *Router) Generate(ctx context.Context, req Request) (Response, error) {
	if req.Preferences.Model == "" {
		req.Preferences.Model = r.cfg.DefaultModel
	}
	model := req.Preferences.Model
	if model == "" {
		return Response{}, &Error{Kind: ConfigurationError, Err: errors.New("no model requested and no default model configured")}
	}

	provider := Provider(model)
	client := r.cfg.Ollama
	if provider == providerAnthropic {
		client = r.cfg.Anthropic
	}
	if client == nil {
		return Response{}, &Error{Kind: ConfigurationError, Model: model, Err: fmt.Errorf("%s provider is not configured", provider)}
	}

	var key string
	if r.cache != nil && cacheable(req) {
		key = cacheKey(req)
		if item := r.cache.Get(key); item != nil {
			resp := item.Value()
			resp.Metadata.Cached = true
			resp.Metadata.LatencyMs = 0
			resp.Metadata.RetryCount = 0
			metrics.GatewayCacheHitsTotal.Inc()
			r.log.Debug("gateway: cache hit", "model", model, "task", req.TaskType)
			return resp, nil
		}
	}

	start := time.Now()
	attempt := 0
	resp, err := backoff.Retry(ctx, func() (Response, error) {
		if attempt > 0 {
			r.log.Warn("gateway: retrying model request", "model", model, "attempt", attempt+1)
		}
		attempt++
		return r.call(ctx, client, provider, req)
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.cfg.MaxRetries+1)),
	)
	if err != nil {
		var ge *Error
		if !errors.As(err, &ge) {
			ge = &Error{Kind: kindForTransport(err), Model: model, Err: err}
		}
		return Response{}, ge
	}

	resp.Metadata.Provider = provider
	resp.Metadata.RetryCount = attempt - 1
	resp.Metadata.LatencyMs = time.Since(start).Milliseconds()
	if key != "" {
		r.cache.Set(key, resp, ttlcache.DefaultTTL)
	}
	return resp, nil
}

func (r *Router) call(ctx context.Context, client Client, provider string, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Generate(ctx, req)
	metrics.RecordGatewayRequest(provider, req.Preferences.Model, time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens, err)
	if err == nil {
		return resp, nil
	}

	var ge *Error
	if !errors.As(err, &ge) {
		ge = &Error{Kind: kindForTransport(err), Model: req.Preferences.Model, Err: err}
	}
	if ctx.Err() != nil && ge.Kind == NetworkError {
		ge = &Error{Kind: TimeoutError, Model: ge.Model, Err: ge.Err}
	}
	if !ge.Retryable() {
		return Response{}, backoff.Permanent(ge)
	}
	return Response{}, ge
}

func (r *Router) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryInitialInterval
	return b
}

func cacheable(req Request) bool {
	return req.Preferences.Temperature != nil && *req.Preferences.Temperature == 0
}

func cacheKey(req Request) string {
	h := sha256.New()
	for _, part := range []string{
		req.Preferences.Model,
		strconv.FormatInt(req.Preferences.MaxTokens, 10),
		req.System,
		req.Prompt,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
