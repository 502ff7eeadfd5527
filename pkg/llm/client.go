package llm

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/codeready-toolchain/triago/pkg/config"
)

// nonceCacheTTL bounds how long completed responses are kept for
// idempotent replay.
const nonceCacheTTL = 5 * time.Minute

// Client wraps a Generator with the collaborator call policy: a
// token-bucket rate limit, a concurrency cap, bounded retries with
// exponential backoff on transient failures, and nonce idempotency.
type Client struct {
	inner       Generator
	limiter     *rate.Limiter
	sem         chan struct{}
	maxRetries  int
	callTimeout time.Duration
	logger      *slog.Logger

	// OnRetry, if set, is invoked once per retry attempt (telemetry hook).
	OnRetry func()

	mu    sync.Mutex
	cache map[string]nonceEntry
}

type nonceEntry struct {
	resp     *GenerateResponse
	storedAt time.Time
}

// NewClient builds a policy-wrapped collaborator client.
func NewClient(inner Generator, cfg *config.LLMCollaboratorConfig) *Client {
	return &Client{
		inner:       inner,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst),
		sem:         make(chan struct{}, cfg.MaxConcurrent),
		maxRetries:  cfg.MaxRetries,
		callTimeout: cfg.CallTimeout.Duration(),
		logger:      slog.Default().With("component", "llm-client"),
		cache:       make(map[string]nonceEntry),
	}
}

// Generate runs one generation with the full collaborator policy applied.
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if req.Nonce != "" {
		if resp, ok := c.cached(req.Nonce); ok {
			return resp, nil
		}
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, &CollaboratorError{Class: FailureTransient, Message: "concurrency cap wait cancelled", Err: ctx.Err()}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if c.OnRetry != nil {
				c.OnRetry()
			}
			if err := sleepBackoff(ctx, attempt); err != nil {
				return nil, &CollaboratorError{Class: FailureTransient, Message: "backoff cancelled", Err: err}
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &CollaboratorError{Class: FailureTransient, Message: "rate limit wait cancelled", Err: err}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if c.callTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
		}
		resp, err := c.inner.Generate(callCtx, req)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if req.Nonce != "" {
				c.store(req.Nonce, resp)
			}
			return resp, nil
		}
		lastErr = err

		var collabErr *CollaboratorError
		if errors.As(err, &collabErr) && !collabErr.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, &CollaboratorError{Class: FailureTransient, Message: "call cancelled", Err: ctx.Err()}
		}
		c.logger.Warn("Transient generator failure, will retry",
			"attempt", attempt+1, "max_retries", c.maxRetries, "error", err)
	}

	// Retry budget exhausted: transient becomes terminal.
	return nil, &CollaboratorError{
		Class:   FailureTerminal,
		Message: "retries exhausted",
		Err:     lastErr,
	}
}

func (c *Client) cached(nonce string) (*GenerateResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[nonce]
	if !ok {
		return nil, false
	}
	if time.Since(entry.storedAt) > nonceCacheTTL {
		delete(c.cache, nonce)
		return nil, false
	}
	return entry.resp, true
}

func (c *Client) store(nonce string, resp *GenerateResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Opportunistic eviction keeps the cache bounded without a ticker.
	for k, e := range c.cache {
		if time.Since(e.storedAt) > nonceCacheTTL {
			delete(c.cache, k)
		}
	}
	c.cache[nonce] = nonceEntry{resp: resp, storedAt: time.Now()}
}

// sleepBackoff waits 2^(attempt-1) * 250ms with jitter, honoring ctx.
func sleepBackoff(ctx context.Context, attempt int) error {
	base := 250 * time.Millisecond << (attempt - 1)
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	select {
	case <-time.After(base + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
