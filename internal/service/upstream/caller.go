package upstream

import (
	"context"
	"errors"
	"time"

	"FlowPull/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// CallerOption configures Caller.
type CallerOption func(*Caller)

// Caller wraps a PageFetcher with rate limiting and retry. Every attempt,
// including retries, waits on the shared limiter first so the upstream quota
// holds across concurrent walks.
type Caller struct {
	fetcher      PageFetcher
	limiter      *rate.Limiter
	timeout      time.Duration
	retryMax     uint64
	retryInitial time.Duration
	retryMaxWait time.Duration
	onRetry      func(reason string)
	logger       *logger.Logger
}

// NewCaller creates a rate-limited, retrying caller.
func NewCaller(fetcher PageFetcher, ratePerSec float64, burst int, lgr *logger.Logger, opts ...CallerOption) *Caller {
	if burst < 1 {
		burst = 1
	}
	c := &Caller{
		fetcher:      fetcher,
		limiter:      rate.NewLimiter(rate.Limit(ratePerSec), burst),
		timeout:      30 * time.Second,
		retryMax:     2, // retries after the first attempt, 3 tries total
		retryInitial: 1 * time.Second,
		retryMaxWait: 10 * time.Second,
		logger:       lgr,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithCallTimeout sets the per-attempt timeout.
func WithCallTimeout(d time.Duration) CallerOption {
	return func(c *Caller) { c.timeout = d }
}

// WithRetry sets retry count and backoff bounds. max counts total tries.
func WithRetry(max int, initial, maxWait time.Duration) CallerOption {
	return func(c *Caller) {
		if max < 1 {
			max = 1
		}
		c.retryMax = uint64(max - 1)
		if initial > 0 {
			c.retryInitial = initial
		}
		if maxWait > 0 {
			c.retryMaxWait = maxWait
		}
	}
}

// WithOnRetry registers a hook invoked once per retry attempt.
func WithOnRetry(fn func(reason string)) CallerOption {
	return func(c *Caller) { c.onRetry = fn }
}

// FetchPage fetches one page, retrying transient failures with exponential
// backoff. Auth failures and other 4xx responses are permanent.
func (c *Caller) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	operation := func() (*Page, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if c.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		page, err := c.fetcher.FetchPage(callCtx, req)
		if err != nil {
			return nil, c.classify(ctx, err)
		}
		return page, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInitial
	bo.MaxInterval = c.retryMaxWait
	bo.Multiplier = 2.0
	bo.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("upstream call retry",
			logger.String("instrument", req.Instrument),
			logger.Duration("wait", wait),
			logger.Error(err))
		if rc := RetryCounterFrom(ctx); rc != nil {
			rc.Inc()
		}
		if c.onRetry != nil {
			c.onRetry(retryReason(err))
		}
	}

	return backoff.RetryNotifyWithData(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, c.retryMax), ctx),
		notify,
	)
}

// classify wraps non-retryable errors in backoff.Permanent.
func (c *Caller) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(ctx.Err())
	}
	if errors.Is(err, ErrUnauthorized) {
		return backoff.Permanent(err)
	}
	var se *StatusError
	if errors.As(err, &se) && !se.Transient() {
		return backoff.Permanent(err)
	}
	return err
}

func retryReason(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		if se.Code == 429 {
			return "rate_limited"
		}
		return "server_error"
	}
	return "transport"
}
