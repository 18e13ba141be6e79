package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

// Options bounds every remote call made through a Client.
type Options struct {
	Timeout    time.Duration // per attempt
	Retries    int           // extra attempts for transient failures
	RetryDelay time.Duration
	RateLimit  float64 // calls per second; 0 disables limiting
}

// DefaultOptions retries a transient failure once with a 30s per-call timeout.
func DefaultOptions() Options {
	return Options{
		Timeout:    30 * time.Second,
		Retries:    1,
		RetryDelay: 500 * time.Millisecond,
	}
}

// Lookup is the tagged result of FindByName.
type Lookup struct {
	ID    DocumentID
	Found bool
}

// FetchResult is the tagged result of Fetch. Content is empty whenever
// Failure is set.
type FetchResult struct {
	Content []byte
	Failure error
}

func (r FetchResult) OK() bool { return r.Failure == nil }

// Client applies timeout, rate-limit and retry policy around a Backend.
type Client struct {
	backend Backend
	opts    Options
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewClient(backend Backend, opts Options, logger zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Millisecond
	}
	c := &Client{
		backend: backend,
		opts:    opts,
		logger:  logger.With().Str("component", "docstore").Logger(),
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c
}

// FindByName looks up the first document called name. A missing document is
// a normal outcome (Found=false, nil error).
func (c *Client) FindByName(ctx context.Context, name string) (Lookup, error) {
	var id DocumentID
	err := c.do(ctx, OpFind, name, func(ctx context.Context) error {
		var err error
		id, err = c.backend.FindByName(ctx, name)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return Lookup{}, nil
	}
	if err != nil {
		return Lookup{}, err
	}
	return Lookup{ID: id, Found: true}, nil
}

// Fetch never fails the caller: any error, including not-found, yields empty
// content with Failure recording the reason.
func (c *Client) Fetch(ctx context.Context, id DocumentID) FetchResult {
	var content []byte
	err := c.do(ctx, OpFetch, string(id), func(ctx context.Context) error {
		var err error
		content, err = c.backend.Fetch(ctx, id)
		return err
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("id", string(id)).Msg("fetch failed; continuing with empty content")
		return FetchResult{Failure: err}
	}
	return FetchResult{Content: content}
}

// Replace overwrites id. ErrNotFound is returned unretried so the caller can
// fall back to Create.
func (c *Client) Replace(ctx context.Context, id DocumentID, content []byte) error {
	return c.do(ctx, OpReplace, string(id), func(ctx context.Context) error {
		return c.backend.Replace(ctx, id, content)
	})
}

func (c *Client) Create(ctx context.Context, name string, content []byte) (DocumentID, error) {
	var id DocumentID
	err := c.do(ctx, OpCreate, name, func(ctx context.Context) error {
		var err error
		id, err = c.backend.Create(ctx, name, content)
		return err
	})
	return id, err
}

func (c *Client) do(ctx context.Context, op Op, target string, fn func(context.Context) error) error {
	start := time.Now()
	attempts := 0
	backoff := retry.WithMaxRetries(uint64(c.opts.Retries), retry.NewConstant(c.opts.RetryDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		err := fn(callCtx)
		switch {
		case err == nil, errors.Is(err, ErrNotFound):
			return err
		case IsTransient(err):
		case errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			err = Transient(err)
		default:
			return err
		}
		c.logger.Debug().Err(err).Str("op", string(op)).Int("attempt", attempts).Msg("transient store failure")
		return retry.RetryableError(err)
	})

	ev := c.logger.Debug()
	if err != nil && !errors.Is(err, ErrNotFound) {
		ev = c.logger.Warn().Err(err)
	}
	ev.Str("op", string(op)).Str("target", target).Int("attempts", attempts).
		Dur("duration", time.Since(start)).Msg("store call")

	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &OpError{Op: op, Target: target, Attempts: attempts, Err: err}
}
