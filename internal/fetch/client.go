package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/skysense/go-aq-sync/config"
	"github.com/skysense/go-aq-sync/model"
)

// Fetcher is the network contract the transport layer depends on.
type Fetcher interface {
	Do(ctx context.Context, req Request) ([]byte, *model.SyncError)
	FetchMetrics() (attempts, retries, rateLimited, failures int64)
}

// Request is one logical fetch. The attempt count, backoff and timeout come
// from config, not per call.
type Request struct {
	Method string
	URL    string
	Header http.Header
}

// Client issues requests with per-attempt timeouts and capped doubling
// backoff. Transient failures (timeout, 5xx, connection errors) retry up to
// the attempt limit; fatal ones (other 4xx, malformed body) surface
// immediately; 429 retries after the server-indicated delay. A request
// whose caller cancelled is never retried.
type Client struct {
	cfg      *config.FetchCfg
	hc       *http.Client
	clock    clock.Clock
	logger   *slog.Logger
	counters *fetchCounters
}

// New wraps the host-provided transport. A nil transport falls back to
// http.DefaultTransport.
func New(cfg *config.FetchCfg, transport http.RoundTripper, clk clock.Clock, logger *slog.Logger) *Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		cfg:      cfg,
		hc:       &http.Client{Transport: transport},
		clock:    clk,
		logger:   logger,
		counters: newFetchCounters(),
	}
}

func (c *Client) Do(ctx context.Context, req Request) ([]byte, *model.SyncError) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var last *model.SyncError
	delay := c.cfg.BackoffBase

	for attempt := 0; attempt < c.cfg.Attempts; attempt++ {
		if attempt > 0 {
			c.counters.retries.Add(1)
			if !c.sleep(ctx, delay) {
				return nil, model.NewOffline(ctx.Err())
			}
			delay *= 2
			if delay > c.cfg.BackoffCap {
				delay = c.cfg.BackoffCap
			}
		}

		body, serr := c.attempt(ctx, req)
		if serr == nil {
			return body, nil
		}
		last = serr

		if ctx.Err() != nil {
			// caller cancelled: never retry, let the result be discarded
			return nil, model.NewOffline(ctx.Err())
		}
		if !serr.Retryable() {
			return nil, serr
		}
		if serr.Kind == model.ErrRateLimited {
			c.counters.rateLimited.Add(1)
			if serr.RetryAfter > 0 {
				delay = serr.RetryAfter
			}
		}
	}

	c.counters.failures.Add(1)
	return nil, last
}

// sleep waits for the backoff delay, reporting false on cancellation.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	timer := c.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) attempt(ctx context.Context, req Request) ([]byte, *model.SyncError) {
	c.counters.attempts.Add(1)

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, nil)
	if err != nil {
		return nil, model.NewFatal(fmt.Errorf("build request: %w", err))
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		// timeout, reset, refused: all retryable
		return nil, model.NewTransient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		serr := model.NewRateLimited(retryAfter(resp), fmt.Errorf("rate limited by %s", req.URL))
		serr.Status = resp.StatusCode
		return nil, serr
	case resp.StatusCode >= 500:
		serr := model.NewTransient(fmt.Errorf("%s responded %d", req.URL, resp.StatusCode))
		serr.Status = resp.StatusCode
		return nil, serr
	case resp.StatusCode >= 400:
		serr := model.NewFatal(fmt.Errorf("%s responded %d", req.URL, resp.StatusCode))
		serr.Status = resp.StatusCode
		return nil, serr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewTransient(fmt.Errorf("read body: %w", err))
	}
	if !json.Valid(body) {
		return nil, model.NewFatal(fmt.Errorf("malformed payload from %s", req.URL))
	}
	return body, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func (c *Client) FetchMetrics() (attempts, retries, rateLimited, failures int64) {
	return c.counters.snapshot()
}
