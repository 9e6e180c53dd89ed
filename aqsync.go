package aqsync

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/benbjohnson/clock"

	"github.com/skysense/go-aq-sync/config"
	"github.com/skysense/go-aq-sync/internal/fetch"
	"github.com/skysense/go-aq-sync/internal/player"
	"github.com/skysense/go-aq-sync/internal/push"
	"github.com/skysense/go-aq-sync/internal/store"
	"github.com/skysense/go-aq-sync/internal/syncer"
	"github.com/skysense/go-aq-sync/internal/telemetry"
	"github.com/skysense/go-aq-sync/internal/transport"
	"github.com/skysense/go-aq-sync/model"
)

// AQSync is the public surface of the sync engine.
type AQSync interface {
	syncer.Syncer
	telemetry.Logger
	io.Closer

	SetOnline(online bool)
	NewPlayer(ctx context.Context, location string) (*player.Player, error)
}

// Engine wires the tiered cache, the retrying fetch client, the transport
// selector and the sync orchestrator into one lifecycle. Two engines in one
// process are fully independent; nothing here is ambient.
type Engine struct {
	syncer.Syncer
	telemetry.Logger

	cfg      *config.Config
	clock    clock.Clock
	logger   *slog.Logger
	store    *store.Store
	selector *transport.Selector
	cls      context.CancelFunc
}

// Option adjusts construction without widening the config surface.
type Option func(*options)

type options struct {
	transport http.RoundTripper
	dialer    push.Dialer
	clock     clock.Clock
}

// WithHTTPTransport injects the host environment's HTTP transport.
func WithHTTPTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithPushDialer replaces the default websocket dialer.
func WithPushDialer(d push.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithClock injects a clock, letting tests drive every timer.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	cfg.AdjustConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{clock: clock.New()}
	for _, opt := range opts {
		opt(o)
	}

	ctx, cancel := context.WithCancel(ctx)

	st, err := store.New(cfg.Cache, o.clock, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	fetcher := fetch.New(cfg.Fetch, o.transport, o.clock, logger)

	var channel *push.Channel
	if cfg.Push.Enabled() {
		dialer := o.dialer
		if dialer == nil {
			dialer = push.NewWebsocketDialer()
		}
		channel = push.NewChannel(cfg.Push, cfg.Remote, dialer, logger)
	}

	selector := transport.New(ctx, cfg.Transport, cfg.Push, cfg.Remote, channel, fetcher, o.clock, logger)
	orchestrator := syncer.New(ctx, cfg.Sync, cfg.Remote, st, selector, fetcher, o.clock, logger)
	telemeter := telemetry.New(ctx, cfg.Telemetry, logger, o.clock, st, fetcher, selector, orchestrator)

	return &Engine{
		Syncer:   orchestrator,
		Logger:   telemeter,
		cfg:      cfg,
		clock:    o.clock,
		logger:   logger,
		store:    st,
		selector: selector,
		cls:      cancel,
	}, nil
}

// SetOnline forwards the host environment's connectivity signal.
func (e *Engine) SetOnline(online bool) {
	e.selector.SetOnline(online)
}

// Invalidate removes every cached entry matching the prefix or glob
// pattern, forcing the next read of that resource family to refetch.
func (e *Engine) Invalidate(pattern string) int {
	return e.store.Invalidate(pattern)
}

// NewPlayer resolves the 24h forecast for a location and returns a
// scheduler driving its playback. Frames missing payloads are preloaded
// through the orchestrator as playback approaches them.
func (e *Engine) NewPlayer(ctx context.Context, location string) (*player.Player, error) {
	series, err := e.ForecastSeries(ctx, location)
	if err != nil {
		return nil, err
	}
	return player.New(e.cfg.Player, series, e.preloader(), e.clock, e.logger), nil
}

// preloader resolves unloaded frames by refetching the owning forecast
// resource and backfilling the series.
func (e *Engine) preloader() player.Preloader {
	return player.PreloadFunc(func(ctx context.Context, series *model.FrameSeries, indices []int) {
		payload, serr := e.Resolve(ctx, series.Key())
		if payload == nil {
			if serr != nil {
				e.logger.Warn("frame preload failed", "series", series.Key(), "err", serr)
			}
			return
		}
		fresh, err := model.ParseFrameSeries(series.Key(), payload)
		if err != nil {
			e.logger.Warn("frame preload decode failed", "series", series.Key(), "err", err)
			return
		}
		for _, i := range indices {
			if f, ferr := fresh.Frame(i); ferr == nil && f.Loaded() {
				_ = series.Fill(i, f.Payload)
			}
		}
	})
}

func (e *Engine) Close() error {
	e.cls()
	_ = e.Logger.Close()
	_ = e.Syncer.Close()
	_ = e.selector.Close()
	return e.store.Close()
}
