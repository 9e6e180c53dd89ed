package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/skysense/go-aq-sync/config"
	"github.com/skysense/go-aq-sync/internal/fetch"
	"github.com/skysense/go-aq-sync/internal/shared/bytes"
	"github.com/skysense/go-aq-sync/internal/store"
	"github.com/skysense/go-aq-sync/internal/syncer"
	"github.com/skysense/go-aq-sync/internal/transport"
)

type Logger interface {
	Interval() time.Duration
	Close() error
}

// Logs periodically emits per-component counter deltas so operators can
// watch cache efficiency and transport health without scraping anything.
type Logs struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.TelemetryCfg
	logger   *slog.Logger
	clock    clock.Clock
	sampler  sampler
	interval time.Duration
}

func New(
	ctx context.Context,
	cfg *config.TelemetryCfg,
	logger *slog.Logger,
	clk clock.Clock,
	st store.Storer,
	f fetch.Fetcher,
	sel transport.Selecting,
	sy syncer.Syncer,
) Logger {
	if !cfg.Enabled() {
		return &NoOpLogger{}
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &Logs{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		clock:    clk,
		sampler:  newSampler(st, f, sel, sy),
		interval: cfg.Interval,
	}
	go l.loop()
	return l
}

func (l *Logs) Interval() time.Duration {
	return l.interval
}

func (l *Logs) Close() error {
	l.cancel()
	return nil
}

func (l *Logs) loop() {
	ticker := l.clock.Ticker(l.interval)
	defer ticker.Stop()

	prev := l.sampler.snapshot()

	for {
		select {
		case <-l.ctx.Done():
			return

		case <-ticker.C:
			cur := l.sampler.snapshot()
			d := deltaSnapshot(prev, cur)
			prev = cur

			common := []any{"interval", l.interval.String()}

			l.logger.Info("cache_store",
				append(common,
					"hits", d.storeHits,
					"misses", d.storeMisses,
					"promotions", d.storePromotions,
					"evicted", d.storeEvicted,
					"capacity_errors", d.storeCapacityErr,
				)...,
			)

			l.logger.Info("fetch_client",
				append(common,
					"attempts", d.fetchAttempts,
					"retries", d.fetchRetries,
					"rate_limited", d.fetchRateLimited,
					"failures", d.fetchFailures,
				)...,
			)

			l.logger.Info("transport",
				append(common,
					"mode", l.sampler.selector.Mode().String(),
					"state_changes", d.stateChanges,
					"poll_rounds", d.pollRounds,
					"push_retries", d.pushRetries,
					"delivered", d.delivered,
					"dropped_lww", d.droppedLWW,
				)...,
			)

			l.logger.Info("sync",
				append(common,
					"fetches", d.syncFetches,
					"singleflight_merged", d.syncMerged,
					"refreshes", d.syncRefresh,
					"applied", d.syncApplied,
					"failures", d.syncFailures,
				)...,
			)

			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			l.logger.Info("runtime",
				append(common,
					"alloc", bytes.FmtMem(ms.Alloc),
					"sys", bytes.FmtMem(ms.Sys),
					"num_gc", ms.NumGC,
					"goroutines", runtime.NumGoroutine(),
				)...,
			)
		}
	}
}

// NoOpLogger is used when the telemetry config section is nil.
type NoOpLogger struct{}

func (*NoOpLogger) Interval() time.Duration { return 0 }
func (*NoOpLogger) Close() error            { return nil }
