package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/skysense/go-aq-sync/config"
	"github.com/skysense/go-aq-sync/model"
)

// PlayState is the playback state machine.
type PlayState int32

const (
	Stopped PlayState = iota
	Playing
	Paused
)

func (s PlayState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "unknown"
}

// Preloader asks the sync layer to resolve frames ahead of playback. The
// player never does network I/O itself; it only requests and observes the
// per-frame loaded flags.
type Preloader interface {
	Preload(ctx context.Context, series *model.FrameSeries, indices []int)
}

// PreloadFunc adapts a plain function to the Preloader interface.
type PreloadFunc func(ctx context.Context, series *model.FrameSeries, indices []int)

func (f PreloadFunc) Preload(ctx context.Context, series *model.FrameSeries, indices []int) {
	f(ctx, series, indices)
}

// Player drives timed playback over a fixed-length frame series. Advancing
// past the last index wraps to zero. When the next frame has not resolved
// yet, playback holds on the current index until it loads or the skip
// timeout fires, at which point one index is skipped and a missed-frame
// event is recorded.
type Player struct {
	cfg       *config.PlayerCfg
	clock     clock.Clock
	logger    *slog.Logger
	preloader Preloader

	mu            sync.Mutex
	series        *model.FrameSeries
	state         PlayState
	index         int
	interval      time.Duration
	ticker        *tick
	preloadCtx    context.Context
	preloadCancel context.CancelFunc

	counters *playerCounters
}

// tick identifies one scheduled advance so a superseded timer (pause,
// seek, speed change) is ignored when it eventually fires.
type tick struct {
	timer *clock.Timer
}

func New(cfg *config.PlayerCfg, series *model.FrameSeries, preloader Preloader, clk clock.Clock, logger *slog.Logger) *Player {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		cfg:           cfg,
		clock:         clk,
		logger:        logger,
		preloader:     preloader,
		series:        series,
		interval:      cfg.FrameInterval,
		preloadCtx:    ctx,
		preloadCancel: cancel,
		counters:      newPlayerCounters(),
	}
	return p
}

// State reports the playback state and current index.
func (p *Player) State() (PlayState, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.index
}

// Series returns the frame series under playback.
func (p *Player) Series() *model.FrameSeries {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.series
}

// Start begins playback from the current index.
func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Playing {
		return
	}
	p.state = Playing
	p.requestPreloadLocked()
	p.scheduleLocked(p.interval)
}

// Pause freezes playback, preserving the current index.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Playing {
		return
	}
	p.state = Paused
	p.dropTickLocked()
}

// Resume continues playback from the paused index.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Paused {
		return
	}
	p.state = Playing
	p.requestPreloadLocked()
	p.scheduleLocked(p.interval)
}

// Reset returns to index zero and stops playback.
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Stopped
	p.index = 0
	p.dropTickLocked()
}

// Seek jumps to an index regardless of play state. Out-of-range indices
// are rejected.
func (p *Player) Seek(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= p.series.Len() {
		return fmt.Errorf("seek index %d out of range [0,%d)", index, p.series.Len())
	}
	p.index = index
	p.requestPreloadLocked()
	return nil
}

// SetSpeed changes the per-frame cadence. It takes effect on the next
// tick, not retroactively.
func (p *Player) SetSpeed(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("frame interval must be positive, got %v", interval)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = interval
	return nil
}

// SwitchSeries replaces the series under playback, cancelling pending
// preloads for the old one and resetting the position.
func (p *Player) SwitchSeries(series *model.FrameSeries) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preloadCancel()
	ctx, cancel := context.WithCancel(context.Background())
	p.preloadCtx, p.preloadCancel = ctx, cancel
	p.series = series
	p.index = 0
	if p.state == Playing {
		p.requestPreloadLocked()
		p.scheduleLocked(p.interval)
	}
}

// Close stops playback and cancels outstanding preloads.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Stopped
	p.dropTickLocked()
	p.preloadCancel()
	return nil
}

func (p *Player) PlayerMetrics() (ticks, holds, missed int64) {
	return p.counters.snapshot()
}

// scheduleLocked arms the next advance. Any previously armed tick is
// superseded by generation.
func (p *Player) scheduleLocked(d time.Duration) {
	p.dropTickLocked()
	t := &tick{timer: p.clock.Timer(d)}
	p.ticker = t
	go p.await(t)
}

func (p *Player) dropTickLocked() {
	if p.ticker != nil {
		p.ticker.timer.Stop()
		p.ticker = nil
	}
}

func (p *Player) await(t *tick) {
	<-t.timer.C
	p.advance(t)
}

// advance moves playback one frame forward, holding on unresolved frames.
func (p *Player) advance(t *tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Playing || p.ticker != t {
		return
	}
	p.counters.ticks.Add(1)

	next := (p.index + 1) % p.series.Len()
	if !p.series.Loaded(next) {
		// hold here; retry on a short cadence and give up after the
		// skip timeout, logging a missed frame
		p.counters.holds.Add(1)
		p.holdLocked(next, p.clock.Now())
		return
	}

	p.index = next
	p.requestPreloadLocked()
	p.scheduleLocked(p.interval)
}

const holdProbe = 100 * time.Millisecond

func (p *Player) holdLocked(next int, since time.Time) {
	p.dropTickLocked()
	t := &tick{timer: p.clock.Timer(holdProbe)}
	p.ticker = t
	go func() {
		<-t.timer.C
		p.resolveHold(t, next, since)
	}()
}

func (p *Player) resolveHold(t *tick, next int, since time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Playing || p.ticker != t {
		return
	}

	if p.series.Loaded(next) {
		p.index = next
		p.requestPreloadLocked()
		p.scheduleLocked(p.interval)
		return
	}

	if p.clock.Now().Sub(since) >= p.cfg.SkipTimeout {
		// the frame never resolved: skip exactly one index forward
		p.counters.missed.Add(1)
		p.logger.Warn("frame missed, skipping",
			"series", p.series.Key(), "index", next, "held", p.clock.Now().Sub(since).String())
		p.index = next
		p.requestPreloadLocked()
		p.scheduleLocked(p.interval)
		return
	}

	p.holdLocked(next, since)
}

// requestPreloadLocked asks for the current frame plus the lookahead
// window beyond it, wrapping like playback does.
func (p *Player) requestPreloadLocked() {
	if p.preloader == nil {
		return
	}
	var want []int
	for i := 0; i <= p.cfg.Lookahead; i++ {
		idx := (p.index + i) % p.series.Len()
		if !p.series.Loaded(idx) {
			want = append(want, idx)
		}
	}
	if len(want) == 0 {
		return
	}
	go p.preloader.Preload(p.preloadCtx, p.series, want)
}
