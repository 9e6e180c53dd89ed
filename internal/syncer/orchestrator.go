package syncer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/skysense/go-aq-sync/config"
	"github.com/skysense/go-aq-sync/internal/fetch"
	"github.com/skysense/go-aq-sync/internal/store"
	"github.com/skysense/go-aq-sync/internal/transport"
	"github.com/skysense/go-aq-sync/model"
)

// Syncer is the consumer-facing contract of the orchestrator.
type Syncer interface {
	Subscribe(key string) (*Handle, error)
	Refresh(key string)
	Resolve(ctx context.Context, key string) ([]byte, *model.SyncError)
	ForecastSeries(ctx context.Context, location string) (*model.FrameSeries, error)
	SyncMetrics() (fetches, merged, refreshes, applied, failures int64)
	Close() error
}

// Orchestrator owns the authoritative view of every subscribed resource.
// It merges cache, fetch and push results into one SyncState per key,
// deduplicates concurrent fetches (single-flight) and re-synchronizes all
// active keys on a fixed cadence so a silent push channel cannot starve
// consumers.
type Orchestrator struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg      *config.SyncCfg
	remote   config.RemoteCfg
	store    store.Storer
	selector transport.Selecting
	fetcher  fetch.Fetcher
	clock    clock.Clock
	logger   *slog.Logger

	mu      sync.Mutex
	subs    map[string]*subscription
	flights map[string]*flight

	counters *syncCounters
}

func New(
	ctx context.Context,
	cfg *config.SyncCfg,
	remote config.RemoteCfg,
	st store.Storer,
	selector transport.Selecting,
	fetcher fetch.Fetcher,
	clk clock.Clock,
	logger *slog.Logger,
) *Orchestrator {
	ctx, cancel := context.WithCancel(ctx)
	o := &Orchestrator{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		remote:   remote,
		store:    st,
		selector: selector,
		fetcher:  fetcher,
		clock:    clk,
		logger:   logger,
		subs:     make(map[string]*subscription),
		flights:  make(map[string]*flight),
		counters: newSyncCounters(),
	}
	go o.run()
	return o
}

// Subscribe registers a consumer for a key, creating the per-key
// subscription on first use. The initial state follows
// stale-while-revalidate: a fresh cache hit is returned as-is, a stale one
// is served immediately with a refresh in flight, a miss starts loading.
func (o *Orchestrator) Subscribe(key string) (*Handle, error) {
	if key == "" {
		return nil, model.ErrEmptyKey
	}

	o.mu.Lock()
	sub, exists := o.subs[key]
	if !exists {
		sub = newSubscription(key)
		o.subs[key] = sub
	}
	token := uuid.New()
	ch := make(chan model.SyncState, o.cfg.UpdateBuffer)
	sub.consumers[token] = ch
	o.mu.Unlock()

	if !exists {
		o.selector.Track(key)
	}

	entry, ok := o.store.Get(key)
	stale := !ok || entry.IsStaleAt(o.clock.Now())

	o.mu.Lock()
	state := model.SyncState{Key: key}
	if ok {
		state.Data = entry.Payload
		state.IsStale = stale
		state.UpdatedAt = entry.StoredAt
	}
	state.IsLoading = stale
	sub.mode = o.selector.Mode()
	sub.publish(state)
	o.mu.Unlock()

	if stale {
		o.startFlight(key)
	}

	return &Handle{key: key, token: token, o: o, updates: ch}, nil
}

func (o *Orchestrator) unsubscribe(key string, token uuid.UUID) {
	o.mu.Lock()
	sub, ok := o.subs[key]
	if !ok {
		o.mu.Unlock()
		return
	}
	delete(sub.consumers, token)
	last := len(sub.consumers) == 0
	var f *flight
	if last {
		delete(o.subs, key)
		f = o.flights[key]
	}
	o.mu.Unlock()

	if last {
		// pending fetch for the key is cancelled; the cache entry stays
		if f != nil {
			f.cancel()
		}
		o.selector.Untrack(key)
	}
}

// Refresh drops the cached entry for exactly this key and re-fetches it.
func (o *Orchestrator) Refresh(key string) {
	o.counters.refreshes.Add(1)
	o.store.Delete(key)
	o.startFlight(key)
}

func (o *Orchestrator) stateOf(key string) model.SyncState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if sub, ok := o.subs[key]; ok {
		return sub.state
	}
	return model.SyncState{Key: key}
}

// Resolve returns a fresh payload for a key, serving cache when possible
// and attaching to any in-flight fetch otherwise.
func (o *Orchestrator) Resolve(ctx context.Context, key string) ([]byte, *model.SyncError) {
	if entry, ok := o.store.Get(key); ok && !entry.IsStaleAt(o.clock.Now()) {
		return entry.Payload, nil
	}

	f := o.startFlight(key)
	select {
	case <-ctx.Done():
		return nil, model.NewOffline(ctx.Err())
	case <-f.done:
	}
	if f.serr != nil {
		// degraded-but-present beats absent
		if entry, ok := o.store.Get(key); ok {
			return entry.Payload, f.serr
		}
		if snap, ok := o.store.GetOfflineSnapshot(key); ok {
			return snap.Payload, f.serr
		}
		return nil, f.serr
	}
	return f.payload, nil
}

// ForecastSeries resolves the 24h forecast for a location into a frame
// series ready for playback.
func (o *Orchestrator) ForecastSeries(ctx context.Context, location string) (*model.FrameSeries, error) {
	key := model.Key(model.KindForecast, location)
	payload, serr := o.Resolve(ctx, key)
	if payload == nil && serr != nil {
		return nil, serr
	}
	return model.ParseFrameSeries(key, payload)
}

func (o *Orchestrator) run() {
	refresh := o.clock.Ticker(o.cfg.AutoRefresh)
	defer refresh.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return

		case u, ok := <-o.selector.Updates():
			if !ok {
				return
			}
			o.applyUpdate(u)

		case <-refresh.C:
			// periodic re-sync of every active key regardless of
			// transport mode
			o.mu.Lock()
			keys := make([]string, 0, len(o.subs))
			for key := range o.subs {
				keys = append(keys, key)
			}
			o.mu.Unlock()
			for _, key := range keys {
				o.Refresh(key)
			}
		}
	}
}

// applyUpdate folds a transport update into cache and subscriber state.
func (o *Orchestrator) applyUpdate(u model.Update) {
	o.store.Set(u.Key, u.Payload)
	if err := o.store.SetOfflineSnapshot(u.Key, u.Payload); err != nil {
		o.logger.Warn("snapshot write failed", "key", u.Key, "err", err)
	}
	o.counters.applied.Add(1)

	o.mu.Lock()
	defer o.mu.Unlock()
	sub, ok := o.subs[u.Key]
	if !ok {
		return
	}
	sub.retryCount = 0
	sub.lastErr = nil
	sub.lastSuccessAt = o.clock.Now()
	sub.mode = o.selector.Mode()
	sub.publish(model.SyncState{
		Key:       u.Key,
		Data:      u.Payload,
		UpdatedAt: o.clock.Now(),
	})
}

func (o *Orchestrator) applyFailure(key string, serr *model.SyncError) {
	o.counters.failures.Add(1)

	var data []byte
	var updatedAt = o.clock.Now()
	if entry, ok := o.store.Get(key); ok {
		data = entry.Payload
		updatedAt = entry.StoredAt
	} else if serr.Kind == model.ErrOffline {
		if snap, ok := o.store.GetOfflineSnapshot(key); ok {
			data = snap.Payload
			updatedAt = snap.StoredAt
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	sub, ok := o.subs[key]
	if !ok {
		return
	}
	sub.retryCount++
	sub.lastErr = serr
	sub.mode = o.selector.Mode()
	// any cached value, however stale, is surfaced alongside the error
	sub.publish(model.SyncState{
		Key:       key,
		Data:      data,
		IsStale:   len(data) > 0,
		Err:       serr,
		UpdatedAt: updatedAt,
	})
}

func (o *Orchestrator) SyncMetrics() (fetches, merged, refreshes, applied, failures int64) {
	return o.counters.snapshot()
}

func (o *Orchestrator) Close() error {
	o.cancel()
	return nil
}
