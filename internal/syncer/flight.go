package syncer

import (
	"context"

	"github.com/skysense/go-aq-sync/internal/fetch"
	"github.com/skysense/go-aq-sync/model"
)

// flight is one in-progress fetch for a key. Concurrent requests for the
// same key attach to the same flight instead of issuing duplicates.
type flight struct {
	done    chan struct{}
	cancel  context.CancelFunc
	payload []byte
	serr    *model.SyncError
}

// startFlight returns the active flight for a key, creating one when none
// exists. The check and the map insert happen under one lock so two
// fetches can never start for the same key between a check and a set.
func (o *Orchestrator) startFlight(key string) *flight {
	o.mu.Lock()
	if f, ok := o.flights[key]; ok {
		o.mu.Unlock()
		o.counters.merged.Add(1)
		return f
	}
	fctx, cancel := context.WithCancel(o.ctx)
	f := &flight{done: make(chan struct{}), cancel: cancel}
	o.flights[key] = f

	if sub, ok := o.subs[key]; ok {
		state := sub.state
		state.IsLoading = true
		sub.publish(state)
	}
	o.mu.Unlock()

	o.counters.fetches.Add(1)
	go o.fly(fctx, key, f)
	return f
}

func (o *Orchestrator) fly(ctx context.Context, key string, f *flight) {
	defer f.cancel()

	req, err := fetch.RequestFor(o.remote, key)
	var payload []byte
	var serr *model.SyncError
	if err != nil {
		serr = model.NewFatal(err)
	} else {
		payload, serr = o.fetcher.Do(ctx, req)
	}

	o.mu.Lock()
	delete(o.flights, key)
	o.mu.Unlock()

	f.payload, f.serr = payload, serr
	close(f.done)

	if ctx.Err() != nil {
		// caller cancelled; a late result is discarded, not applied
		return
	}
	if serr != nil {
		o.applyFailure(key, serr)
		return
	}
	o.applyUpdate(model.Update{
		Key:       key,
		Payload:   payload,
		Timestamp: model.PayloadTimestamp(payload),
		Source:    model.SourceFetch,
	})
}
