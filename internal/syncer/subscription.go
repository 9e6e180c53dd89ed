package syncer

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skysense/go-aq-sync/model"
)

// subscription is the single per-key record behind any number of consumers.
// Consumers are reference-counted by token; the subscription dies when the
// last one closes, but the cache entry it fed stays behind.
type subscription struct {
	key           string
	consumers     map[uuid.UUID]chan model.SyncState
	state         model.SyncState
	mode          model.Mode
	retryCount    int
	lastSuccessAt time.Time
	lastErr       *model.SyncError
}

func newSubscription(key string) *subscription {
	return &subscription{
		key:       key,
		consumers: make(map[uuid.UUID]chan model.SyncState),
		state:     model.SyncState{Key: key},
	}
}

// publish fans the state out to every consumer. A consumer that stopped
// draining loses its oldest buffered state, never the latest.
func (s *subscription) publish(state model.SyncState) {
	s.state = state
	for _, ch := range s.consumers {
		select {
		case ch <- state:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}

// Handle is one consumer's grip on a synchronized resource. Closing it
// drops the reference count; at zero the subscription and its timers are
// torn down.
type Handle struct {
	key     string
	token   uuid.UUID
	o       *Orchestrator
	updates chan model.SyncState
	once    sync.Once
}

func (h *Handle) Key() string { return h.key }

// State returns the current synchronized view.
func (h *Handle) State() model.SyncState {
	return h.o.stateOf(h.key)
}

// Updates streams state changes. The channel is buffered; see publish.
func (h *Handle) Updates() <-chan model.SyncState {
	return h.updates
}

// Close unsubscribes this consumer. Idempotent.
func (h *Handle) Close() {
	h.once.Do(func() {
		h.o.unsubscribe(h.key, h.token)
	})
}
