package transport

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/skysense/go-aq-sync/config"
	"github.com/skysense/go-aq-sync/internal/fetch"
	"github.com/skysense/go-aq-sync/internal/push"
	"github.com/skysense/go-aq-sync/internal/shared/rate"
	"github.com/skysense/go-aq-sync/model"
)

// State is the transport selector's connectivity state.
type State int32

const (
	StateConnecting State = iota
	StateConnected        // push channel live
	StateDegraded         // polling
	StateOffline          // no connectivity, timers paused
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateOffline:
		return "offline"
	}
	return "unknown"
}

// Selecting is the contract the orchestrator depends on.
type Selecting interface {
	Track(key string)
	Untrack(key string)
	Updates() <-chan model.Update
	Mode() model.Mode
	State() State
	SetOnline(online bool)
	TransportMetrics() (stateChanges, pollRounds, pushRetries, delivered, droppedLWW int64)
	Close() error
}

// Selector decides, per session, whether updates arrive over the push
// channel or via periodic polls. Push is preferred; polling is the
// fallback, with background handshake retries up to a session cap. When the
// host reports no connectivity every timer pauses until restore.
//
// Conflicting updates for one key are resolved last-write-wins on the
// payload timestamp, not on arrival order.
type Selector struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg     *config.TransportCfg
	pushCfg *config.PushCfg
	remote  config.RemoteCfg

	channel *push.Channel // nil when the environment is not push-capable
	fetcher fetch.Fetcher
	clock   clock.Clock
	logger  *slog.Logger
	jitter  *rate.Jitter

	state atomic.Int32

	mu          sync.Mutex
	tracked     map[string]struct{}
	lastTS      map[string]time.Time
	pushRetries int
	pushGivenUp bool
	online      bool

	onlineCh chan bool
	updates  chan model.Update
	counters *transportCounters
}

func New(
	ctx context.Context,
	cfg *config.TransportCfg,
	pushCfg *config.PushCfg,
	remote config.RemoteCfg,
	channel *push.Channel,
	fetcher fetch.Fetcher,
	clk clock.Clock,
	logger *slog.Logger,
) *Selector {
	ctx, cancel := context.WithCancel(ctx)
	s := &Selector{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		pushCfg:  pushCfg,
		remote:   remote,
		channel:  channel,
		fetcher:  fetcher,
		clock:    clk,
		logger:   logger,
		jitter:   rate.NewJitter(ctx, cfg.PollRate),
		tracked:  make(map[string]struct{}),
		lastTS:   make(map[string]time.Time),
		online:   true,
		onlineCh: make(chan bool, 1),
		updates:  make(chan model.Update, 256),
		counters: newTransportCounters(),
	}
	s.state.Store(int32(StateConnecting))
	go s.run()
	return s
}

func (s *Selector) State() State { return State(s.state.Load()) }

func (s *Selector) Mode() model.Mode {
	switch s.State() {
	case StateConnected:
		return model.ModePush
	case StateOffline:
		return model.ModeOffline
	default:
		return model.ModePoll
	}
}

func (s *Selector) Updates() <-chan model.Update { return s.updates }

// Track adds a key to the live-update set. In push mode the subscription
// is announced immediately; in poll mode the key joins the next round.
func (s *Selector) Track(key string) {
	s.mu.Lock()
	s.tracked[key] = struct{}{}
	s.mu.Unlock()

	if s.channel != nil {
		if err := s.channel.Subscribe(key); err != nil {
			s.logger.Warn("push subscribe failed", "key", key, "err", err)
		}
	}
}

func (s *Selector) Untrack(key string) {
	s.mu.Lock()
	delete(s.tracked, key)
	delete(s.lastTS, key)
	s.mu.Unlock()

	if s.channel != nil {
		if err := s.channel.Unsubscribe(key); err != nil {
			s.logger.Warn("push unsubscribe failed", "key", key, "err", err)
		}
	}
}

// SetOnline is the host environment's connectivity signal.
func (s *Selector) SetOnline(online bool) {
	select {
	case s.onlineCh <- online:
	case <-s.ctx.Done():
	}
}

func (s *Selector) Close() error {
	s.cancel()
	if s.channel != nil {
		return s.channel.Close()
	}
	return nil
}

func (s *Selector) TransportMetrics() (stateChanges, pollRounds, pushRetries, delivered, droppedLWW int64) {
	return s.counters.snapshot()
}

func (s *Selector) setState(st State) {
	if s.state.Swap(int32(st)) != int32(st) {
		s.counters.stateChanges.Add(1)
		s.logger.Info("transport state", "state", st.String())
	}
}

func (s *Selector) run() {
	s.connect()

	pollTicker := s.clock.Ticker(s.cfg.PollInterval)
	defer pollTicker.Stop()

	var retryC <-chan time.Time
	var notifyC <-chan struct{}
	var disconnectC <-chan error
	if s.channel != nil {
		retryTicker := s.clock.Ticker(s.pushCfg.RetryEvery)
		defer retryTicker.Stop()
		retryC = retryTicker.C
		notifyC = s.channel.Notify()
		disconnectC = s.channel.Disconnects()
	}

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-pollTicker.C:
			if s.State() == StateDegraded {
				s.pollRound()
			}

		case <-retryC:
			s.retryPush()

		case <-notifyC:
			for {
				u, ok := s.channel.Next()
				if !ok {
					break
				}
				s.deliver(u)
			}

		case err := <-disconnectC:
			if s.State() == StateConnected {
				s.logger.Warn("push channel disconnected", "err", err)
				s.setState(StateDegraded)
				s.pollRound()
			}

		case online := <-s.onlineCh:
			s.mu.Lock()
			s.online = online
			s.mu.Unlock()
			if !online {
				s.setState(StateOffline)
			} else if s.State() == StateOffline {
				// resume from scratch, as if the session just started
				s.setState(StateConnecting)
				s.connect()
			}
		}
	}
}

// connect runs the initial transition: push handshake when the environment
// is push-capable and the session has not given up on push, else degraded
// polling right away.
func (s *Selector) connect() {
	s.mu.Lock()
	givenUp := s.pushGivenUp
	s.mu.Unlock()

	if s.channel == nil || givenUp {
		s.setState(StateDegraded)
		s.pollRound()
		return
	}

	s.setState(StateConnecting)
	if err := s.channel.Connect(s.ctx); err != nil {
		s.logger.Warn("push handshake failed, degrading to poll", "err", err)
		s.setState(StateDegraded)
		s.pollRound()
		return
	}
	s.setState(StateConnected)
}

// retryPush attempts to restore the push channel while degraded. After the
// session cap, push is abandoned until restart.
func (s *Selector) retryPush() {
	if s.channel == nil || s.State() != StateDegraded {
		return
	}
	s.mu.Lock()
	if s.pushGivenUp || !s.online {
		s.mu.Unlock()
		return
	}
	s.pushRetries++
	retries := s.pushRetries
	if retries >= s.pushCfg.RetryCap {
		s.pushGivenUp = true
	}
	s.mu.Unlock()

	s.counters.pushRetries.Add(1)
	if err := s.channel.Connect(s.ctx); err != nil {
		s.logger.Debug("push retry failed", "attempt", retries, "err", err)
		if retries >= s.pushCfg.RetryCap {
			s.logger.Warn("push abandoned for this session", "retries", retries)
		}
		return
	}
	// polling stops; in-flight poll results still deliver but do not
	// re-trigger further rounds
	s.setState(StateConnected)
}

// pollRound fetches every tracked key once, paced by the jitter limiter.
// The round runs detached so a slow backend never blocks the state machine.
func (s *Selector) pollRound() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.tracked))
	for key := range s.tracked {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	if len(keys) == 0 {
		return
	}
	s.counters.pollRounds.Add(1)

	go func() {
		for _, key := range keys {
			if s.ctx.Err() != nil {
				return
			}
			s.jitter.Take()

			req, err := fetch.RequestFor(s.remote, key)
			if err != nil {
				s.logger.Warn("poll request build failed", "key", key, "err", err)
				continue
			}
			body, serr := s.fetcher.Do(s.ctx, req)
			if serr != nil {
				s.logger.Warn("poll fetch failed", "key", key, "kind", serr.Kind.String(), "err", serr)
				continue
			}
			s.deliver(model.Update{
				Key:       key,
				Payload:   body,
				Timestamp: model.PayloadTimestamp(body),
				Source:    model.SourcePoll,
			})
		}
	}()
}

// deliver applies the last-write-wins tie-break and forwards the update.
// Keys whose payloads carry no timestamp at all fall back to arrival
// order; the tie-break only arbitrates genuinely timestamped conflicts.
func (s *Selector) deliver(u model.Update) {
	s.mu.Lock()
	last, seen := s.lastTS[u.Key]
	if seen && !u.Timestamp.After(last) && !(u.Timestamp.IsZero() && last.IsZero()) {
		s.mu.Unlock()
		s.counters.droppedLWW.Add(1)
		return
	}
	s.lastTS[u.Key] = u.Timestamp
	s.mu.Unlock()

	select {
	case s.updates <- u:
		s.counters.delivered.Add(1)
	default:
		s.logger.Warn("update queue full, dropping", "key", u.Key)
	}
}
