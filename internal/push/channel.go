package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skysense/go-aq-sync/config"
	"github.com/skysense/go-aq-sync/internal/shared/queue"
	"github.com/skysense/go-aq-sync/model"
)

const pendingUpdates = 256

// Channel wraps one bidirectional connection to the push endpoint. It
// tracks subscribed resource keys so a reconnect transparently restores
// them, buffers inbound updates in a bounded ring, and reports disconnects
// to the transport selector.
type Channel struct {
	cfg    *config.PushCfg
	remote config.RemoteCfg
	dialer Dialer
	logger *slog.Logger

	mu   sync.Mutex
	conn Conn
	subs map[string]struct{}

	pending     *queue.Ring[model.Update]
	notify      chan struct{}
	disconnects chan error

	counters *pushCounters
}

func NewChannel(cfg *config.PushCfg, remote config.RemoteCfg, dialer Dialer, logger *slog.Logger) *Channel {
	return &Channel{
		cfg:         cfg,
		remote:      remote,
		dialer:      dialer,
		logger:      logger,
		subs:        make(map[string]struct{}),
		pending:     queue.NewRing[model.Update](pendingUpdates),
		notify:      make(chan struct{}, 1),
		disconnects: make(chan error, 1),
		counters:    newPushCounters(),
	}
}

// Connect performs the handshake: dial, then await the server ready frame,
// all within the configured handshake timeout. On success previously
// subscribed keys are re-announced and the read loop starts.
func (c *Channel) Connect(ctx context.Context) error {
	hsCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	header := make(map[string][]string)
	if c.remote.AuthToken != "" {
		header["Authorization"] = []string{"Bearer " + c.remote.AuthToken}
	}

	conn, err := c.dialer.DialContext(hsCtx, c.remote.PushURL, header)
	if err != nil {
		return fmt.Errorf("push dial: %w", err)
	}

	if err = conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("push handshake deadline: %w", err)
	}
	data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("push handshake read: %w", err)
	}
	var frame serverFrame
	if err = json.Unmarshal(data, &frame); err != nil || frame.Type != frameReady {
		_ = conn.Close()
		return fmt.Errorf("push handshake: unexpected first frame %q", string(data))
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.conn = conn
	resubscribe := make([]string, 0, len(c.subs))
	for key := range c.subs {
		resubscribe = append(resubscribe, key)
	}
	c.mu.Unlock()

	for _, key := range resubscribe {
		if err = conn.WriteJSON(clientFrame{Action: actionSubscribe, ResourceKey: key}); err != nil {
			_ = conn.Close()
			return fmt.Errorf("push resubscribe %s: %w", key, err)
		}
	}

	c.counters.connects.Add(1)
	go c.readLoop(conn)
	return nil
}

// Subscribe announces interest in a key. The key stays tracked across
// reconnects until Unsubscribe.
func (c *Channel) Subscribe(key string) error {
	c.mu.Lock()
	c.subs[key] = struct{}{}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil // announced on next Connect
	}
	return conn.WriteJSON(clientFrame{Action: actionSubscribe, ResourceKey: key})
}

func (c *Channel) Unsubscribe(key string) error {
	c.mu.Lock()
	delete(c.subs, key)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.WriteJSON(clientFrame{Action: actionUnsubscribe, ResourceKey: key})
}

// Next pops one buffered update.
func (c *Channel) Next() (model.Update, bool) {
	return c.pending.TryPop()
}

// Notify signals buffered updates; the channel is coalescing (cap 1).
func (c *Channel) Notify() <-chan struct{} { return c.notify }

// Disconnects delivers read-loop failures exactly once per connection.
func (c *Channel) Disconnects() <-chan error { return c.disconnects }

func (c *Channel) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			c.counters.disconnects.Add(1)
			select {
			case c.disconnects <- err:
			default:
			}
			return
		}

		var frame serverFrame
		if err = json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("push frame decode failed", "err", err)
			continue
		}
		if frame.Type != frameUpdate || frame.ResourceKey == "" {
			continue
		}

		c.counters.updates.Add(1)
		if c.pending.PushDropOldest(model.Update{
			Key:       frame.ResourceKey,
			Payload:   frame.Payload,
			Timestamp: frame.Timestamp,
			Source:    model.SourcePush,
		}) {
			c.counters.dropped.Add(1)
		}
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
}

func (c *Channel) PushMetrics() (connects, disconnects, updates, dropped int64) {
	return c.counters.snapshot()
}

func (c *Channel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
