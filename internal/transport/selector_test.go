package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/skysense/go-aq-sync/config"
	"github.com/skysense/go-aq-sync/internal/fetch"
	"github.com/skysense/go-aq-sync/internal/push"
	"github.com/skysense/go-aq-sync/model"
)

type stubConn struct {
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once
}

func newStubConn(frames ...string) *stubConn {
	c := &stubConn{
		inbox:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
	for _, f := range frames {
		c.inbox <- []byte(f)
	}
	return c
}

func (c *stubConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *stubConn) WriteJSON(any) error { return nil }

func (c *stubConn) SetReadDeadline(time.Time) error { return nil }

func (c *stubConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type stubDialer struct {
	mu       sync.Mutex
	failures int // dials to reject before serving conns
	conns    []*stubConn
	dials    int
}

func (d *stubDialer) DialContext(context.Context, string, http.Header) (push.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("connection refused")
	}
	if len(d.conns) == 0 {
		return nil, errors.New("no more connections")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, req fetch.Request) ([]byte, *model.SyncError)
}

func (f *stubFetcher) Do(_ context.Context, req fetch.Request) ([]byte, *model.SyncError) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, req)
}

func (f *stubFetcher) FetchMetrics() (attempts, retries, rateLimited, failures int64) {
	return 0, 0, 0, 0
}

// payloadAt stamps each call with a strictly increasing timestamp so the
// last-write-wins tie-break never drops it.
func payloadAt(call int) []byte {
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(call) * time.Second)
	return []byte(fmt.Sprintf(`{"value":%d,"timestamp":%q}`, call, ts.Format(time.RFC3339)))
}

func transportCfg() *config.TransportCfg {
	return &config.TransportCfg{
		PollInterval: 20 * time.Millisecond,
		PollRate:     1000,
	}
}

func pushCfg() *config.PushCfg {
	return &config.PushCfg{
		HandshakeTimeout: 200 * time.Millisecond,
		RetryEvery:       15 * time.Millisecond,
		RetryCap:         3,
	}
}

func remoteCfg() config.RemoteCfg {
	return config.RemoteCfg{
		BaseURL: "https://api.example.org/v1",
		PushURL: "wss://api.example.org/v1/stream",
	}
}

func newSelector(t *testing.T, channel *push.Channel, fetcher fetch.Fetcher) *Selector {
	t.Helper()
	s := New(context.Background(), transportCfg(), pushCfg(), remoteCfg(), channel, fetcher, clock.New(), slog.Default())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNoPushChannelDegradesToPolling(t *testing.T) {
	fetcher := &stubFetcher{fn: func(call int, _ fetch.Request) ([]byte, *model.SyncError) {
		return payloadAt(call), nil
	}}
	s := newSelector(t, nil, fetcher)
	s.Track("current:Delhi")

	require.Eventually(t, func() bool { return s.State() == StateDegraded }, time.Second, 5*time.Millisecond)
	require.Equal(t, model.ModePoll, s.Mode())

	select {
	case u := <-s.Updates():
		require.Equal(t, "current:Delhi", u.Key)
		require.Equal(t, model.SourcePoll, u.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("poll round never delivered")
	}
}

func TestPushHandshakeConnects(t *testing.T) {
	conn := newStubConn(`{"type":"ready"}`)
	dialer := &stubDialer{conns: []*stubConn{conn}}
	channel := push.NewChannel(pushCfg(), remoteCfg(), dialer, slog.Default())
	fetcher := &stubFetcher{fn: func(call int, _ fetch.Request) ([]byte, *model.SyncError) {
		return payloadAt(call), nil
	}}

	s := newSelector(t, channel, fetcher)
	require.Eventually(t, func() bool { return s.State() == StateConnected }, time.Second, 5*time.Millisecond)
	require.Equal(t, model.ModePush, s.Mode())

	s.Track("current:Delhi")
	conn.inbox <- []byte(`{"type":"update","resourceKey":"current:Delhi","payload":{"value":7},"timestamp":"2026-03-01T12:00:00Z"}`)

	select {
	case u := <-s.Updates():
		require.Equal(t, "current:Delhi", u.Key)
		require.Equal(t, model.SourcePush, u.Source)
		require.JSONEq(t, `{"value":7}`, string(u.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("push update never delivered")
	}
}

func TestHandshakeFailureFallsBackToPolling(t *testing.T) {
	dialer := &stubDialer{failures: 1000}
	channel := push.NewChannel(pushCfg(), remoteCfg(), dialer, slog.Default())
	fetcher := &stubFetcher{fn: func(call int, _ fetch.Request) ([]byte, *model.SyncError) {
		return payloadAt(call), nil
	}}

	s := newSelector(t, channel, fetcher)
	s.Track("current:Delhi")

	require.Eventually(t, func() bool { return s.State() == StateDegraded }, time.Second, 5*time.Millisecond)
	select {
	case u := <-s.Updates():
		require.Equal(t, model.SourcePoll, u.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("degraded polling never delivered")
	}
}

func TestPushRetryCapAbandonsPush(t *testing.T) {
	dialer := &stubDialer{failures: 1000}
	channel := push.NewChannel(pushCfg(), remoteCfg(), dialer, slog.Default())
	fetcher := &stubFetcher{fn: func(call int, _ fetch.Request) ([]byte, *model.SyncError) {
		return payloadAt(call), nil
	}}

	s := newSelector(t, channel, fetcher)
	require.Eventually(t, func() bool {
		_, _, pushRetries, _, _ := s.TransportMetrics()
		return pushRetries == int64(pushCfg().RetryCap)
	}, 2*time.Second, 5*time.Millisecond)

	// retries stop at the cap for the rest of the session
	time.Sleep(100 * time.Millisecond)
	_, _, pushRetries, _, _ := s.TransportMetrics()
	require.Equal(t, int64(pushCfg().RetryCap), pushRetries)
	require.Equal(t, StateDegraded, s.State())
}

func TestPushRestoredAfterRetry(t *testing.T) {
	conn := newStubConn(`{"type":"ready"}`)
	dialer := &stubDialer{failures: 2, conns: []*stubConn{conn}}
	channel := push.NewChannel(pushCfg(), remoteCfg(), dialer, slog.Default())
	fetcher := &stubFetcher{fn: func(call int, _ fetch.Request) ([]byte, *model.SyncError) {
		return payloadAt(call), nil
	}}

	s := newSelector(t, channel, fetcher)
	require.Eventually(t, func() bool { return s.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)
}

func TestDisconnectDegradesAndPollingResumes(t *testing.T) {
	conn := newStubConn(`{"type":"ready"}`)
	dialer := &stubDialer{failures: 0, conns: []*stubConn{conn}}
	channel := push.NewChannel(pushCfg(), remoteCfg(), dialer, slog.Default())
	fetcher := &stubFetcher{fn: func(call int, _ fetch.Request) ([]byte, *model.SyncError) {
		return payloadAt(call), nil
	}}

	s := newSelector(t, channel, fetcher)
	require.Eventually(t, func() bool { return s.State() == StateConnected }, time.Second, 5*time.Millisecond)

	s.Track("current:Delhi")
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return s.State() == StateDegraded }, time.Second, 5*time.Millisecond)
	select {
	case u := <-s.Updates():
		require.Equal(t, model.SourcePoll, u.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("no poll delivery after disconnect")
	}
}

func TestLastWriteWinsDropsStaleUpdates(t *testing.T) {
	// every call reports the same payload timestamp; only the first
	// delivery survives the tie-break
	fixed := payloadAt(1)
	fetcher := &stubFetcher{fn: func(int, fetch.Request) ([]byte, *model.SyncError) {
		return fixed, nil
	}}

	s := newSelector(t, nil, fetcher)
	s.Track("current:Delhi")

	require.Eventually(t, func() bool {
		_, _, _, _, droppedLWW := s.TransportMetrics()
		return droppedLWW >= 1
	}, 2*time.Second, 5*time.Millisecond)

	_, _, _, delivered, _ := s.TransportMetrics()
	require.Equal(t, int64(1), delivered)
}

func TestUntimestampedUpdatesFollowArrivalOrder(t *testing.T) {
	// no timestamp in any payload: deliveries keep flowing in arrival
	// order instead of pinning the key to its first result
	fetcher := &stubFetcher{fn: func(call int, _ fetch.Request) ([]byte, *model.SyncError) {
		return []byte(fmt.Sprintf(`{"value":%d}`, call)), nil
	}}
	s := newSelector(t, nil, fetcher)
	s.Track("current:Delhi")

	require.Eventually(t, func() bool {
		_, _, _, delivered, _ := s.TransportMetrics()
		return delivered >= 2
	}, 2*time.Second, 5*time.Millisecond)

	// a timestamped result still beats a later untimestamped one
	_, _, _, _, droppedBefore := s.TransportMetrics()
	s.deliver(model.Update{Key: "current:Mumbai", Payload: payloadAt(1), Timestamp: time.Unix(100, 0), Source: model.SourcePoll})
	s.deliver(model.Update{Key: "current:Mumbai", Payload: []byte(`{"value":9}`), Source: model.SourcePoll})
	_, _, _, _, droppedAfter := s.TransportMetrics()
	require.Equal(t, droppedBefore+1, droppedAfter)
}

func TestOfflinePausesPolling(t *testing.T) {
	fetcher := &stubFetcher{fn: func(call int, _ fetch.Request) ([]byte, *model.SyncError) {
		return payloadAt(call), nil
	}}
	s := newSelector(t, nil, fetcher)
	s.Track("current:Delhi")

	require.Eventually(t, func() bool {
		_, _, _, delivered, _ := s.TransportMetrics()
		return delivered >= 1
	}, 2*time.Second, 5*time.Millisecond)

	s.SetOnline(false)
	require.Eventually(t, func() bool { return s.State() == StateOffline }, time.Second, 5*time.Millisecond)
	require.Equal(t, model.ModeOffline, s.Mode())

	// give in-flight rounds a moment to drain, then confirm no new rounds
	time.Sleep(60 * time.Millisecond)
	_, rounds, _, _, _ := s.TransportMetrics()
	time.Sleep(80 * time.Millisecond)
	_, roundsAfter, _, _, _ := s.TransportMetrics()
	require.Equal(t, rounds, roundsAfter)

	s.SetOnline(true)
	require.Eventually(t, func() bool { return s.State() == StateDegraded }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, r, _, _, _ := s.TransportMetrics()
		return r > roundsAfter
	}, 2*time.Second, 5*time.Millisecond)
}
