package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	aqsync "github.com/skysense/go-aq-sync"
	"github.com/skysense/go-aq-sync/config"
	"github.com/skysense/go-aq-sync/model"
	"github.com/skysense/go-aq-sync/tests/help"
)

// backend is a scripted stand-in for the remote air quality API.
type backend struct {
	srv     *httptest.Server
	current atomic.Int64
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/current-conditions":
			n := b.current.Add(1)
			fmt.Fprintf(w, `{"location":%q,"aqi":%d,"dominant":"pm25","timestamp":%q}`,
				r.URL.Query().Get("location"), n, time.Now().UTC().Format(time.RFC3339Nano))
		case "/forecast/24h":
			_, _ = w.Write(forecastPayload(t, 24))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func forecastPayload(t *testing.T, n int) []byte {
	t.Helper()
	type point struct {
		Timestamp time.Time       `json:"timestamp"`
		Data      json.RawMessage `json:"data"`
	}
	doc := struct {
		Points []point `json:"points"`
	}{}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		doc.Points = append(doc.Points, point{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Data:      json.RawMessage(fmt.Sprintf(`{"aqi":%d}`, 100+i)),
		})
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

// newEngine builds an engine against the scripted backend. Tests that need
// the backend hit only by explicit fetches quiesce the poll loop.
func newEngine(t *testing.T, b *backend, quiet bool) *aqsync.Engine {
	t.Helper()
	cfg := help.Cfg(b.srv.URL)
	if quiet {
		cfg.Transport.PollInterval = time.Hour
	}
	return newEngineCfg(t, cfg)
}

func newEngineCfg(t *testing.T, cfg *config.Config) *aqsync.Engine {
	t.Helper()
	e, err := aqsync.New(context.Background(), cfg, help.Logger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestSubscribeDeliversRemoteData(t *testing.T) {
	e := newEngine(t, newBackend(t), true)

	h, err := e.Subscribe(model.Key(model.KindCurrent, "Delhi"))
	require.NoError(t, err)
	defer h.Close()

	require.Eventually(t, func() bool {
		state := h.State()
		return state.HasData() && state.Err == nil
	}, 3*time.Second, 10*time.Millisecond)

	m, err := h.State().Measurement()
	require.NoError(t, err)
	require.Equal(t, "Delhi", m.Location)
	require.Equal(t, 1, m.AQI)
	require.Equal(t, "pm25", m.Dominant)
}

func TestRefreshBypassesFreshCache(t *testing.T) {
	b := newBackend(t)
	e := newEngine(t, b, true)

	key := model.Key(model.KindCurrent, "Delhi")
	h, err := e.Subscribe(key)
	require.NoError(t, err)
	defer h.Close()

	require.Eventually(t, func() bool { return h.State().HasData() }, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, int64(1), b.current.Load())

	e.Refresh(key)
	require.Eventually(t, func() bool {
		m, err := h.State().Measurement()
		return err == nil && m.AQI == 2
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, int64(2), b.current.Load())
}

func TestResolveServesCacheWithoutRefetch(t *testing.T) {
	b := newBackend(t)
	e := newEngine(t, b, true)

	key := model.Key(model.KindCurrent, "Delhi")
	payload, serr := e.Resolve(context.Background(), key)
	require.Nil(t, serr)
	require.NotEmpty(t, payload)
	calls := b.current.Load()

	// the second resolve is answered from cache
	again, serr := e.Resolve(context.Background(), key)
	require.Nil(t, serr)
	require.Equal(t, payload, again)
	require.Equal(t, calls, b.current.Load())
}

func TestInvalidateForcesRefetch(t *testing.T) {
	b := newBackend(t)
	e := newEngine(t, b, true)

	key := model.Key(model.KindCurrent, "Delhi")
	first, serr := e.Resolve(context.Background(), key)
	require.Nil(t, serr)

	removed := e.Invalidate("current:*")
	require.GreaterOrEqual(t, removed, 1)

	second, serr := e.Resolve(context.Background(), key)
	require.Nil(t, serr)
	require.NotEqual(t, string(first), string(second))
}

func TestForecastPlayback(t *testing.T) {
	e := newEngine(t, newBackend(t), true)

	p, err := e.NewPlayer(context.Background(), "Delhi")
	require.NoError(t, err)
	defer p.Close()
	require.Equal(t, 24, p.Series().Len())
	require.True(t, p.Series().FullyLoaded())

	frame, err := p.Series().Frame(0)
	require.NoError(t, err)
	point, err := frame.Point()
	require.NoError(t, err)
	require.Equal(t, 100, point.AQI)

	p.Start()
	require.Eventually(t, func() bool {
		_, idx := p.State()
		return idx >= 3
	}, 3*time.Second, 5*time.Millisecond)

	p.Pause()
	_, idx := p.State()
	time.Sleep(80 * time.Millisecond)
	_, after := p.State()
	require.Equal(t, idx, after)
}

func TestCacheSurvivesRestart(t *testing.T) {
	b := newBackend(t)
	dir := t.TempDir()
	key := model.Key(model.KindCurrent, "Delhi")

	cfg := help.PersistentCfg(b.srv.URL, dir)
	cfg.Transport.PollInterval = time.Hour
	first := newEngineCfg(t, cfg)

	payload, serr := first.Resolve(context.Background(), key)
	require.Nil(t, serr)
	require.NoError(t, first.Close())

	// a fresh engine over the same directory serves the persisted entry
	// without touching the backend
	cfg = help.PersistentCfg(b.srv.URL, dir)
	cfg.Transport.PollInterval = time.Hour
	second := newEngineCfg(t, cfg)

	again, serr := second.Resolve(context.Background(), key)
	require.Nil(t, serr)
	require.Equal(t, payload, again)
	require.Equal(t, int64(1), b.current.Load())
}

func TestResolveUnknownKindFails(t *testing.T) {
	b := newBackend(t)
	e := newEngine(t, b, true)

	_, serr := e.Resolve(context.Background(), "radar:Delhi")
	require.NotNil(t, serr)
	require.Equal(t, model.ErrFatal, serr.Kind)
}
