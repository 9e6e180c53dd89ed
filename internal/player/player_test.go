package player

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/skysense/go-aq-sync/config"
	"github.com/skysense/go-aq-sync/model"
)

type recordingPreloader struct {
	mu       sync.Mutex
	requests [][]int
}

func (r *recordingPreloader) Preload(_ context.Context, _ *model.FrameSeries, indices []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, append([]int(nil), indices...))
}

func (r *recordingPreloader) snapshot() [][]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]int(nil), r.requests...)
}

func playerCfg() *config.PlayerCfg {
	return &config.PlayerCfg{
		FrameInterval: 20 * time.Millisecond,
		Lookahead:     3,
		SkipTimeout:   60 * time.Millisecond,
	}
}

func testSeries(t *testing.T, n int, loaded ...int) *model.FrameSeries {
	t.Helper()
	s := model.NewFrameSeries("forecast24h:Delhi", n, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	for _, i := range loaded {
		require.NoError(t, s.Fill(i, json.RawMessage(fmt.Sprintf(`{"aqi":%d}`, 100+i))))
	}
	return s
}

func fullSeries(t *testing.T, n int) *model.FrameSeries {
	t.Helper()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return testSeries(t, n, indices...)
}

func newTestPlayer(t *testing.T, cfg *config.PlayerCfg, series *model.FrameSeries, pre Preloader) *Player {
	t.Helper()
	p := New(cfg, series, pre, clock.New(), slog.Default())
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func waitForIndex(t *testing.T, p *Player, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, idx := p.State()
		return idx == want
	}, 2*time.Second, 2*time.Millisecond)
}

func TestStartAdvancesAndWraps(t *testing.T) {
	p := newTestPlayer(t, playerCfg(), fullSeries(t, 3), nil)

	state, idx := p.State()
	require.Equal(t, Stopped, state)
	require.Equal(t, 0, idx)

	p.Start()
	state, _ = p.State()
	require.Equal(t, Playing, state)

	waitForIndex(t, p, 2)
	// past the last index playback wraps to zero
	waitForIndex(t, p, 0)

	ticks, _, missed := p.PlayerMetrics()
	require.GreaterOrEqual(t, ticks, int64(3))
	require.Equal(t, int64(0), missed)
}

func TestPauseFreezesIndex(t *testing.T) {
	p := newTestPlayer(t, playerCfg(), fullSeries(t, 10), nil)
	p.Start()
	waitForIndex(t, p, 2)

	p.Pause()
	state, idx := p.State()
	require.Equal(t, Paused, state)

	time.Sleep(100 * time.Millisecond)
	_, after := p.State()
	require.Equal(t, idx, after)

	p.Resume()
	waitForIndex(t, p, (idx+1)%10)
}

func TestPauseWhenNotPlayingIsNoOp(t *testing.T) {
	p := newTestPlayer(t, playerCfg(), fullSeries(t, 3), nil)
	p.Pause()
	state, _ := p.State()
	require.Equal(t, Stopped, state)

	p.Resume() // resume without pause is also a no-op
	state, _ = p.State()
	require.Equal(t, Stopped, state)
}

func TestResetReturnsToStart(t *testing.T) {
	p := newTestPlayer(t, playerCfg(), fullSeries(t, 10), nil)
	p.Start()
	waitForIndex(t, p, 3)

	p.Reset()
	state, idx := p.State()
	require.Equal(t, Stopped, state)
	require.Equal(t, 0, idx)

	time.Sleep(60 * time.Millisecond)
	_, idx = p.State()
	require.Equal(t, 0, idx)
}

func TestSeekValidation(t *testing.T) {
	p := newTestPlayer(t, playerCfg(), fullSeries(t, 24), nil)

	require.Error(t, p.Seek(-1))
	require.Error(t, p.Seek(24))

	require.NoError(t, p.Seek(7))
	_, idx := p.State()
	require.Equal(t, 7, idx)
}

func TestSetSpeed(t *testing.T) {
	p := newTestPlayer(t, playerCfg(), fullSeries(t, 10), nil)
	require.Error(t, p.SetSpeed(0))
	require.Error(t, p.SetSpeed(-time.Second))

	require.NoError(t, p.SetSpeed(5*time.Millisecond))
	p.Start()
	waitForIndex(t, p, 5)
}

func TestHoldUntilFrameLoads(t *testing.T) {
	cfg := playerCfg()
	cfg.SkipTimeout = time.Second
	series := testSeries(t, 3, 0, 2) // frame 1 arrives late
	p := newTestPlayer(t, cfg, series, nil)

	p.Start()
	require.Eventually(t, func() bool {
		_, holds, _ := p.PlayerMetrics()
		return holds >= 1
	}, 2*time.Second, 2*time.Millisecond)

	_, idx := p.State()
	require.Equal(t, 0, idx)

	require.NoError(t, series.Fill(1, json.RawMessage(`{"aqi":101}`)))
	waitForIndex(t, p, 1)

	_, _, missed := p.PlayerMetrics()
	require.Equal(t, int64(0), missed)
}

func TestSkipAfterHoldTimeout(t *testing.T) {
	series := testSeries(t, 3, 0, 2) // frame 1 never loads
	p := newTestPlayer(t, playerCfg(), series, nil)

	p.Start()
	require.Eventually(t, func() bool {
		_, _, missed := p.PlayerMetrics()
		return missed >= 1
	}, 2*time.Second, 2*time.Millisecond)

	// exactly one index was skipped; playback continues past it
	waitForIndex(t, p, 2)
}

func TestPreloadWindowWraps(t *testing.T) {
	pre := &recordingPreloader{}
	p := newTestPlayer(t, playerCfg(), testSeries(t, 24), pre)

	require.NoError(t, p.Seek(22))
	require.Eventually(t, func() bool {
		return len(pre.snapshot()) >= 1
	}, time.Second, 2*time.Millisecond)
	require.Equal(t, []int{22, 23, 0, 1}, pre.snapshot()[0])
}

func TestPreloadSkipsLoadedFrames(t *testing.T) {
	pre := &recordingPreloader{}
	p := newTestPlayer(t, playerCfg(), testSeries(t, 24, 0, 2), pre)

	require.NoError(t, p.Seek(0))
	require.Eventually(t, func() bool {
		return len(pre.snapshot()) >= 1
	}, time.Second, 2*time.Millisecond)
	require.Equal(t, []int{1, 3}, pre.snapshot()[0])
}

func TestSwitchSeriesResetsPosition(t *testing.T) {
	p := newTestPlayer(t, playerCfg(), fullSeries(t, 10), nil)
	p.Start()
	waitForIndex(t, p, 3)

	p.SwitchSeries(fullSeries(t, 5))
	state, _ := p.State()
	require.Equal(t, Playing, state)
	require.Equal(t, 5, p.Series().Len())

	// playback continues over the new series and wraps at its length
	waitForIndex(t, p, 4)
	waitForIndex(t, p, 0)
}
