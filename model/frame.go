package model

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// Frame is one hourly point of a forecast series. The payload is borrowed
// from the sync layer and must not be mutated by playback.
type Frame struct {
	HourIndex int
	Timestamp time.Time
	Payload   json.RawMessage

	loaded atomic.Bool
}

func (f *Frame) Loaded() bool { return f.loaded.Load() }

// FrameSeries is an ordered, fixed-length sequence of hourly frames for one
// forecast resource. The sequence itself is immutable once built; only the
// per-frame loaded flags flip as payloads arrive.
type FrameSeries struct {
	key    string
	frames []*Frame
}

// NewFrameSeries builds an empty series of n unloaded frames starting at
// start, one frame per hour.
func NewFrameSeries(key string, n int, start time.Time) *FrameSeries {
	frames := make([]*Frame, n)
	for i := range frames {
		frames[i] = &Frame{HourIndex: i, Timestamp: start.Add(time.Duration(i) * time.Hour)}
	}
	return &FrameSeries{key: key, frames: frames}
}

func (s *FrameSeries) Key() string { return s.key }
func (s *FrameSeries) Len() int    { return len(s.frames) }

func (s *FrameSeries) Frame(i int) (*Frame, error) {
	if i < 0 || i >= len(s.frames) {
		return nil, fmt.Errorf("frame index %d out of range [0,%d)", i, len(s.frames))
	}
	return s.frames[i], nil
}

// Fill stores a payload into frame i and marks it loaded.
func (s *FrameSeries) Fill(i int, payload json.RawMessage) error {
	f, err := s.Frame(i)
	if err != nil {
		return err
	}
	f.Payload = payload
	f.loaded.Store(true)
	return nil
}

// Loaded reports whether frame i carries a resolved payload. Out-of-range
// indices report false.
func (s *FrameSeries) Loaded(i int) bool {
	if i < 0 || i >= len(s.frames) {
		return false
	}
	return s.frames[i].Loaded()
}

// FullyLoaded reports whether every frame of the series has resolved.
func (s *FrameSeries) FullyLoaded() bool {
	for _, f := range s.frames {
		if !f.Loaded() {
			return false
		}
	}
	return true
}

// ParseFrameSeries decodes a remote 24h forecast payload into a fully
// loaded series. The payload is the forecast endpoint's response: a list of
// hourly points, each carrying its own timestamp.
func ParseFrameSeries(key string, payload []byte) (*FrameSeries, error) {
	var doc struct {
		Points []struct {
			Timestamp time.Time       `json:"timestamp"`
			Data      json.RawMessage `json:"data"`
		} `json:"points"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode forecast payload: %w", err)
	}
	if len(doc.Points) == 0 {
		return nil, fmt.Errorf("forecast payload for %s has no points", key)
	}
	s := &FrameSeries{key: key, frames: make([]*Frame, len(doc.Points))}
	for i, p := range doc.Points {
		f := &Frame{HourIndex: i, Timestamp: p.Timestamp, Payload: p.Data}
		f.loaded.Store(len(p.Data) > 0)
		s.frames[i] = f
	}
	return s, nil
}
