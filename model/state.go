package model

import (
	"encoding/json"
	"time"
)

// Mode describes how live updates for a subscription currently arrive.
type Mode int32

const (
	ModePush Mode = iota
	ModePoll
	ModeOffline
)

func (m Mode) String() string {
	switch m {
	case ModePush:
		return "push"
	case ModePoll:
		return "poll"
	case ModeOffline:
		return "offline"
	}
	return "unknown"
}

// SyncState is the only externally visible view of a synchronized resource.
// Consumers never observe cache entries or subscriptions directly.
//
// Degraded-but-present beats absent: when a refresh fails and any cached
// payload exists, Data stays populated with IsStale=true and Err attached.
type SyncState struct {
	Key       string
	Data      json.RawMessage
	IsStale   bool
	IsLoading bool
	Err       *SyncError
	UpdatedAt time.Time
}

// HasData reports whether any payload, fresh or stale, is available.
func (s SyncState) HasData() bool { return len(s.Data) > 0 }
