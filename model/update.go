package model

import (
	"encoding/json"
	"time"
)

// UpdateSource tells which transport produced an update.
type UpdateSource int32

const (
	SourcePush UpdateSource = iota
	SourcePoll
	SourceFetch
)

func (s UpdateSource) String() string {
	switch s {
	case SourcePush:
		return "push"
	case SourcePoll:
		return "poll"
	case SourceFetch:
		return "fetch"
	}
	return "unknown"
}

// Update is one live payload for a resource key. Timestamp is the payload's
// own timestamp, not arrival time; conflicting updates for the same key are
// resolved last-write-wins on this field.
type Update struct {
	Key       string
	Payload   json.RawMessage
	Timestamp time.Time
	Source    UpdateSource
}

// stamped is the minimal envelope shared by all remote payloads.
type stamped struct {
	Timestamp time.Time `json:"timestamp"`
	Updated   time.Time `json:"updated"`
}

// PayloadTimestamp extracts the embedded timestamp of a raw payload.
// Payloads without one report the zero time and lose any tie-break
// against a timestamped rival.
func PayloadTimestamp(payload []byte) time.Time {
	var s stamped
	if err := json.Unmarshal(payload, &s); err != nil {
		return time.Time{}
	}
	if !s.Timestamp.IsZero() {
		return s.Timestamp
	}
	return s.Updated
}
