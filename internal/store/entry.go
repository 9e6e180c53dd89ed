package store

import "time"

// TierID names the storage tier currently holding an entry.
type TierID int32

const (
	TierStructured TierID = iota
	TierSerialized
	TierMemory
)

func (t TierID) String() string {
	switch t {
	case TierStructured:
		return "structured"
	case TierSerialized:
		return "serialized"
	case TierMemory:
		return "memory"
	}
	return "unknown"
}

// Entry is one cached payload. Staleness never implies deletion: a stale
// entry stays servable as a degraded fallback until evicted or overwritten.
type Entry struct {
	Key      string
	Payload  []byte
	StoredAt time.Time
	TTL      time.Duration
	Tier     TierID
}

// IsStaleAt reports whether the entry is stale at the given instant:
// now - StoredAt >= TTL. A non-positive TTL means always stale.
func (e *Entry) IsStaleAt(now time.Time) bool {
	if e.TTL <= 0 {
		return true
	}
	return now.Sub(e.StoredAt) >= e.TTL
}
