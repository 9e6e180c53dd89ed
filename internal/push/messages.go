package push

import (
	"encoding/json"
	"time"
)

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"

	frameReady  = "ready"
	frameUpdate = "update"
)

// clientFrame is the wire format of client-to-server control messages.
type clientFrame struct {
	Action      string `json:"action"`
	ResourceKey string `json:"resourceKey"`
}

// serverFrame is the wire format of server-to-client messages. The first
// frame after a dial must be "ready"; everything after is "update".
type serverFrame struct {
	Type        string          `json:"type"`
	ResourceKey string          `json:"resourceKey"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
}
