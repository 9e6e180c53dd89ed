package config

// RemoteCfg describes the backend service. Token acquisition is not this
// layer's job; AuthToken carries an already-issued credential verbatim.
type RemoteCfg struct {
	// BaseURL is the HTTP root of the measurement service,
	// e.g. "https://api.example.org/v1".
	BaseURL string `yaml:"base_url"`

	// PushURL is the websocket endpoint for server-initiated updates.
	// Empty when the environment is not push-capable.
	PushURL string `yaml:"push_url"`

	// AuthToken is attached as a bearer credential to every fetch and to
	// the push handshake. May be empty for anonymous access.
	AuthToken string `yaml:"auth_token"`
}
