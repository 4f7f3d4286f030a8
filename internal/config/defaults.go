package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID            = "orderboard"
	DefaultNamespace             = "/orders"
	DefaultSocketPath            = "socket.io"
	DefaultHandshakeTimeout      = 20 * time.Second
	DefaultWriteTimeout          = 5 * time.Second
	DefaultHeartbeatInterval     = 30 * time.Second
	DefaultReconnectBaseDelay    = 1 * time.Second
	DefaultReconnectMaxDelay     = 30 * time.Second
	DefaultReconnectJitter       = 1 * time.Second
	DefaultMaxAttempts           = 10
	DefaultEventBufferSize       = 256
	DefaultTimezone              = "Local"
	DefaultRolloverCheckInterval = 1 * time.Minute
	DefaultSoundName             = "new-order"
	DefaultProbeTimeout          = 2 * time.Second
	DefaultPlayTimeout           = 30 * time.Second
	DefaultHTTPPort              = 8080
	DefaultSSEKeepAlive          = 15 * time.Second
	DefaultBatchSize             = 100
	DefaultFlushInterval         = 1 * time.Second
	DefaultJournalBufferSize     = 1024
	DefaultDBPort                = 5432
	DefaultDBSSLMode             = "prefer"
	DefaultMaxConns              = 4
	DefaultMinConns              = 1
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "text"
)

// DefaultFormats is the audio encoding preference order.
var DefaultFormats = []string{"mp3", "ogg", "wav"}

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// API defaults
	if c.API.Namespace == "" {
		c.API.Namespace = DefaultNamespace
	}
	if c.API.SocketPath == "" {
		c.API.SocketPath = DefaultSocketPath
	}

	// Connection defaults
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.ReconnectJitter == 0 {
		c.Connection.ReconnectJitter = DefaultReconnectJitter
	}
	if c.Connection.MaxAttempts == 0 {
		c.Connection.MaxAttempts = DefaultMaxAttempts
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultEventBufferSize
	}

	// Display defaults
	if c.Display.Timezone == "" {
		c.Display.Timezone = DefaultTimezone
	}
	if c.Display.RolloverCheckInterval == 0 {
		c.Display.RolloverCheckInterval = DefaultRolloverCheckInterval
	}

	// Audio defaults
	if c.Audio.AssetBaseURL == "" {
		c.Audio.AssetBaseURL = c.API.BaseURL
	}
	if c.Audio.SoundName == "" {
		c.Audio.SoundName = DefaultSoundName
	}
	if len(c.Audio.Formats) == 0 {
		c.Audio.Formats = append([]string(nil), DefaultFormats...)
	}
	if c.Audio.ProbeTimeout == 0 {
		c.Audio.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Audio.PlayTimeout == 0 {
		c.Audio.PlayTimeout = DefaultPlayTimeout
	}

	// HTTP defaults
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.SSEKeepAlive == 0 {
		c.HTTP.SSEKeepAlive = DefaultSSEKeepAlive
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultJournalBufferSize
	}
	applyDBDefaults(&c.Journal.Database)

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
