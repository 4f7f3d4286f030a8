package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for an order board.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	API        APIConfig        `yaml:"api"`
	Connection ConnectionConfig `yaml:"connection"`
	Display    DisplayConfig    `yaml:"display"`
	Audio      AudioConfig      `yaml:"audio"`
	HTTP       HTTPConfig       `yaml:"http"`
	Journal    JournalConfig    `yaml:"journal"`
	Log        LogConfig        `yaml:"log"`
}

// InstanceConfig identifies this board.
type InstanceConfig struct {
	ID       string `yaml:"id"`
	Location string `yaml:"location"` // Free-form, e.g. the store name
}

// APIConfig locates the order feed.
type APIConfig struct {
	BaseURL    string `yaml:"base_url"`    // https://host[/prefix]
	Namespace  string `yaml:"namespace"`   // Socket.IO namespace
	SocketPath string `yaml:"socket_path"` // Appended to the base path
}

// ConnectionConfig holds Connection Manager settings.
type ConnectionConfig struct {
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	ReconnectJitter    time.Duration `yaml:"reconnect_jitter"`
	MaxAttempts        int           `yaml:"max_attempts"`
	BufferSize         int           `yaml:"buffer_size"`
}

// DisplayConfig controls day scoping.
type DisplayConfig struct {
	Timezone              string        `yaml:"timezone"` // IANA name or "Local"
	RolloverCheckInterval time.Duration `yaml:"rollover_check_interval"`
}

// Location resolves Timezone.
func (d DisplayConfig) Location() (*time.Location, error) {
	if d.Timezone == "" || d.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", d.Timezone, err)
	}
	return loc, nil
}

// AudioConfig holds new-order sound settings.
type AudioConfig struct {
	Enabled       bool          `yaml:"enabled"`
	AssetBaseURL  string        `yaml:"asset_base_url"` // Defaults to api.base_url
	SoundName     string        `yaml:"sound_name"`
	Formats       []string      `yaml:"formats"` // Preference order
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	PlayTimeout   time.Duration `yaml:"play_timeout"`
	PlayerCommand []string      `yaml:"player_command"` // e.g. ["mpv", "--no-video"]
	PlayerFormats []string      `yaml:"player_formats"` // Empty means any
}

// HTTPConfig holds the board HTTP server settings.
type HTTPConfig struct {
	Port         int           `yaml:"port"`
	SSEKeepAlive time.Duration `yaml:"sse_keep_alive"`
}

// JournalConfig holds the optional event journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
