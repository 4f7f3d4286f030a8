package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if err := validateURL("api.base_url", c.API.BaseURL, "http", "https", "ws", "wss"); err != nil {
		return err
	}
	if !strings.HasPrefix(c.API.Namespace, "/") {
		return fmt.Errorf("api.namespace must start with /, got %q", c.API.Namespace)
	}

	if c.Connection.ReconnectMaxDelay < c.Connection.ReconnectBaseDelay {
		return fmt.Errorf("connection.reconnect_max_delay (%s) cannot be less than reconnect_base_delay (%s)",
			c.Connection.ReconnectMaxDelay, c.Connection.ReconnectBaseDelay)
	}
	if c.Connection.ReconnectJitter < 0 {
		return errors.New("connection.reconnect_jitter must be >= 0")
	}
	if c.Connection.MaxAttempts < 1 {
		return errors.New("connection.max_attempts must be >= 1")
	}
	if c.Connection.BufferSize < 1 {
		return errors.New("connection.buffer_size must be >= 1")
	}

	if _, err := c.Display.Location(); err != nil {
		return fmt.Errorf("display.timezone: %w", err)
	}
	if c.Display.RolloverCheckInterval < 0 {
		return errors.New("display.rollover_check_interval must be >= 0")
	}

	if c.Audio.Enabled {
		if len(c.Audio.PlayerCommand) == 0 {
			return errors.New("audio.player_command is required when audio is enabled")
		}
		if err := validateURL("audio.asset_base_url", c.Audio.AssetBaseURL, "http", "https"); err != nil {
			return err
		}
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	if c.Journal.Enabled {
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", field, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s has unsupported scheme %q", field, u.Scheme)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
