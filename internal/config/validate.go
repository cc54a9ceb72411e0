package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *ServerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.Password == "" {
		return errors.New("database.password is required")
	}
	if c.Database.MaxConns < 1 {
		return errors.New("database.max_conns must be >= 1")
	}
	if c.Database.MinConns < 0 {
		return errors.New("database.min_conns must be >= 0")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) cannot exceed max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}

	if c.Streams.MaxConnections < 1 {
		return errors.New("streams.max_connections must be >= 1")
	}
	if c.Streams.MaxReconnectAttempts < 1 {
		return errors.New("streams.max_reconnect_attempts must be >= 1")
	}
	if c.Streams.BufferMaxBytes < 1 {
		return errors.New("streams.buffer_max_bytes must be >= 1")
	}
	if c.Streams.ReconnectBaseDelay > c.Streams.ReconnectMaxDelay {
		return fmt.Errorf("streams.reconnect_base_delay (%v) cannot exceed reconnect_max_delay (%v)",
			c.Streams.ReconnectBaseDelay, c.Streams.ReconnectMaxDelay)
	}

	if c.Forge.MaxRetries < 0 {
		return errors.New("forge.max_retries must be >= 0")
	}

	return nil
}
