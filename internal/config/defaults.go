package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHTTPAddr                  = ":8080"
	DefaultShutdownTimeout           = 10 * time.Second
	DefaultDBPort                    = 5432
	DefaultDBSSLMode                 = "prefer"
	DefaultMaxConns                  = 10
	DefaultMinConns                  = 2
	DefaultAgentBaseURL              = "ws://127.0.0.1:7333"
	DefaultMaxConnections            = 32
	DefaultConnectTimeout            = 10 * time.Second
	DefaultReconnectBaseDelay        = 1 * time.Second
	DefaultReconnectMaxDelay         = 30 * time.Second
	DefaultMaxReconnectAttempts      = 5
	DefaultHeartbeatInterval         = 15 * time.Second
	DefaultInactiveHeartbeatInterval = 60 * time.Second
	DefaultWriteTimeout              = 5 * time.Second
	DefaultMessageBufferSize         = 1000
	DefaultBufferMaxBytes            = 256 * 1024
	DefaultIdleTTL                   = 5 * time.Minute
	DefaultForgeBaseURL              = "https://api.github.com"
	DefaultForgeTimeout              = 30 * time.Second
	DefaultForgeMaxRetries           = 3
	DefaultReconcileInterval         = 1 * time.Minute
	DefaultPolicyPath                = "configs/settings.yaml"
)

func (c *ServerConfig) applyDefaults() {
	// HTTP defaults
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Streams defaults
	if c.Streams.AgentBaseURL == "" {
		c.Streams.AgentBaseURL = DefaultAgentBaseURL
	}
	if c.Streams.MaxConnections == 0 {
		c.Streams.MaxConnections = DefaultMaxConnections
	}
	if c.Streams.ConnectTimeout == 0 {
		c.Streams.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Streams.ReconnectBaseDelay == 0 {
		c.Streams.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Streams.ReconnectMaxDelay == 0 {
		c.Streams.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Streams.MaxReconnectAttempts == 0 {
		c.Streams.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Streams.HeartbeatInterval == 0 {
		c.Streams.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Streams.InactiveHeartbeatInterval == 0 {
		c.Streams.InactiveHeartbeatInterval = DefaultInactiveHeartbeatInterval
	}
	if c.Streams.WriteTimeout == 0 {
		c.Streams.WriteTimeout = DefaultWriteTimeout
	}
	if c.Streams.MessageBufferSize == 0 {
		c.Streams.MessageBufferSize = DefaultMessageBufferSize
	}
	if c.Streams.BufferMaxBytes == 0 {
		c.Streams.BufferMaxBytes = DefaultBufferMaxBytes
	}
	if c.Streams.IdleTTL == 0 {
		c.Streams.IdleTTL = DefaultIdleTTL
	}

	// Forge defaults
	if c.Forge.BaseURL == "" {
		c.Forge.BaseURL = DefaultForgeBaseURL
	}
	if c.Forge.Timeout == 0 {
		c.Forge.Timeout = DefaultForgeTimeout
	}
	if c.Forge.MaxRetries == 0 {
		c.Forge.MaxRetries = DefaultForgeMaxRetries
	}

	// Workspace defaults
	if c.Workspace.ReconcileInterval == 0 {
		c.Workspace.ReconcileInterval = DefaultReconcileInterval
	}

	// Policy defaults
	if c.Policy.Path == "" {
		c.Policy.Path = DefaultPolicyPath
	}
}
