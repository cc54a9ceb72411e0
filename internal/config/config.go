package config

import "time"

// ServerConfig is the root configuration for a foreman server.
type ServerConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Streams   StreamsConfig   `yaml:"streams"`
	Forge     ForgeConfig     `yaml:"forge"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Policy    PolicyConfig    `yaml:"policy"`
}

// InstanceConfig identifies this server.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// HTTPConfig holds the dashboard API listener settings.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// StreamsConfig holds stream connection manager settings.
type StreamsConfig struct {
	AgentBaseURL              string        `yaml:"agent_base_url"`
	MaxConnections            int           `yaml:"max_connections"`
	ConnectTimeout            time.Duration `yaml:"connect_timeout"`
	ReconnectBaseDelay        time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay         time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts      int           `yaml:"max_reconnect_attempts"`
	HeartbeatInterval         time.Duration `yaml:"heartbeat_interval"`
	InactiveHeartbeatInterval time.Duration `yaml:"inactive_heartbeat_interval"`
	WriteTimeout              time.Duration `yaml:"write_timeout"`
	MessageBufferSize         int           `yaml:"message_buffer_size"`
	BufferMaxBytes            int           `yaml:"buffer_max_bytes"`
	IdleTTL                   time.Duration `yaml:"idle_ttl"`
}

// ForgeConfig holds git-hosting provider settings.
type ForgeConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// WorkspaceConfig holds workspace registry settings.
type WorkspaceConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

// PolicyConfig holds the user settings file location.
type PolicyConfig struct {
	Path string `yaml:"path"`
}
