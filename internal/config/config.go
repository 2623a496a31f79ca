// Package config defines the bot configuration schema and loading.
//
// Config is YAML with ${VAR} environment expansion. Every field except
// instance.id, gateway.url and the profile list has a default, applied
// by LoadWithDefaults.
package config

import "time"

// BotConfig is the top-level configuration for a bot instance.
type BotConfig struct {
	Instance    InstanceConfig    `yaml:"instance"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Profiles    []ProfileConfig   `yaml:"profiles"`
	Connection  ConnectionConfig  `yaml:"connection"`
	Store       StoreConfig       `yaml:"store"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Bot         CommandConfig     `yaml:"bot"`
	Status      StatusConfig      `yaml:"status"`
}

// InstanceConfig identifies this bot deployment.
type InstanceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// GatewayConfig holds the chat gateway endpoint and protocol timings.
type GatewayConfig struct {
	URL               string        `yaml:"url"`
	Origin            string        `yaml:"origin"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
	QueryTimeout      time.Duration `yaml:"query_timeout"`
	RetryRequestDelay time.Duration `yaml:"retry_request_delay"`
}

// ProfileConfig declares one identity profile. Order matters: earlier
// profiles win score ties during selection.
type ProfileConfig struct {
	Name          string `yaml:"name"`
	Fingerprint   string `yaml:"fingerprint"`
	CredentialRef string `yaml:"credential_ref"`
}

// ConnectionConfig tunes the reconnect, rate-limit and degradation
// behavior of the connection supervisor.
type ConnectionConfig struct {
	RateLimitWindow    time.Duration `yaml:"rate_limit_window"`
	RateLimitBaseDelay time.Duration `yaml:"rate_limit_base_delay"`
	RateLimitMaxDelay  time.Duration `yaml:"rate_limit_max_delay"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	DegradeThreshold   int           `yaml:"degrade_threshold"`
	RecoveryTime       time.Duration `yaml:"recovery_time"`
	MaxQRAttempts      int           `yaml:"max_qr_attempts"`
	PersistInterval    time.Duration `yaml:"persist_interval"`
}

// StoreConfig selects the stats persistence backend.
type StoreConfig struct {
	// Backend is "file" or "postgres".
	Backend  string   `yaml:"backend"`
	Path     string   `yaml:"path"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds PostgreSQL connection settings.
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

// CredentialsConfig locates the on-disk credential store.
type CredentialsConfig struct {
	Dir string `yaml:"dir"`
}

// CommandConfig tunes the chat command handler.
type CommandConfig struct {
	CommandPrefix string `yaml:"command_prefix"`
}

// StatusConfig configures the HTTP status endpoint.
type StatusConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
