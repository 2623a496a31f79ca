package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultConnectTimeout    = 30 * time.Second
	DefaultKeepAliveInterval = 20 * time.Second
	DefaultQueryTimeout      = 60 * time.Second
	DefaultRetryRequestDelay = 250 * time.Millisecond

	DefaultRateLimitWindow    = 15 * time.Minute
	DefaultRateLimitBaseDelay = 60 * time.Second
	DefaultRateLimitMaxDelay  = 30 * time.Minute
	DefaultReconnectBaseDelay = 5 * time.Second
	DefaultReconnectMaxDelay  = 5 * time.Minute
	DefaultDegradeThreshold   = 3
	DefaultRecoveryTime       = 30 * time.Minute
	DefaultMaxQRAttempts      = 5
	DefaultPersistInterval    = 5 * time.Minute

	DefaultStoreBackend   = "file"
	DefaultStorePath      = "data/profile-stats.json"
	DefaultCredentialsDir = "data/credentials"

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultCommandPrefix = "!"
	DefaultStatusPort    = 8090
	DefaultStatusPath    = "/status"
)

func (c *BotConfig) applyDefaults() {
	// Gateway defaults
	if c.Gateway.ConnectTimeout == 0 {
		c.Gateway.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Gateway.KeepAliveInterval == 0 {
		c.Gateway.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.Gateway.QueryTimeout == 0 {
		c.Gateway.QueryTimeout = DefaultQueryTimeout
	}
	if c.Gateway.RetryRequestDelay == 0 {
		c.Gateway.RetryRequestDelay = DefaultRetryRequestDelay
	}

	// Profile defaults
	for i := range c.Profiles {
		if c.Profiles[i].CredentialRef == "" {
			c.Profiles[i].CredentialRef = c.Profiles[i].Name
		}
	}

	// Connection defaults
	if c.Connection.RateLimitWindow == 0 {
		c.Connection.RateLimitWindow = DefaultRateLimitWindow
	}
	if c.Connection.RateLimitBaseDelay == 0 {
		c.Connection.RateLimitBaseDelay = DefaultRateLimitBaseDelay
	}
	if c.Connection.RateLimitMaxDelay == 0 {
		c.Connection.RateLimitMaxDelay = DefaultRateLimitMaxDelay
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.DegradeThreshold == 0 {
		c.Connection.DegradeThreshold = DefaultDegradeThreshold
	}
	if c.Connection.RecoveryTime == 0 {
		c.Connection.RecoveryTime = DefaultRecoveryTime
	}
	if c.Connection.MaxQRAttempts == 0 {
		c.Connection.MaxQRAttempts = DefaultMaxQRAttempts
	}
	if c.Connection.PersistInterval == 0 {
		c.Connection.PersistInterval = DefaultPersistInterval
	}

	// Store defaults
	if c.Store.Backend == "" {
		c.Store.Backend = DefaultStoreBackend
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Store.Backend == "postgres" {
		applyDBDefaults(&c.Store.Postgres)
	}

	// Credentials defaults
	if c.Credentials.Dir == "" {
		c.Credentials.Dir = DefaultCredentialsDir
	}

	// Bot defaults
	if c.Bot.CommandPrefix == "" {
		c.Bot.CommandPrefix = DefaultCommandPrefix
	}

	// Status defaults
	if c.Status.Port == 0 {
		c.Status.Port = DefaultStatusPort
	}
	if c.Status.Path == "" {
		c.Status.Path = DefaultStatusPath
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
