package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Presence  PresenceConfig
	Database  DatabaseConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
	// MasterUserIDs lists user IDs that resolve to the full capability set
	// on every server. Configured out-of-band only; never grantable in-app.
	MasterUserIDs []int64 `mapstructure:"masterUserIds"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

type PresenceConfig struct {
	IdleAfter     time.Duration `mapstructure:"idleAfter"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}

type DatabaseConfig struct {
	Driver string // "sqlite" or "mysql"
	DSN    string
}

type LogConfig struct {
	Level string
}
