package config

import "time"

// Config holds client configuration values.
type Config struct {
	ServerURL string `mapstructure:"server_url" yaml:"server_url"`
	APIURL    string `mapstructure:"api_url" yaml:"api_url"`
	Token     string `mapstructure:"token" yaml:"token"`
	// UserID overrides the local actor id taken from the token claims.
	UserID   int64  `mapstructure:"user_id" yaml:"user_id"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	PingInterval         time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	PongTimeout          time.Duration `mapstructure:"pong_timeout" yaml:"pong_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay" yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `mapstructure:"reconnect_max_delay" yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`

	TypingTTL       time.Duration `mapstructure:"typing_ttl" yaml:"typing_ttl"`
	HistoryPageSize int           `mapstructure:"history_page_size" yaml:"history_page_size"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	MetricsAddr  string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ServerURL:            "ws://localhost:8080/ws",
		APIURL:               "http://localhost:8080",
		LogLevel:             "info",
		PingInterval:         25 * time.Second,
		PongTimeout:          10 * time.Second,
		WriteTimeout:         5 * time.Second,
		ReconnectBaseDelay:   500 * time.Millisecond,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 10,
		TypingTTL:            3 * time.Second,
		HistoryPageSize:      30,
		DatabasePath:         "chatsync.db",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.ServerURL != "" {
		c.ServerURL = other.ServerURL
	}
	if other.APIURL != "" {
		c.APIURL = other.APIURL
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if other.UserID != 0 {
		c.UserID = other.UserID
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.PingInterval != 0 {
		c.PingInterval = other.PingInterval
	}
	if other.PongTimeout != 0 {
		c.PongTimeout = other.PongTimeout
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.ReconnectBaseDelay != 0 {
		c.ReconnectBaseDelay = other.ReconnectBaseDelay
	}
	if other.ReconnectMaxDelay != 0 {
		c.ReconnectMaxDelay = other.ReconnectMaxDelay
	}
	if other.MaxReconnectAttempts != 0 {
		c.MaxReconnectAttempts = other.MaxReconnectAttempts
	}
	if other.TypingTTL != 0 {
		c.TypingTTL = other.TypingTTL
	}
	if other.HistoryPageSize != 0 {
		c.HistoryPageSize = other.HistoryPageSize
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.MetricsAddr != "" {
		c.MetricsAddr = other.MetricsAddr
	}
}
