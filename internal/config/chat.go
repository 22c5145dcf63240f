package config

import "time"

// ChatConfig tunes the broadcast core.
type ChatConfig struct {
	QueueDepth       int             `mapstructure:"QUEUE_DEPTH"        json:"queue_depth"        validate:"required,min=1,max=65536"`
	SendTimeout      time.Duration   `mapstructure:"SEND_TIMEOUT"       json:"send_timeout"       validate:"required,short_duration"`
	WriteTimeout     time.Duration   `mapstructure:"WRITE_TIMEOUT"      json:"write_timeout"      validate:"required,timeout_duration"`
	StoreTimeout     time.Duration   `mapstructure:"STORE_TIMEOUT"      json:"store_timeout"      validate:"required,timeout_duration"`
	MaxMessageLength int             `mapstructure:"MAX_MESSAGE_LENGTH" json:"max_message_length" validate:"required,min=1,max=65536"`
	Presence         bool            `mapstructure:"PRESENCE"           json:"presence"`
	RateLimit        RateLimitConfig `mapstructure:"RATE_LIMIT"         json:"rate_limit"`
}

// RateLimitConfig is a per-session token bucket for inbound messages.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"ENABLED"             json:"enabled"`
	MessagesPerSecond float64 `mapstructure:"MESSAGES_PER_SECOND" json:"messages_per_second" validate:"min=0,max=10000"`
	Burst             int     `mapstructure:"BURST"               json:"burst"               validate:"min=0,max=1000"`
}
