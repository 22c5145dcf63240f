package config

import "time"

// ServerConfig holds the WebSocket listener settings.
type ServerConfig struct {
	WSAddr           string        `mapstructure:"WS_ADDR"           json:"ws_addr"           validate:"required,wsaddr"`
	HandshakeTimeout time.Duration `mapstructure:"HANDSHAKE_TIMEOUT" json:"handshake_timeout" validate:"required,timeout_duration"`
	PingInterval     time.Duration `mapstructure:"PING_INTERVAL"     json:"ping_interval"     validate:"required,timeout_duration"`
	PongWait         time.Duration `mapstructure:"PONG_WAIT"         json:"pong_wait"         validate:"required,timeout_duration"`
	MaxFrameBytes    int64         `mapstructure:"MAX_FRAME_BYTES"   json:"max_frame_bytes"   validate:"required,min=128,max=1048576"`
	MaxConnections   int           `mapstructure:"MAX_CONNECTIONS"   json:"max_connections"   validate:"required,min=1,max=100000"`
	AllowedOrigins   []string      `mapstructure:"ALLOWED_ORIGINS"   json:"allowed_origins"`
	TrustedProxies   []string      `mapstructure:"TRUSTED_PROXIES"   json:"trusted_proxies"   validate:"omitempty,dive,cidr|ip"`

	HandshakeLimit HandshakeLimitConfig `mapstructure:"HANDSHAKE_LIMIT" json:"handshake_limit"`
}

// HandshakeLimitConfig throttles new connections per client IP.
type HandshakeLimitConfig struct {
	Enabled      bool          `mapstructure:"ENABLED"       json:"enabled"`
	PerMinute    int           `mapstructure:"PER_MINUTE"    json:"per_minute"    validate:"min=0,max=100000"`
	Burst        int           `mapstructure:"BURST"         json:"burst"         validate:"min=0,max=10000"`
	BanThreshold int           `mapstructure:"BAN_THRESHOLD" json:"ban_threshold" validate:"min=0,max=1000"`
	BanDuration  time.Duration `mapstructure:"BAN_DURATION"  json:"ban_duration"  validate:"omitempty,reasonable_duration"`
}
