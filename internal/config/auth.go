package config

import "time"

// AuthConfig holds the bearer-token verification settings.
type AuthConfig struct {
	Secret          string        `mapstructure:"SECRET"            json:"-"                 validate:"required,min=16"`
	Algorithm       string        `mapstructure:"ALGORITHM"         json:"algorithm"         validate:"required,oneof=HS256 HS384 HS512"`
	Issuer          string        `mapstructure:"ISSUER"            json:"issuer"            validate:"omitempty"`
	TokenTTL        time.Duration `mapstructure:"TOKEN_TTL"         json:"token_ttl"         validate:"required,reasonable_duration"`
	AllowQueryToken bool          `mapstructure:"ALLOW_QUERY_TOKEN" json:"allow_query_token"`
}
