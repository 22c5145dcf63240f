package config

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"ENABLED" json:"enabled"`
	Port    int  `mapstructure:"PORT"    json:"port"    validate:"required,min=1024,max=65535"`
}
