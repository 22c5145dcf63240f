package config

// LoggingConfig controls the process logger. FILE enables rotation through
// lumberjack; SAMPLE thins repeated entries such as per-publish debug lines.
type LoggingConfig struct {
	Level    string `mapstructure:"LEVEL"  json:"level"  validate:"required,log_level"`
	Format   string `mapstructure:"FORMAT" json:"format" validate:"omitempty,log_format"`
	FilePath string `mapstructure:"FILE"   json:"file"   validate:"omitempty"`
	Sample   bool   `mapstructure:"SAMPLE" json:"sample"`

	// Rotation, only used when FILE is set.
	MaxSize    int `mapstructure:"MAX_SIZE"    json:"max_size"    validate:"required,min=1,max=1000"`
	MaxBackups int `mapstructure:"MAX_BACKUPS" json:"max_backups" validate:"min=0,max=100"`
	MaxAge     int `mapstructure:"MAX_AGE"     json:"max_age"     validate:"required,min=1,max=365"`
}
