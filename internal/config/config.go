package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Shugur-Network/roomchat/internal/logger"
	validator "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

//go:embed defaults.yaml
var defaultYAML []byte

// Version is set by the main package from build information.
var Version = "dev"

// EnvPrefix prefixes every environment override, e.g. ROOMCHAT_CHAT_QUEUE_DEPTH.
const EnvPrefix = "ROOMCHAT"

var validate = validator.New()

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`)

// Config holds every sub-config.
type Config struct {
	General  GeneralConfig  `mapstructure:"general"  validate:"required"`
	Logging  LoggingConfig  `mapstructure:"logging"  validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  validate:"required"`
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Chat     ChatConfig     `mapstructure:"chat"     validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
}

// GeneralConfig holds process-level settings.
type GeneralConfig struct {
	Name            string        `mapstructure:"NAME"             json:"name"             validate:"required,min=1,max=30"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" json:"shutdown_timeout" validate:"required,timeout_duration"`
}

func init() {
	registerCustomValidators()
	validate.RegisterStructValidation(performCrossFieldValidation, Config{})
}

// registerCustomValidators registers the tags used by the sub-configs.
func registerCustomValidators() {
	register := func(tag string, fn validator.Func) {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			logger.Error("Failed to register validator", zap.String("tag", tag), zap.Error(err))
		}
	}

	// ":8000" or "host:8000"
	register("wsaddr", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		host, port, err := net.SplitHostPort(addr)
		if err != nil || port == "" {
			return false
		}
		if _, err := net.LookupPort("tcp", port); err != nil {
			return false
		}
		if host == "" || net.ParseIP(host) != nil {
			return true
		}
		return hostnamePattern.MatchString(host)
	})

	register("host", func(fl validator.FieldLevel) bool {
		host := fl.Field().String()
		if host == "" {
			return false
		}
		if net.ParseIP(host) != nil {
			return true
		}
		return hostnamePattern.MatchString(host)
	})

	// Between 1 second and 24 hours.
	register("reasonable_duration", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(time.Duration)
		return ok && d >= time.Second && d <= 24*time.Hour
	})

	// Between 1 second and 1 hour.
	register("timeout_duration", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(time.Duration)
		return ok && d >= time.Second && d <= time.Hour
	})

	// Between 1 millisecond and 1 minute; used for per-recipient send bounds.
	register("short_duration", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(time.Duration)
		return ok && d >= time.Millisecond && d <= time.Minute
	})

	register("log_level", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "debug", "info", "warn", "error", "fatal":
			return true
		}
		return false
	})

	register("log_format", func(fl validator.FieldLevel) bool {
		format := fl.Field().String()
		return format == "console" || format == "json"
	})
}

// performCrossFieldValidation checks constraints spanning several sections.
func performCrossFieldValidation(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)

	if cfg.Server.PongWait <= cfg.Server.PingInterval {
		sl.ReportError(cfg.Server.PongWait, "PongWait", "PongWait", "pong_wait_too_short", "")
	}

	if cfg.Chat.RateLimit.Enabled && (cfg.Chat.RateLimit.MessagesPerSecond <= 0 || cfg.Chat.RateLimit.Burst < 1) {
		sl.ReportError(cfg.Chat.RateLimit, "RateLimit", "RateLimit", "rate_limit_incomplete", "")
	}

	if hl := cfg.Server.HandshakeLimit; hl.Enabled && (hl.PerMinute < 1 || hl.Burst < 1) {
		sl.ReportError(hl, "HandshakeLimit", "HandshakeLimit", "rate_limit_incomplete", "")
	}

	if cfg.Chat.MaxMessageLength > int(cfg.Server.MaxFrameBytes) {
		sl.ReportError(cfg.Chat.MaxMessageLength, "MaxMessageLength", "MaxMessageLength", "message_exceeds_frame", "")
	}

	if cfg.Database.Store == "postgres" && cfg.Database.URL == "" && cfg.Database.Server == "" {
		sl.ReportError(cfg.Database.URL, "URL", "URL", "database_target_missing", "")
	}

	if cfg.Database.URL != "" {
		if u, err := url.Parse(cfg.Database.URL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			sl.ReportError(cfg.Database.URL, "URL", "URL", "invalid_database_scheme", "")
		}
	}

	if cfg.Metrics.Enabled {
		if _, port, err := net.SplitHostPort(cfg.Server.WSAddr); err == nil && port == strconv.Itoa(cfg.Metrics.Port) {
			sl.ReportError(cfg.Metrics.Port, "Port", "Port", "port_conflict", "")
		}
	}
}

/* ------------------------------------------------------------------ *
|  Public API                                                         |
* -------------------------------------------------------------------*/

// SetVersion sets the version from build information.
func SetVersion(v string) {
	Version = v
}

// Load merges defaults → file (optional) → env vars, validates, initializes
// the global logger and returns the config.
func Load(path string, log *zap.Logger) (*Config, error) {
	cfg, err := Read(path, log)
	if err != nil {
		return nil, err
	}
	if err := initializeLogger(cfg.Logging); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	if log != nil {
		log.Info("logger initialized",
			zap.String("level", cfg.Logging.Level),
			zap.String("format", cfg.Logging.Format),
			zap.String("file", cfg.Logging.FilePath),
		)
	}
	return cfg, nil
}

// Read is Load without the logger side effect.
func Read(path string, log *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 1. embedded defaults
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	// 2. optional user file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.MergeInConfig(); err != nil {
			if log != nil {
				log.Info("No config.yaml found, using defaults")
			}
		} else if log != nil {
			log.Info("Loaded config.yaml from current directory")
		}
	}

	// 3. env already merged by AutomaticEnv()

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	if log != nil {
		log.Info("configuration loaded", zap.String("version", Version))
	}
	return &cfg, nil
}

// Validate runs the struct and cross-field rules against cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// DSN returns the PostgreSQL connection string for the configured database.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(d.Server, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

func initializeLogger(loggingConfig LoggingConfig) error {
	return logger.Init(
		logger.WithLevel(loggingConfig.Level),
		logger.WithFormat(loggingConfig.Format),
		logger.WithFile(loggingConfig.FilePath),
		logger.WithVersion(Version),
		logger.WithComponent("roomchat"),
		logger.WithRotation(loggingConfig.MaxSize, loggingConfig.MaxBackups, loggingConfig.MaxAge),
		logger.WithSampling(loggingConfig.Sample),
	)
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		messages = append(messages, getFieldErrorMessage(fieldError))
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}

func getFieldErrorMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	value := fe.Value()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required but not provided", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", field, param, value)
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", field, param, value)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", field, param, value)
	case "wsaddr":
		return fmt.Sprintf("%s must be a listen address in format ':port' or 'host:port' (got: %v)", field, value)
	case "host":
		return fmt.Sprintf("%s must be a valid hostname or IP address (got: %v)", field, value)
	case "reasonable_duration":
		return fmt.Sprintf("%s must be between 1 second and 24 hours (got: %v)", field, value)
	case "timeout_duration":
		return fmt.Sprintf("%s must be between 1 second and 1 hour (got: %v)", field, value)
	case "short_duration":
		return fmt.Sprintf("%s must be between 1 millisecond and 1 minute (got: %v)", field, value)
	case "log_level":
		return fmt.Sprintf("%s must be one of: debug, info, warn, error, fatal (got: %v)", field, value)
	case "log_format":
		return fmt.Sprintf("%s must be either 'console' or 'json' (got: %v)", field, value)
	case "pong_wait_too_short":
		return fmt.Sprintf("%s must be longer than the ping interval", field)
	case "rate_limit_incomplete":
		return fmt.Sprintf("%s needs a positive rate and BURST >= 1 when enabled", field)
	case "message_exceeds_frame":
		return fmt.Sprintf("%s must not exceed server MAX_FRAME_BYTES", field)
	case "database_target_missing":
		return "database URL or SERVER is required for the postgres store"
	case "invalid_database_scheme":
		return fmt.Sprintf("%s must use the 'postgres://' or 'postgresql://' scheme", field)
	case "cidr|ip":
		return fmt.Sprintf("%s must be an IP address or CIDR (got: %v)", field, value)
	case "port_conflict":
		return "metrics port conflicts with the WebSocket listen port, they must be different"
	default:
		return fmt.Sprintf("%s validation failed: %s (got: %v)", field, fe.Tag(), value)
	}
}
