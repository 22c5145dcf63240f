package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

/* ------------------------------------------------------------------ *
|  1. Options                                                         |
* -------------------------------------------------------------------*/

// Config describes how the process-wide logger is built.
type Config struct {
	Level      string
	FilePath   string
	Format     string
	Version    string
	Component  string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Sampling   bool
}

type Option func(*Config)

func WithLevel(lvl string) Option      { return func(c *Config) { c.Level = lvl } }
func WithFormat(f string) Option       { return func(c *Config) { c.Format = f } }
func WithFile(path string) Option      { return func(c *Config) { c.FilePath = path } }
func WithVersion(v string) Option      { return func(c *Config) { c.Version = v } }
func WithComponent(comp string) Option { return func(c *Config) { c.Component = comp } }
func WithSampling(on bool) Option      { return func(c *Config) { c.Sampling = on } }
func WithRotation(size, backups, age int) Option {
	return func(c *Config) {
		c.MaxSize, c.MaxBackups, c.MaxAge = size, backups, age
	}
}

/* ------------------------------------------------------------------ *
|  2. Package state                                                   |
* -------------------------------------------------------------------*/

var (
	mu          sync.RWMutex
	root        = zap.NewNop()
	atomicLevel = zap.NewAtomicLevel()
	active      bool
	fileBacked  bool
)

/* ------------------------------------------------------------------ *
|  3. Init / Shutdown                                                 |
* -------------------------------------------------------------------*/

// Init builds the global zap logger. Calling Init again swaps the core and
// flushes the previous one.
func Init(opts ...Option) error {
	cfg := defaultConfig()
	for _, apply := range opts {
		apply(cfg)
	}

	enc, err := buildEncoder(cfg.Format)
	if err != nil {
		return err
	}
	ws, isFile, err := buildWriter(cfg)
	if err != nil {
		return err
	}
	lvl, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	core := zapcore.NewCore(enc, ws, lvl)
	if cfg.Sampling {
		// First 100 identical entries per second, then every 100th.
		core = zapcore.NewSamplerWithOptions(core, time.Second, 100, 100)
	}

	next := zap.New(core,
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(
			zap.String("version", cfg.Version),
			zap.String("component", cfg.Component),
		),
	)

	mu.Lock()
	defer mu.Unlock()
	if active && fileBacked {
		_ = root.Sync()
	}
	root = next
	atomicLevel = lvl
	active = true
	fileBacked = isFile
	return nil
}

// Shutdown flushes buffered entries. Sync errors on stdout are ignored.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()

	if !active {
		return fmt.Errorf("logger not initialized")
	}
	if err := root.Sync(); err != nil && fileBacked {
		return err
	}
	active = false
	return nil
}

/* ------------------------------------------------------------------ *
|  4. Builders                                                        |
* -------------------------------------------------------------------*/

func defaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "console",
		Component:  "roomchat",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
	}
}

func buildEncoder(format string) (zapcore.Encoder, error) {
	switch format {
	case "json":
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), nil
	case "console", "":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewConsoleEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func buildWriter(cfg *Config) (zapcore.WriteSyncer, bool, error) {
	if cfg.FilePath == "" {
		return zapcore.AddSync(os.Stdout), false, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o750); err != nil {
		return nil, false, fmt.Errorf("create log dir: %w", err)
	}
	ws := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	})
	return ws, true, nil
}

/* ------------------------------------------------------------------ *
|  5. Child loggers & context                                         |
* -------------------------------------------------------------------*/

type loggerKey struct{}

// L returns the process logger. It is a no-op logger until Init succeeds.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// New returns a component-scoped child logger.
func New(component string) *zap.Logger {
	return L().With(zap.String("component", component))
}

// WithLogger attaches a logger to ctx.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored in ctx, or the process logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return L()
}

/* ------------------------------------------------------------------ *
|  6. Convenience wrappers                                            |
* -------------------------------------------------------------------*/

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

/* ------------------------------------------------------------------ *
|  7. Hot-swap level                                                  |
* -------------------------------------------------------------------*/

// UpdateLevel changes the level of the running logger without rebuilding it.
func UpdateLevel(lvl string) error {
	mu.RLock()
	defer mu.RUnlock()
	if !active {
		return fmt.Errorf("logger not initialized")
	}
	level, err := zapcore.ParseLevel(lvl)
	if err != nil {
		return err
	}
	atomicLevel.SetLevel(level)
	return nil
}
