package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the zap logger every manager receives at construction.
type Logger struct {
	*zap.Logger
}

// Config selects the level, the encoding and where lines go.
type Config struct {
	Level       string // debug, info, warn, error
	Development bool
	OutputPaths []string
}

// DefaultConfig is JSON at info on stdout.
func DefaultConfig() Config {
	return Config{Level: "info", OutputPaths: []string{"stdout"}}
}

// DevelopmentConfig is colored console output at debug.
func DevelopmentConfig() Config {
	return Config{Level: "debug", Development: true, OutputPaths: []string{"stdout"}}
}

// New builds a logger from cfg
func New(cfg Config) (*Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	zc := zap.NewProductionConfig()
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.MessageKey = "message"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Sampling = nil
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}

	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: l}, nil
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// OrNop returns l, or Nop when l is unset
func OrNop(l *Logger) *Logger {
	if l == nil || l.Logger == nil {
		return Nop()
	}
	return l
}

// ForUser tags lines with the OS user id
func (l *Logger) ForUser(userID int) *Logger {
	return l.With(zap.Int("user_id", userID))
}

// ForComponent names the child logger, e.g. "connect" or "mission"
func (l *Logger) ForComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// With returns a child logger carrying fields
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}
