package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum enabled logging level.
	// Valid values: "debug", "info", "warn", "error". Default: "info".
	Level string

	// Encoding sets the logger's encoding: "json" or "console".
	// Default: "json".
	Encoding string

	// ToFile additionally writes output to FilePath.
	ToFile bool

	// FilePath is the log file location when ToFile is set.
	FilePath string
}

// New creates a logger from the given configuration.
func New(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	level := zap.NewAtomicLevel()
	lvl := cfg.Level
	if lvl == "" {
		lvl = "info"
	}
	if err := level.UnmarshalText([]byte(lvl)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if encoding == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	outputPaths := []string{"stdout"}
	if cfg.ToFile {
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file logging enabled but no file path given")
		}
		outputPaths = append(outputPaths, cfg.FilePath)
	}

	zapConfig := zap.Config{
		Level:             level,
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

// WithComponent returns a logger with a "component" field.
func WithComponent(logger *zap.Logger, component string) *zap.Logger {
	return logger.With(zap.String("component", component))
}
