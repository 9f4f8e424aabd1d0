// Package logging builds the zap loggers used by the server and the CLI.
package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.Logger
}

type connIDKey struct{}

// productionConfig is zap's production config at the given level.
func productionConfig(level string) (zap.Config, error) {
	config := zap.NewProductionConfig()

	// Parse log level
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return config, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	return config, nil
}

func NewLogger(level string) (*Logger, error) {
	config, err := productionConfig(level)
	if err != nil {
		return nil, err
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

// NewFileLogger writes JSON logs to path, creating its directory, and also
// to stderr when echo is set.
func NewFileLogger(level, path string, echo bool) (*Logger, error) {
	config, err := productionConfig(level)
	if err != nil {
		return nil, err
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	config.OutputPaths = nil
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		config.OutputPaths = append(config.OutputPaths, path)
	}
	if echo || path == "" {
		config.OutputPaths = append(config.OutputPaths, "stderr")
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

// Wrap adopts an existing zap logger, e.g. one from zaptest.
func Wrap(l *zap.Logger) *Logger {
	return &Logger{l}
}

func ContextWithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connIDKey{}, id)
}

func ConnIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(connIDKey{}).(string)
	return id, ok
}

func (l *Logger) WithConnID(ctx context.Context) *zap.Logger {
	if id, ok := ConnIDFrom(ctx); ok {
		return l.With(zap.String("conn_id", id))
	}
	return l.Logger
}
