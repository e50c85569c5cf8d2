package log

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Config controls how the root logger is constructed.
type Config struct {
	// Level is the minimum level that will be logged (panic, fatal, error,
	// warn, info, debug, trace).
	Level string
	// Formatter selects the log encoding: "text" or "json".
	Formatter string
}

type loggerKey struct{}

// New builds a logrus.Logger from the given Config.
func New(cfg Config) (*logrus.Logger, error) {
	logger := logrus.New()

	if cfg.Level != "" {
		level, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}

		logger.SetLevel(level)
	}

	switch cfg.Formatter {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, ErrInvalidLogFormat(cfg.Formatter)
	}

	return logger, nil
}

// WithLogger returns a copy of ctx carrying logger, retrievable via GetLogger.
func WithLogger(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger returns the logger stored in ctx, or logrus's standard logger
// (which writes to stderr) if none was attached with WithLogger.
func GetLogger(ctx context.Context) logrus.FieldLogger {
	if ctx == nil {
		return logrus.StandardLogger()
	}

	logger, ok := ctx.Value(loggerKey{}).(logrus.FieldLogger)
	if !ok || logger == nil {
		return logrus.StandardLogger()
	}

	return logger
}
