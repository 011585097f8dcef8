package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Format represents the log output format
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds logger settings
type Config struct {
	// Format is the output format (json or text)
	Format Format
	// Level is the minimum log level
	Level Level
	// File enables rotating file output when set
	File string
	// MaxSizeMB is the size in megabytes before rotation
	MaxSizeMB int
	// MaxBackups is the number of rotated files to keep
	MaxBackups int
	// Writer receives output when File is empty (default: stderr)
	Writer io.Writer
}

// ZerologLogger implements Logger on top of zerolog
type ZerologLogger struct {
	zl     zerolog.Logger
	closer io.Closer
}

// New creates a zerolog-backed logger
func New(cfg Config) *ZerologLogger {
	var (
		out    io.Writer
		closer io.Closer
	)

	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
		}
		out = rotating
		closer = rotating
	} else if cfg.Writer != nil {
		out = zerolog.SyncWriter(cfg.Writer)
	} else {
		out = zerolog.SyncWriter(os.Stderr)
	}

	if cfg.Format != FormatJSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}
	}

	zl := zerolog.New(out).
		Level(toZerolog(cfg.Level)).
		With().
		Timestamp().
		Logger()

	return &ZerologLogger{zl: zl, closer: closer}
}

// Debug logs a debug message
func (l *ZerologLogger) Debug(ctx context.Context, msg string, fields Fields) {
	l.zl.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

// Info logs an info message
func (l *ZerologLogger) Info(ctx context.Context, msg string, fields Fields) {
	l.zl.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

// Warn logs a warning message
func (l *ZerologLogger) Warn(ctx context.Context, msg string, fields Fields) {
	l.zl.Warn().Fields(map[string]interface{}(fields)).Msg(msg)
}

// Error logs an error message
func (l *ZerologLogger) Error(ctx context.Context, msg string, err error, fields Fields) {
	l.zl.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

// WithFields returns a child logger sharing the same output.
// Closing the child does not close the output.
func (l *ZerologLogger) WithFields(fields Fields) Logger {
	return &ZerologLogger{
		zl: l.zl.With().Fields(map[string]interface{}(fields)).Logger(),
	}
}

// Close flushes and closes the log file, if any
func (l *ZerologLogger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func toZerolog(level Level) zerolog.Level {
	switch level {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
