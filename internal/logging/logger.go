// Package logging provides structured, file-only logging for the worker.
// Stdout is reserved for the IPC protocol and stderr is dropped by the
// front end that spawns the worker, so unlike the teacher's own logger
// this one never writes to either.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging levels.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Logger wraps zerolog with file-only output.
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string
}

// Config holds logger configuration.
type Config struct {
	LogDir string   // Directory for the log file, typically <dll_dir>
	Level  LogLevel // Minimum log level (default: debug)
}

// DefaultConfig returns sensible defaults, logging to the current
// directory — callers should set LogDir to the worker's dll_dir once
// Init has been received.
func DefaultConfig() *Config {
	return &Config{
		LogDir: ".",
		Level:  LevelDebug,
	}
}

// New creates a new Logger writing to <dir>/ghost-speaker-worker.log.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(cfg.LogDir, "ghost-speaker-worker.log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	level := zerolog.DebugLevel
	switch cfg.Level {
	case LevelInfo:
		level = zerolog.InfoLevel
	case LevelWarn:
		level = zerolog.WarnLevel
	case LevelError:
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	zlog := zerolog.New(file).With().
		Timestamp().
		Str("app", "ghostspeaker").
		Logger()

	logger := &Logger{
		zlog:    zlog,
		file:    file,
		logPath: logPath,
	}
	logger.zlog.Info().Str("log_file", logPath).Msg("logger initialized")
	return logger, nil
}

// GetLogPath returns the current log file path.
func (l *Logger) GetLogPath() string {
	return l.logPath
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.zlog.Info().Msg("logger shutting down")
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Component returns a zerolog.Logger with the component field set, the
// sub-logger every package in the worker builds its own logger from.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}
