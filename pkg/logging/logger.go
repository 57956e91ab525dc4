// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for the crosswalk pipeline.
//
// The pipeline is a batch job whose only operator-facing output is its
// log stream, so logging is deliberately simple: slog to stderr by
// default, with an optional JSON file sink for post-run inspection.
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("stage finished", "stage", "flatten", "controls", n)
//
// # File Logging
//
//	logger, err := logging.New(logging.Config{
//	    Level:   logging.LevelDebug,
//	    LogDir:  "out/logs",
//	    Service: "crosswalk",
//	})
//	defer logger.Close()
//
// File logs are named {service}_{YYYY-MM-DD}.log and are always JSON.
//
// # Log Levels
//
// Four levels are supported, matching slog conventions:
//
//   - Debug: development troubleshooting, verbose output
//   - Info: normal operations (stage start/end, artifact writes)
//   - Warn: recoverable issues (retry attempts, skipped units)
//   - Error: operation failures (but the run may continue)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a level name ("debug", "INFO", ...) to a Level.
// Unknown names fall back to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config configures the Logger. The zero value logs Info+ messages to
// stderr in text format.
type Config struct {
	// Level sets the minimum log level. Default: LevelInfo.
	Level Level

	// LogDir enables file logging to the given directory. The file is
	// named "{Service}_{YYYY-MM-DD}.log" in JSON format. The directory
	// is created with 0750 permissions if needed. Default: disabled.
	LogDir string

	// Service is included in every entry as the "service" attribute.
	Service string

	// JSON switches the stderr handler to JSON output. File logs are
	// always JSON regardless of this setting.
	JSON bool

	// Quiet disables stderr output entirely.
	Quiet bool
}

// Logger wraps slog.Logger with optional file output and cleanup.
// It is safe for concurrent use.
type Logger struct {
	*slog.Logger

	file *os.File
}

// New creates a Logger for the given configuration.
//
// The returned Logger must be closed with Close when file logging is
// enabled, so the file handle is released.
func New(config Config) (*Logger, error) {
	var handlers []slog.Handler
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	logger := &Logger{}

	if config.LogDir != "" {
		if err := os.MkdirAll(config.LogDir, 0750); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		service := config.Service
		if service == "" {
			service = "app"
		}
		name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
		f, err := os.OpenFile(filepath.Join(config.LogDir, name),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger.file = f
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	sl := slog.New(handler)
	if config.Service != "" {
		sl = sl.With("service", config.Service)
	}
	logger.Logger = sl
	return logger, nil
}

// Default returns a stderr-only Logger at Info level.
func Default() *Logger {
	l, _ := New(Config{})
	return l
}

// Close releases the log file handle, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
