// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for the honeypot service.
//
// Built on the standard library slog package with two destinations:
//
//   - Default: JSON to stdout, for container log collection
//   - Optional: a JSON log file per service and day, with automatic
//     directory creation
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   "info",
//	    Service: "honeypot",
//	})
//	defer logger.Close()
//	logger.Info("session created", "sessionId", id)
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Extracted
// artifacts are intelligence, not secrets, and may be logged; API keys and
// LLM credentials must not be.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config controls logger construction.
type Config struct {
	// Level is one of debug, info, warn, error. Unknown values fall back to
	// info.
	Level string

	// LogDir enables file logging when non-empty. The directory is created
	// if missing.
	LogDir string

	// Service names the log file: {service}_{date}.log.
	Service string

	// Writer overrides the primary destination. Defaults to stdout.
	Writer io.Writer
}

// Logger wraps slog.Logger with an optional file destination.
//
// Safe for concurrent use. Close flushes and closes the file when one was
// opened.
type Logger struct {
	*slog.Logger

	mu   sync.Mutex
	file *os.File
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a Logger from the config. File-open failures degrade to
// stdout-only logging rather than failing startup.
func New(cfg Config) *Logger {
	primary := cfg.Writer
	if primary == nil {
		primary = os.Stdout
	}
	if cfg.Service == "" {
		cfg.Service = "honeypot"
	}

	l := &Logger{}
	dest := primary

	if cfg.LogDir != "" {
		if f, err := openLogFile(cfg.LogDir, cfg.Service); err != nil {
			fmt.Fprintf(os.Stderr, "logging: file destination disabled: %v\n", err)
		} else {
			l.file = f
			dest = io.MultiWriter(primary, f)
		}
	}

	l.Logger = slog.New(slog.NewJSONHandler(dest, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	})).With("service", cfg.Service)
	return l
}

// Close releases the file destination if one is open. Idempotent.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func openLogFile(dir, service string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
