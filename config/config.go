// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the service configuration from the
// environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Defaults used when the environment leaves a knob unset. The API key
// default exists for local development only and must be overridden in any
// real deployment.
const (
	DefaultPort      = "8080"
	DefaultAPIKey    = "honeypot-dev-key"
	DefaultQueuePath = "callback_queue.jsonl"
	DefaultLogLevel  = "info"
	DefaultLLMModel  = "gpt-4o-mini"
)

// Config is the fully resolved service configuration.
type Config struct {
	Port   string `validate:"required,numeric"`
	APIKey string `validate:"required,min=8"`

	// CallbackURL may be empty in development; finalization payloads then
	// go to the retry queue only.
	CallbackURL string `validate:"omitempty,url"`
	QueuePath   string `validate:"required"`

	LLMEnabled bool
	LLMAPIKey  string
	LLMModel   string
	LLMBaseURL string `validate:"omitempty,url"`

	LogLevel     string `validate:"oneof=debug info warn error"`
	LogDir       string
	OTELEndpoint string
}

// Load resolves the configuration from environment variables and validates
// it. An absent LLM credential forces the LLM off regardless of LLM_ENABLED.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         envOr("HONEYPOT_PORT", DefaultPort),
		APIKey:       envOr("HONEYPOT_API_KEY", DefaultAPIKey),
		CallbackURL:  strings.Trim(os.Getenv("CALLBACK_URL"), "\"' "),
		QueuePath:    envOr("CALLBACK_QUEUE_PATH", DefaultQueuePath),
		LLMEnabled:   strings.EqualFold(envOr("LLM_ENABLED", "false"), "true"),
		LLMAPIKey:    os.Getenv("LLM_API_KEY"),
		LLMModel:     envOr("LLM_MODEL", DefaultLLMModel),
		LLMBaseURL:   strings.Trim(os.Getenv("LLM_BASE_URL"), "\"' "),
		LogLevel:     strings.ToLower(envOr("LOG_LEVEL", DefaultLogLevel)),
		LogDir:       os.Getenv("HONEYPOT_LOG_DIR"),
		OTELEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.LLMAPIKey == "" {
		cfg.LLMEnabled = false
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
