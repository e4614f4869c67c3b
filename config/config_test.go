// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HONEYPOT_PORT", "HONEYPOT_API_KEY", "CALLBACK_URL", "CALLBACK_QUEUE_PATH",
		"LLM_ENABLED", "LLM_API_KEY", "LLM_MODEL", "LLM_BASE_URL",
		"LOG_LEVEL", "HONEYPOT_LOG_DIR", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultAPIKey, cfg.APIKey)
	assert.Empty(t, cfg.CallbackURL)
	assert.Equal(t, DefaultQueuePath, cfg.QueuePath)
	assert.False(t, cfg.LLMEnabled)
	assert.Equal(t, DefaultLLMModel, cfg.LLMModel)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HONEYPOT_PORT", "9090")
	t.Setenv("HONEYPOT_API_KEY", "a-much-longer-key")
	t.Setenv("CALLBACK_URL", `"https://platform.example.com/callback"`)
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "a-much-longer-key", cfg.APIKey)
	assert.Equal(t, "https://platform.example.com/callback", cfg.CallbackURL,
		"wrapping quotes from the environment are stripped")
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_LLMForcedOffWithoutCredential(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.LLMEnabled, "no credential, no LLM")

	t.Setenv("LLM_API_KEY", "sk-test-credential")
	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.LLMEnabled)
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric port", "HONEYPOT_PORT", "eighty"},
		{"short api key", "HONEYPOT_API_KEY", "tiny"},
		{"bad callback url", "CALLBACK_URL", "not a url"},
		{"unknown log level", "LOG_LEVEL", "loud"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
