// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm defines the model-client interface and its OpenAI-compatible
// implementation.
package llm

import "context"

// GenerationParams mirror the knobs the generator cares about. Nil fields
// leave the provider default in place.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client is the standard interface for any LLM backend.
type Client interface {
	Generate(ctx context.Context, system string, prompt string, params GenerationParams) (string, error)
}

func FloatPtr(v float32) *float32 { return &v }
func IntPtr(v int) *int           { return &v }
