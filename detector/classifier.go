// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lurelab/scamlure/llm"
	"github.com/lurelab/scamlure/llmsafety"
)

const classifierSystem = "You label short chat messages for fraud-analysis research. " +
	"Reply with a single JSON object and nothing else."

// Classifier optionally refines a rule-based Result with an LLM verdict.
// The refinement may adjust Tactics, ScamType, and ExtractionIntent; the
// rule score is never touched.
type Classifier struct {
	client llm.Client
	fabric *llmsafety.Fabric
}

func NewClassifier(client llm.Client, fabric *llmsafety.Fabric) *Classifier {
	return &Classifier{client: client, fabric: fabric}
}

type classifierVerdict struct {
	Tactics          []string `json:"tactics"`
	ScamType         string   `json:"scamType"`
	ExtractionIntent bool     `json:"extractionIntent"`
}

// Refine runs the LLM classifier through the safety fabric. On any failure
// the rule result comes back unchanged.
func (c *Classifier) Refine(ctx context.Context, text string, base Result) Result {
	if c == nil || c.client == nil {
		return base
	}
	prompt := fmt.Sprintf(
		"Message: %q\n\nReturn JSON with keys tactics (array of strings), scamType (string), extractionIntent (bool).",
		text)

	refined := llmsafety.SafeCall(ctx, c.fabric, llmsafety.ModuleClassifier,
		func(callCtx context.Context) (Result, error) {
			raw, err := c.client.Generate(callCtx, classifierSystem, prompt, llm.GenerationParams{
				Temperature: llm.FloatPtr(0.0),
				MaxTokens:   llm.IntPtr(150),
			})
			if err != nil {
				return base, err
			}
			var verdict classifierVerdict
			if err := json.Unmarshal([]byte(extractJSON(raw)), &verdict); err != nil {
				return base, fmt.Errorf("classifier returned unparsable verdict: %w", err)
			}
			out := base
			for _, t := range verdict.Tactics {
				out.Tactics = appendUnique(out.Tactics, t)
			}
			if verdict.ScamType != "" && base.ScamType == "generic" {
				out.ScamType = verdict.ScamType
			}
			out.ExtractionIntent = out.ExtractionIntent || verdict.ExtractionIntent
			return out, nil
		}, base)

	return refined
}

// extractJSON pulls the first {...} block out of a model reply that may be
// wrapped in prose or code fences.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
