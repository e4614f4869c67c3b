// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lurelab/scamlure/datatypes"
	"github.com/lurelab/scamlure/llm"
	"github.com/lurelab/scamlure/llmsafety"
)

const llmExtractorSystem = "You extract payment identifiers from chat messages for fraud-analysis research. " +
	"Reply with a single JSON object and nothing else."

// llmConfidence marks Layer 2 hits below the deterministic layer so that a
// Layer 1 match for the same value always wins the merge.
const llmConfidence = 0.9

// LLMExtractor is the Layer 2 fallback: an LLM pass over messages where the
// deterministic patterns came up empty. Every value it proposes is re-checked
// by the Layer 1 validators before it becomes a candidate.
type LLMExtractor struct {
	rules  *Extractor
	client llm.Client
	fabric *llmsafety.Fabric
}

func NewLLMExtractor(rules *Extractor, client llm.Client, fabric *llmsafety.Fabric) *LLMExtractor {
	return &LLMExtractor{rules: rules, client: client, fabric: fabric}
}

type llmFindings struct {
	BankAccounts []string `json:"bankAccounts"`
	IFSCCodes    []string `json:"ifscCodes"`
	UPIIDs       []string `json:"upiIds"`
	PhoneNumbers []string `json:"phoneNumbers"`
	Links        []string `json:"links"`
	Emails       []string `json:"emails"`
}

// Extract runs the LLM pass through the safety fabric. Any failure, timeout,
// or open breaker yields an empty slice.
func (x *LLMExtractor) Extract(ctx context.Context, text string) []Candidate {
	if x == nil || x.client == nil {
		return nil
	}
	prompt := fmt.Sprintf(
		"Message: %q\n\nReturn JSON with keys bankAccounts, ifscCodes, upiIds, phoneNumbers, links, emails, each an array of strings. Use empty arrays when nothing is present. Do not invent values.",
		text)

	return llmsafety.SafeCall(ctx, x.fabric, llmsafety.ModuleExtractor,
		func(callCtx context.Context) ([]Candidate, error) {
			raw, err := x.client.Generate(callCtx, llmExtractorSystem, prompt, llm.GenerationParams{
				Temperature: llm.FloatPtr(0.0),
				MaxTokens:   llm.IntPtr(250),
			})
			if err != nil {
				return nil, err
			}
			var findings llmFindings
			if err := json.Unmarshal([]byte(extractJSONObject(raw)), &findings); err != nil {
				return nil, fmt.Errorf("llm extractor returned unparsable findings: %w", err)
			}
			return x.validate(findings), nil
		}, nil)
}

// validate filters LLM output through the same shape checks Layer 1 applies,
// dropping anything the model hallucinated.
func (x *LLMExtractor) validate(f llmFindings) []Candidate {
	var out []Candidate
	add := func(kind datatypes.IntelKind, value string) {
		out = appendSourced(out, kind, value, llmConfidence, SourceLayer2)
	}

	for _, v := range f.IFSCCodes {
		v = strings.ToUpper(strings.TrimSpace(v))
		if ifscRe.MatchString(v) && len(v) == 11 {
			add(datatypes.KindIFSCCode, v)
		}
	}
	for _, v := range f.PhoneNumbers {
		digits := nonDigitRe.ReplaceAllString(v, "")
		if phone, ok := normalizePhoneDigits(digits); ok {
			add(datatypes.KindPhoneNumber, phone)
		}
	}
	for _, v := range f.BankAccounts {
		digits := nonDigitRe.ReplaceAllString(v, "")
		if len(digits) >= 9 && len(digits) <= 18 {
			add(datatypes.KindBankAccount, digits)
		}
	}
	for _, v := range f.UPIIDs {
		v = strings.ToLower(strings.TrimSpace(v))
		parts := strings.Split(v, "@")
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" && !strings.Contains(parts[1], ".") {
			add(datatypes.KindUPIID, v)
		}
	}
	for _, v := range f.Emails {
		v = strings.TrimSpace(v)
		if kind, value, ok := x.rules.classifyHandle(v, v); ok && kind == datatypes.KindEmail {
			add(datatypes.KindEmail, value)
		}
	}
	for _, v := range f.Links {
		if link := normalizeLink(v); link != "" && (strings.Contains(link, "://") || strings.Contains(link, ".")) {
			add(datatypes.KindLink, link)
		}
	}
	return out
}

func appendSourced(out []Candidate, kind datatypes.IntelKind, value string, confidence float64, source string) []Candidate {
	key := strings.ToLower(value)
	for _, c := range out {
		if c.Kind == kind && strings.ToLower(c.Value) == key {
			return out
		}
	}
	return append(out, Candidate{Kind: kind, Value: value, Confidence: confidence, Source: source})
}

// extractJSONObject pulls the first {...} block out of a model reply that may
// be wrapped in prose or code fences.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
