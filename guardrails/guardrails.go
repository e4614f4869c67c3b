// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package guardrails validates and sanitizes generated replies.
//
// Two concerns live here: detecting prompt-injection attempts in inbound
// scammer text, and stripping persona-breaking tokens from outbound replies.
// Sanitization is inline and bounded; there is no regeneration loop.
package guardrails

import (
	"log/slog"
	"regexp"
	"strings"
)

// injectionPatterns match meta-instructions aimed at subverting the persona.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(?:all\s+)?(?:previous|prior|your|the)\s+instructions?`),
	regexp.MustCompile(`(?i)(?:repeat|print|show|reveal)\s+your\s+(?:system\s+)?(?:prompt|instructions?|rules)`),
	regexp.MustCompile(`(?i)what\s+(?:is|are)\s+your\s+(?:system\s+)?(?:prompt|instructions?)`),
	regexp.MustCompile(`(?i)are\s+you\s+(?:an?\s+)?(?:ai|bot|robot|machine)\b`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(?:a|an)\s+`),
	regexp.MustCompile(`(?i)act\s+as\s+(?:a|an)\s+`),
	regexp.MustCompile(`(?i)stop\s+(?:roleplay|acting|pretending)`),
	regexp.MustCompile(`(?i)exit\s+(?:roleplay|character|persona)`),
	regexp.MustCompile(`(?i)forget\s+everything`),
	regexp.MustCompile(`(?i)system\s+override`),
	regexp.MustCompile(`(?i)admin\s+(?:mode|access|override)`),
	regexp.MustCompile(`(?i)who\s+trained\s+you`),
}

// forbiddenTokens are persona-breaking tokens. Any sentence containing one is
// dropped from the reply. Patterns are word-boundary aware so that words like
// "maid" or "robots" in legitimate text stay untouched where possible.
var forbiddenTokens = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bai\b`),
	regexp.MustCompile(`(?i)\bbot\b`),
	regexp.MustCompile(`(?i)\blanguage\s+model\b`),
	regexp.MustCompile(`(?i)\bsystem\s+prompt\b`),
	regexp.MustCompile(`(?i)\bas\s+an\s+assistant\b`),
	regexp.MustCompile(`(?i)\bhoneypot\b`),
	regexp.MustCompile(`(?i)\bscam\s+detection\b`),
}

// safeDeflections are persona-consistent replies used when the inbound text
// is a prompt-injection attempt. None of them mention prompts, systems, or
// instructions.
var safeDeflections = []string{
	"I'm sorry dear, you've lost me there. Are you still helping me with the verification?",
	"That doesn't make any sense to me. Can we get back to what we were doing?",
	"Are you alright? You sound very different all of a sudden. What should I do next?",
	"I don't follow all that technical talk. Please speak simply, what do I need to do?",
	"My screen must be acting up, I didn't understand any of that. Where were we?",
}

var sentenceSplit = regexp.MustCompile(`(?s)[^.!?]+[.!?]?`)

// Guardrails is stateless and safe for concurrent use.
type Guardrails struct{}

func New() *Guardrails { return &Guardrails{} }

// DetectPromptInjection reports whether text contains a meta-instruction
// attempting to break the persona.
func (g *Guardrails) DetectPromptInjection(text string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			slog.Warn("prompt injection detected", "pattern", p.String())
			return true
		}
	}
	return false
}

// Deflection returns a deterministic persona-safe deflection. The turn
// number picks the variant so repeated injections don't repeat the reply.
func (g *Guardrails) Deflection(turn int) string {
	if turn < 0 {
		turn = 0
	}
	return safeDeflections[turn%len(safeDeflections)]
}

// Sanitize removes sentences containing forbidden tokens from response. When
// isInjection is true the whole response is replaced with a safe deflection
// for the given turn. If nothing survives token stripping, the fallback is
// returned instead.
func (g *Guardrails) Sanitize(response string, isInjection bool, turn int, fallback string) string {
	if isInjection {
		return g.Deflection(turn)
	}

	if !containsForbidden(response) {
		return response
	}

	sentences := sentenceSplit.FindAllString(response, -1)
	var kept []string
	for _, s := range sentences {
		if containsForbidden(s) {
			slog.Warn("removed sentence with forbidden token")
			continue
		}
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}

	cleaned := strings.Join(kept, " ")
	if strings.TrimSpace(cleaned) == "" {
		if fallback != "" {
			return fallback
		}
		return safeDeflections[0]
	}
	return cleaned
}

// StripInstructions neutralizes injection phrases inside text bound for an
// LLM prompt, replacing each with a neutral placeholder. The sanitized text
// and whether anything was replaced are returned.
func (g *Guardrails) StripInstructions(text string) (string, bool) {
	modified := false
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			text = p.ReplaceAllString(text, "[unclear request]")
			modified = true
		}
	}
	return text, modified
}

func containsForbidden(s string) bool {
	for _, p := range forbiddenTokens {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
