// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agent produces the honeypot's outbound reply for each turn.
//
// A seed sentence is chosen by the template engine, optionally naturalized
// into the session persona's voice by the LLM, checked for loops, stability
// and extraction intent, decorated with deterministic realism touches, and
// finally sanitized by the guardrails. Every LLM failure degrades to the
// template, never to silence.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lurelab/scamlure/datatypes"
	"github.com/lurelab/scamlure/guardrails"
	"github.com/lurelab/scamlure/llm"
	"github.com/lurelab/scamlure/llmsafety"
	"github.com/lurelab/scamlure/templates"
)

const naturalizerSystem = "You rewrite one short chat message into a specific person's voice for a " +
	"role-play exercise. Keep the meaning and any question intact. Reply with the rewritten message only."

// kindNouns are the words the keyword check accepts as evidence that a
// naturalized reply still asks for the target artifact.
var kindNouns = map[datatypes.IntelKind][]string{
	datatypes.KindBankAccount: {"account"},
	datatypes.KindIFSCCode:    {"ifsc"},
	datatypes.KindUPIID:       {"upi"},
	datatypes.KindLink:        {"link", "website", "url"},
	datatypes.KindPhoneNumber: {"phone", "number", "mobile", "contact"},
	datatypes.KindEmail:       {"email"},
}

// Agent is safe for concurrent use; all per-turn state arrives via arguments.
type Agent struct {
	engine *templates.Engine
	guard  *guardrails.Guardrails
	client llm.Client
	fabric *llmsafety.Fabric
	logger *slog.Logger
}

func New(engine *templates.Engine, guard *guardrails.Guardrails, client llm.Client, fabric *llmsafety.Fabric, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{engine: engine, guard: guard, client: client, fabric: fabric, logger: logger}
}

// Reply generates the outbound message for one turn. newKinds lists the
// intel kinds first captured on this turn; isInjection is the detector's
// prompt-injection verdict for the inbound text.
func (a *Agent) Reply(ctx context.Context, s *datatypes.Session, inbound string, newKinds []datatypes.IntelKind, isInjection bool) string {
	turn := s.MessageCount

	if isInjection {
		return a.guard.Deflection(turn)
	}

	sel := a.engine.Select(templates.Query{
		Intel:        s.Intel,
		Inbound:      inbound,
		Recent:       s.RecentHistory(6),
		MessageCount: s.MessageCount,
		NewKinds:     newKinds,
	})

	candidate := sel.Text
	if a.shouldNaturalize(turn) {
		if naturalized := a.naturalize(ctx, s, inbound, sel); naturalized != "" {
			candidate = naturalized
		}
	}

	if templates.LoopDetect(candidate, s.History) {
		a.logger.Debug("reply loop detected, picking sibling template",
			"sessionId", s.SessionID, "category", string(sel.Category))
		candidate = a.engine.Sibling(sel.Category, turn, s.LastHoneypotReplies(2))
	}

	candidate = applyRealisticTouches(candidate, s.Persona, turn)
	return a.guard.Sanitize(candidate, false, turn, sel.Text)
}

// shouldNaturalize skips the LLM on the very first turn and whenever the
// generator lane is unavailable.
func (a *Agent) shouldNaturalize(turn int) bool {
	if a.client == nil || turn <= 1 {
		return false
	}
	return a.fabric.Available(llmsafety.ModuleGenerator)
}

// naturalize rewrites the seed sentence in the persona's voice. Returns ""
// when the rewrite fails validation, which sends the caller back to the
// template.
func (a *Agent) naturalize(ctx context.Context, s *datatypes.Session, inbound string, sel templates.Selection) string {
	profile := personaProfiles[s.Persona]

	// Inbound text goes into the prompt with injection phrasing neutralized.
	cleanInbound, stripped := a.guard.StripInstructions(inbound)
	if stripped {
		a.logger.Debug("stripped instruction phrasing from prompt input", "sessionId", s.SessionID)
	}

	var sb strings.Builder
	sb.WriteString("CHARACTER: ")
	sb.WriteString(string(s.Persona))
	sb.WriteString(". ")
	sb.WriteString(profile.Style)
	sb.WriteString("\n\nRECENT CONVERSATION:\n")
	for _, m := range s.RecentHistory(6) {
		who := "You"
		if m.Sender == datatypes.SenderScammer {
			who = "Them"
		}
		fmt.Fprintf(&sb, "%s: %s\n", who, m.Text)
	}
	fmt.Fprintf(&sb, "Them: %s\n", cleanInbound)
	fmt.Fprintf(&sb, "\nRewrite this message in the character's voice, keeping its request intact:\n%s", sel.Text)

	raw := llmsafety.SafeCall(ctx, a.fabric, llmsafety.ModuleGenerator,
		func(callCtx context.Context) (string, error) {
			return a.client.Generate(callCtx, naturalizerSystem, sb.String(), llm.GenerationParams{
				Temperature: llm.FloatPtr(0.65),
				MaxTokens:   llm.IntPtr(200),
				TopP:        llm.FloatPtr(0.95),
			})
		}, "")

	raw = strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	if raw == "" {
		return ""
	}
	if !stableReply(raw) {
		a.logger.Debug("naturalized reply failed stability check", "sessionId", s.SessionID)
		return ""
	}
	if !keepsExtractionAsk(raw, sel.TargetKind) {
		a.logger.Debug("naturalized reply dropped the extraction ask", "sessionId", s.SessionID)
		return ""
	}
	return raw
}

// keepsExtractionAsk verifies a rewrite still asks for something: the target
// kind's noun, a second-person possessive, or at least a question.
func keepsExtractionAsk(text string, kind datatypes.IntelKind) bool {
	lower := strings.ToLower(text)
	for _, noun := range kindNouns[kind] {
		if strings.Contains(lower, noun) {
			return true
		}
	}
	return strings.Contains(lower, "your") || strings.Contains(text, "?")
}
