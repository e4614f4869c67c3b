// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sessions owns every conversation record and is the sole mutator of
// session state.
//
// Each inbound turn runs an atomic update sequence under the session's own
// lock: append, score, extract, transition, escalate, reply, terminate.
// Unrelated sessions proceed in parallel. Finalization hands an immutable
// payload to the callback dispatcher and never blocks the request path.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lurelab/scamlure/agent"
	"github.com/lurelab/scamlure/datatypes"
	"github.com/lurelab/scamlure/detector"
	"github.com/lurelab/scamlure/extractor"
	"github.com/lurelab/scamlure/llmsafety"
	"github.com/lurelab/scamlure/observability"
)

// Termination reasons, also reported in agentNotes.
const (
	reasonRichIntel = "sufficient intelligence captured"
	reasonStalled   = "conversation stalled"
	reasonHardCap   = "turn limit reached"
	reasonIdle      = "counterpart went idle"
)

const (
	// richIntelKinds and richIntelTurns gate the rich-and-durable
	// termination criterion.
	richIntelKinds = 3
	richIntelTurns = 8
	// stallLimit is the consecutive no-new-intel turn count that ends a
	// conversation past richIntelTurns.
	stallLimit = 3
	// hardCapTurns ends any conversation regardless of yield.
	hardCapTurns = 15

	maxStrategyLevel = 3

	// llmExtractScoreFloor gates the LLM extraction fallback: it runs only
	// when the deterministic patterns found nothing on a message at least
	// this suspicious (or one carrying payment terms).
	llmExtractScoreFloor = 0.4

	// statusCompleted reports a deliberate finish (criteria A and B),
	// statusFinal a forced one (hard cap or idle reaper).
	statusCompleted = "completed"
	statusFinal     = "final"
)

// closingReply is returned for turns arriving after finalization.
const closingReply = "Thank you for your patience, but I have to go now. Goodbye."

// fallbackReply keeps the conversation alive when reply generation fails
// unexpectedly.
const fallbackReply = "I'm sorry, I didn't catch that. Could you repeat?"

// Dispatcher delivers a finalization payload asynchronously.
type Dispatcher interface {
	Dispatch(payload datatypes.FinalCallbackPayload)
}

// Stats is the aggregate view served by the stats endpoint.
type Stats struct {
	ActiveSessions    int `json:"activeSessions"`
	FinalizedSessions int `json:"finalizedSessions"`
	ScamsDetected     int `json:"scamsDetected"`
	ArtifactsCaptured int `json:"artifactsCaptured"`
}

// DebugSession is the full session view served by the debug endpoint.
type DebugSession struct {
	*datatypes.Session
	Intelligence datatypes.ExtractedIntelligence `json:"intelligence"`
	Keywords     []string                        `json:"suspiciousKeywords"`
}

type sessionEntry struct {
	mu sync.Mutex
	s  *datatypes.Session
}

// Config carries the manager's collaborators and tuning.
type Config struct {
	Detector     *detector.Detector
	Classifier   *detector.Classifier
	Extractor    *extractor.Extractor
	LLMExtractor *extractor.LLMExtractor
	Agent        *agent.Agent
	Dispatcher   Dispatcher
	Clock        llmsafety.Clock
	Logger       *slog.Logger

	IdleTimeout  time.Duration
	ReapInterval time.Duration
}

type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	det    *detector.Detector
	cls    *detector.Classifier
	ext    *extractor.Extractor
	llmExt *extractor.LLMExtractor
	agent  *agent.Agent
	disp   Dispatcher
	clock  llmsafety.Clock
	logger *slog.Logger

	idleTimeout  time.Duration
	reapInterval time.Duration
	done         chan struct{}
	reapOnce     sync.Once
	stopOnce     sync.Once

	statsMu   sync.Mutex
	finalized int
	scams     int
}

func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = llmsafety.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 5 * time.Second
	}
	return &Manager{
		sessions:     make(map[string]*sessionEntry),
		det:          cfg.Detector,
		cls:          cfg.Classifier,
		ext:          cfg.Extractor,
		llmExt:       cfg.LLMExtractor,
		agent:        cfg.Agent,
		disp:         cfg.Dispatcher,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		idleTimeout:  cfg.IdleTimeout,
		reapInterval: cfg.ReapInterval,
		done:         make(chan struct{}),
	}
}

// HandleMessage runs the atomic per-turn sequence and returns the outbound
// reply. The caller has already validated the request shape.
func (m *Manager) HandleMessage(ctx context.Context, req datatypes.HoneypotRequest) string {
	e := m.entry(req.SessionID, req.Metadata)

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.s
	if s.State == datatypes.StateFinalized {
		return closingReply
	}

	now := m.clock.Now()
	text := req.Message.Text
	ts := req.Message.Timestamp
	if ts == 0 {
		ts = now.UnixMilli()
	}

	// 1. Record the inbound turn.
	s.History = append(s.History, datatypes.Message{
		Sender: datatypes.SenderScammer, Text: text, Timestamp: ts,
	})
	s.MessageCount++
	s.LastActivityAt = now

	// 2. Rule scoring, with an optional LLM refinement for non-trivial
	// hits.
	res := m.det.Score(text)
	if m.cls != nil && res.RuleScore >= 0.25 {
		res = m.cls.Refine(ctx, text, res)
	}

	// 3. Deterministic extraction over the inbound text plus a short
	// stitching window of prior turns.
	prior := priorWindow(s.History)
	candidates := m.ext.Extract(text, prior)

	// The LLM layer only backstops messages that themselves look
	// suspicious, so a zero-signal turn never spends a model call even in
	// a confirmed session.
	if len(candidates) == 0 && m.llmExt != nil &&
		(res.RuleScore >= llmExtractScoreFloor || res.HasPaymentTerms) {
		candidates = m.llmExt.Extract(ctx, text)
	}

	newArtifact := false
	var newKinds []datatypes.IntelKind
	for _, c := range candidates {
		wasMissing := !s.Intel.Has(c.Kind)
		if s.Intel.Add(c.Kind, c.Value, s.MessageCount, c.Source, c.Confidence) {
			newArtifact = true
			observability.ObserveArtifact(string(c.Kind))
			if wasMissing {
				newKinds = append(newKinds, c.Kind)
			}
		}
	}

	// 4. Fold tactics and lexicon keywords into the session record.
	for _, t := range res.Tactics {
		s.TacticsSeen = appendUnique(s.TacticsSeen, t)
	}
	for _, kw := range res.Keywords {
		if s.Intel.Add(datatypes.KindKeyword, kw, s.MessageCount, extractor.SourceLayer1, 1.0) {
			newArtifact = true
		}
	}

	// 5. Stall bookkeeping, folded in after keyword merge so lexicon hits
	// count as yield too.
	switch {
	case newArtifact:
		s.LastNewIntelTurn = s.MessageCount
		s.StallTurns = 0
	case len(candidates) > 0:
		if s.StallTurns > 0 {
			s.StallTurns--
		}
	default:
		s.StallTurns++
	}

	// 6. Suspicion accumulation, frozen once the scam is confirmed.
	if !s.IsScam {
		m.accumulateSuspicion(s, res)
	}

	// 7. A confirmed scam moves to extraction once the conversation has any
	// depth or yield.
	if s.IsScam && s.State == datatypes.StateScamDetected &&
		(s.MessageCount >= 2 || len(newKinds) > 0) {
		s.AdvanceState(datatypes.StateExtracting)
	}

	// 8. Strategy ladder, gated to avoid early aggression.
	if s.MessageCount >= 4 && s.MessageCount-s.LastNewIntelTurn >= 2 &&
		s.StrategyLevel < maxStrategyLevel {
		s.StrategyLevel++
	}

	// 9. Outbound reply.
	reply := m.agent.Reply(ctx, s, text, newKinds, res.IsPromptInjection)
	if strings.TrimSpace(reply) == "" {
		reply = fallbackReply
	}

	// 10. Record it.
	s.History = append(s.History, datatypes.Message{
		Sender: datatypes.SenderHoneypot, Text: reply, Timestamp: now.UnixMilli(),
	})

	// 11. Termination check for this turn.
	m.evaluateTermination(s, now)

	m.logger.Info("turn processed",
		"sessionId", s.SessionID,
		"turn", s.MessageCount,
		"state", string(s.State),
		"suspicionScore", s.SuspicionScore,
		"isScam", s.IsScam,
		"newArtifacts", len(newKinds),
		"strategyLevel", s.StrategyLevel)

	return reply
}

// accumulateSuspicion applies the per-turn evidence terms and flips the scam
// verdict when a threshold or shortcut is met. Caller holds the session lock
// and has already checked that the score is not frozen.
func (m *Manager) accumulateSuspicion(s *datatypes.Session, res detector.Result) {
	repeated := 0.0
	if containsTactic(res.Tactics, "credentialRequest") {
		s.CredentialAsks++
		if s.CredentialAsks >= 2 {
			repeated = 1.0
		}
	}

	delta := 0.4*res.RuleScore +
		0.2*boolTerm(res.HasUrgency) +
		0.2*boolTerm(res.HasPaymentTerms) +
		0.3*repeated
	s.SuspicionScore = clampScore(s.SuspicionScore + delta)

	if res.RuleScore >= 0.7 || s.SuspicionScore > 1.2 || res.ShortCircuit {
		s.IsScam = true
		if s.ScamType == "unknown" || s.ScamType == "" || s.ScamType == "generic" {
			s.ScamType = res.ScamType
		}
		s.Persona = agent.SelectPersona(s.ScamType)
		s.AdvanceState(datatypes.StateScamDetected)
		m.statsMu.Lock()
		m.scams++
		m.statsMu.Unlock()
		observability.ObserveScamConfirmed(s.ScamType)
		m.logger.Info("scam confirmed",
			"sessionId", s.SessionID,
			"turn", s.MessageCount,
			"scamType", s.ScamType,
			"suspicionScore", s.SuspicionScore,
			"shortCircuit", res.ShortCircuit)
	} else if s.State == datatypes.StateInit {
		s.AdvanceState(datatypes.StateEngaging)
	}
}

// evaluateTermination applies the criteria in fixed order; the first match
// finalizes the session. Caller holds the session lock.
func (m *Manager) evaluateTermination(s *datatypes.Session, now time.Time) {
	switch {
	case s.Intel.KindsCaptured() >= richIntelKinds && s.MessageCount >= richIntelTurns:
		m.finalize(s, statusCompleted, reasonRichIntel, now)
	case s.StallTurns >= stallLimit && s.MessageCount >= richIntelTurns:
		m.finalize(s, statusCompleted, reasonStalled, now)
	case s.MessageCount >= hardCapTurns:
		m.finalize(s, statusFinal, reasonHardCap, now)
	}
}

// finalize flips the session terminal exactly once and hands the payload to
// the dispatcher. Caller holds the session lock.
func (m *Manager) finalize(s *datatypes.Session, status, reason string, now time.Time) {
	if s.FinalizedNotified {
		return
	}
	s.FinalizedNotified = true
	s.AdvanceState(datatypes.StateFinalized)

	payload := datatypes.FinalCallbackPayload{
		SessionID:             s.SessionID,
		Status:                status,
		ScamDetected:          s.IsScam,
		ExtractedIntelligence: datatypes.IntelligenceFromGraph(s.Intel),
		EngagementMetrics: datatypes.EngagementMetrics{
			TotalMessagesExchanged:    s.MessageCount,
			EngagementDurationSeconds: int(now.Sub(s.CreatedAt).Seconds()),
		},
		AgentNotes: buildAgentNotes(s, reason, now),
	}

	m.statsMu.Lock()
	m.finalized++
	m.statsMu.Unlock()
	observability.ObserveFinalized(status)

	m.logger.Info("session finalized",
		"sessionId", s.SessionID,
		"status", status,
		"reason", reason,
		"turns", s.MessageCount,
		"artifacts", s.Intel.TotalItems())

	if m.disp != nil {
		m.disp.Dispatch(payload)
	}
}

// buildAgentNotes produces the single prose paragraph attached to the
// callback.
func buildAgentNotes(s *datatypes.Session, reason string, now time.Time) string {
	tactics := "none observed"
	if sorted := detector.SortTacticsForNotes(s.TacticsSeen); len(sorted) > 0 {
		tactics = strings.Join(sorted, ", ")
	}
	language := s.Language
	if language == "" {
		language = "English"
	}
	verdict := "was not confirmed as a scam"
	if s.IsScam {
		verdict = fmt.Sprintf("was confirmed as a likely %s scam", s.ScamType)
	}
	return fmt.Sprintf(
		"Conversation %s over %d scammer turns lasting %d seconds; it %s. "+
			"Observed tactics: %s. Aggression level %d of %d. Language: %s. "+
			"Captured %d artifacts across %d intelligence kinds. Session ended because %s.",
		s.SessionID, s.MessageCount, int(now.Sub(s.CreatedAt).Seconds()), verdict,
		tactics, s.StrategyLevel, maxStrategyLevel, language,
		s.Intel.TotalItems(), s.Intel.KindsCaptured(), reason)
}

// entry returns the session record, creating it on first contact.
func (m *Manager) entry(sessionID string, meta *datatypes.Metadata) *sessionEntry {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok = m.sessions[sessionID]; ok {
		return e
	}
	s := datatypes.NewSession(sessionID, m.clock.Now())
	if meta != nil {
		s.Channel = meta.Channel
		s.Language = meta.Language
	}
	e = &sessionEntry{s: s}
	m.sessions[sessionID] = e
	m.logger.Info("session created", "sessionId", sessionID, "channel", s.Channel)
	return e
}

// Snapshot returns aggregate counters for the stats endpoint.
func (m *Manager) Snapshot() Stats {
	m.mu.RLock()
	total := len(m.sessions)
	artifacts := 0
	for _, e := range m.sessions {
		e.mu.Lock()
		artifacts += e.s.Intel.TotalItems()
		e.mu.Unlock()
	}
	m.mu.RUnlock()

	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return Stats{
		ActiveSessions:    total - m.finalized,
		FinalizedSessions: m.finalized,
		ScamsDetected:     m.scams,
		ArtifactsCaptured: artifacts,
	}
}

// Debug returns a deep-enough copy of one session for the debug endpoint.
func (m *Manager) Debug(sessionID string) (DebugSession, bool) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return DebugSession{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	copied := *e.s
	copied.History = append([]datatypes.Message(nil), e.s.History...)
	copied.TacticsSeen = append([]string(nil), e.s.TacticsSeen...)
	return DebugSession{
		Session:      &copied,
		Intelligence: datatypes.IntelligenceFromGraph(e.s.Intel),
		Keywords:     e.s.Intel.Values(datatypes.KindKeyword),
	}, true
}

func priorWindow(history []datatypes.Message) []datatypes.Message {
	// The inbound message is already appended; stitching looks at up to the
	// four turns (eight messages) before it.
	prior := history[:len(history)-1]
	if len(prior) > 8 {
		prior = prior[len(prior)-8:]
	}
	return prior
}

func containsTactic(tactics []string, name string) bool {
	for _, t := range tactics {
		if t == name {
			return true
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func boolTerm(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 2.0 {
		return 2.0
	}
	return v
}
