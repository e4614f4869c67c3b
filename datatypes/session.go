// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// SessionState is the session lifecycle state. Transitions are monotonic
// through the order below; skipping forward is allowed, regressing never.
type SessionState string

const (
	StateInit         SessionState = "INIT"
	StateEngaging     SessionState = "ENGAGING"
	StateScamDetected SessionState = "SCAM_DETECTED"
	StateExtracting   SessionState = "EXTRACTING"
	StateFinalized    SessionState = "FINALIZED"
)

// Rank orders states for monotonicity checks.
func (s SessionState) Rank() int {
	switch s {
	case StateInit:
		return 0
	case StateEngaging:
		return 1
	case StateScamDetected:
		return 2
	case StateExtracting:
		return 3
	case StateFinalized:
		return 4
	}
	return -1
}

// Persona is the fictional victim profile the honeypot impersonates for the
// whole session.
type Persona string

const (
	PersonaElderly    Persona = "elderly"
	PersonaEager      Persona = "eager"
	PersonaCautious   Persona = "cautious"
	PersonaTechNovice Persona = "techNovice"
)

// Session holds all mutable per-conversation state. The session manager is
// the sole mutator; all access goes through its per-session lock.
type Session struct {
	SessionID string       `json:"sessionId"`
	State     SessionState `json:"state"`

	MessageCount int         `json:"messageCount"`
	History      []Message   `json:"history"`
	Intel        *IntelGraph `json:"-"`

	SuspicionScore float64 `json:"suspicionScore"`
	IsScam         bool    `json:"isScam"`
	ScamType       string  `json:"scamType"`

	StrategyLevel    int `json:"strategyLevel"`
	LastNewIntelTurn int `json:"lastNewIntelTurn"`

	// StallTurns counts consecutive turns without new intel. Duplicate-only
	// extraction slows the growth instead of resetting it.
	StallTurns int `json:"stallTurns"`

	// TacticsSeen accumulates every tactic family the detector flagged over
	// the session, in first-seen order.
	TacticsSeen []string `json:"tacticsSeen,omitempty"`

	// CredentialAsks counts scammer turns containing credential requests;
	// used for the repeated-credential-request score term.
	CredentialAsks int `json:"-"`

	Persona  Persona `json:"persona"`
	Language string  `json:"language,omitempty"`
	Channel  string  `json:"channel,omitempty"`

	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`

	FinalizedNotified bool `json:"finalizedNotified"`
}

// NewSession creates a session in INIT with an empty intel graph.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		SessionID:      id,
		State:          StateInit,
		Intel:          NewIntelGraph(),
		Persona:        PersonaCautious,
		ScamType:       "unknown",
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// AdvanceState moves the session forward to next if that is not a
// regression. Returns true when the state actually changed.
func (s *Session) AdvanceState(next SessionState) bool {
	if next.Rank() <= s.State.Rank() {
		return false
	}
	s.State = next
	return true
}

// LastHoneypotReplies returns up to n most recent honeypot messages, newest
// last.
func (s *Session) LastHoneypotReplies(n int) []string {
	var replies []string
	for _, m := range s.History {
		if m.Sender == SenderHoneypot {
			replies = append(replies, m.Text)
		}
	}
	if len(replies) > n {
		replies = replies[len(replies)-n:]
	}
	return replies
}

// RecentHistory returns up to n most recent messages, newest last.
func (s *Session) RecentHistory(n int) []Message {
	if len(s.History) <= n {
		out := make([]Message, len(s.History))
		copy(out, s.History)
		return out
	}
	out := make([]Message, n)
	copy(out, s.History[len(s.History)-n:])
	return out
}
