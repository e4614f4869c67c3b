// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package templates selects the seed sentence for each honeypot reply.
//
// Category choice is a fixed priority cascade; the entry within a category is
// picked deterministically from the turn number, so a replayed conversation
// produces identical output.
package templates

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lurelab/scamlure/datatypes"
	"github.com/lurelab/scamlure/templates/store"
)

// Category names one group of seed sentences.
type Category string

const (
	CategoryMissingAccount Category = "missingAccount"
	CategoryMissingIfsc    Category = "missingIfsc"
	CategoryMissingUpi     Category = "missingUpi"
	CategoryMissingLink    Category = "missingLink"
	CategoryMissingPhone   Category = "missingPhone"
	CategoryMissingEmail   Category = "missingEmail"
	CategoryNeedBackup     Category = "needBackup"
	CategoryVagueProbe     Category = "vagueProbe"
	CategoryUrgencyEcho    Category = "urgencyEcho"
	CategoryCredentialFlip Category = "credentialFlip"
)

// loopPrefixLen is how many lowercased leading characters two replies must
// share to count as a repetition.
const loopPrefixLen = 25

var (
	credentialCueRe = regexp.MustCompile(`(?i)\b(?:otp|pin|cvv|password|passcode)\b`)
	urgencyCueRe    = regexp.MustCompile(`(?i)\b(?:urgent|urgently|immediately|hurry|right\s+now|asap|expire[sd]?|blocked|suspend(?:ed)?|last\s+chance|final\s+warning)\b`)
)

var kindCategory = map[datatypes.IntelKind]Category{
	datatypes.KindBankAccount: CategoryMissingAccount,
	datatypes.KindIFSCCode:    CategoryMissingIfsc,
	datatypes.KindUPIID:       CategoryMissingUpi,
	datatypes.KindLink:        CategoryMissingLink,
	datatypes.KindPhoneNumber: CategoryMissingPhone,
	datatypes.KindEmail:       CategoryMissingEmail,
}

// Query carries everything the selection cascade needs for one turn.
type Query struct {
	Intel        *datatypes.IntelGraph
	Inbound      string
	Recent       []datatypes.Message
	MessageCount int
	// NewKinds are the intel kinds that gained their first artifact on this
	// turn.
	NewKinds []datatypes.IntelKind
}

// Selection is a chosen seed sentence plus enough context for the agent to
// re-pick a sibling when the reply loops.
type Selection struct {
	Category Category
	Text     string
	// TargetKind is the kind the sentence asks for, empty for non-ladder
	// categories.
	TargetKind datatypes.IntelKind
}

// Engine is immutable after New and safe for concurrent use.
type Engine struct {
	byCategory map[Category][]string
}

func New() (*Engine, error) {
	raw := make(map[string][]string)
	if err := yaml.Unmarshal(store.HoneypotTemplates, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the template store: %w", err)
	}
	e := &Engine{byCategory: make(map[Category][]string, len(raw))}
	for name, entries := range raw {
		if len(entries) == 0 {
			return nil, fmt.Errorf("template category %q is empty", name)
		}
		e.byCategory[Category(name)] = entries
	}
	for _, required := range []Category{
		CategoryMissingAccount, CategoryMissingIfsc, CategoryMissingUpi,
		CategoryMissingLink, CategoryMissingPhone, CategoryNeedBackup,
		CategoryVagueProbe, CategoryUrgencyEcho, CategoryCredentialFlip,
	} {
		if _, ok := e.byCategory[required]; !ok {
			return nil, fmt.Errorf("template store is missing category %q", required)
		}
	}
	return e, nil
}

// Select walks the priority cascade and returns the seed sentence for this
// turn.
func (e *Engine) Select(q Query) Selection {
	cat, kind := e.pickCategory(q)
	return Selection{
		Category:   cat,
		Text:       e.entry(cat, q.MessageCount, nil),
		TargetKind: kind,
	}
}

func (e *Engine) pickCategory(q Query) (Category, datatypes.IntelKind) {
	missing := q.Intel.MissingPrimaryKinds()
	hasCredCue := credentialCueRe.MatchString(q.Inbound)
	hasUrgencyCue := urgencyCueRe.MatchString(q.Inbound)

	// A short, cue-free message gets a vague probe unless the ladder still
	// needs its top slots.
	shortAndVague := len(strings.TrimSpace(q.Inbound)) < 30 && !hasCredCue && !hasUrgencyCue

	if hasCredCue {
		return CategoryCredentialFlip, ""
	}
	if hasUrgencyCue && q.MessageCount >= 4 {
		return CategoryUrgencyEcho, ""
	}
	if q.Intel.PrimaryKindsCaptured() >= 1 && ladderSlotFilled(q.NewKinds) {
		return CategoryNeedBackup, ""
	}
	if shortAndVague && !ladderTopMissing(missing) {
		return CategoryVagueProbe, ""
	}
	if len(missing) > 0 {
		return kindCategory[missing[0]], missing[0]
	}
	return CategoryNeedBackup, ""
}

// ladderSlotFilled reports whether any primary kind gained its first artifact
// this turn.
func ladderSlotFilled(newKinds []datatypes.IntelKind) bool {
	for _, k := range newKinds {
		for _, p := range datatypes.PrimaryKinds {
			if k == p {
				return true
			}
		}
	}
	return false
}

// ladderTopMissing reports whether a kind above UPI in the ladder is still
// open.
func ladderTopMissing(missing []datatypes.IntelKind) bool {
	for _, k := range missing {
		if k == datatypes.KindBankAccount || k == datatypes.KindIFSCCode {
			return true
		}
	}
	return false
}

// Sibling re-picks within the same category, avoiding entries whose loop
// prefix appears in avoid. Returns the original text when every sibling is
// exhausted.
func (e *Engine) Sibling(cat Category, turn int, avoid []string) string {
	return e.entry(cat, turn+1, avoid)
}

// CategoryForKind maps an intel kind to its ladder category; ok is false for
// kinds with no dedicated ask.
func (e *Engine) CategoryForKind(kind datatypes.IntelKind) (Category, bool) {
	cat, ok := kindCategory[kind]
	return cat, ok
}

// LoopDetect reports whether candidate repeats one of the last three honeypot
// replies, by full-text match or by shared loop prefix.
func LoopDetect(candidate string, recent []datatypes.Message) bool {
	cand := strings.ToLower(strings.TrimSpace(candidate))
	candPrefix := loopPrefix(cand)

	seen := 0
	for i := len(recent) - 1; i >= 0 && seen < 3; i-- {
		if recent[i].Sender != datatypes.SenderHoneypot {
			continue
		}
		seen++
		prior := strings.ToLower(strings.TrimSpace(recent[i].Text))
		if prior == cand || loopPrefix(prior) == candPrefix {
			return true
		}
	}
	return false
}

func loopPrefix(s string) string {
	if len(s) > loopPrefixLen {
		return s[:loopPrefixLen]
	}
	return s
}

func (e *Engine) entry(cat Category, seed int, avoid []string) string {
	entries := e.byCategory[cat]
	if len(entries) == 0 {
		return ""
	}
	if seed < 0 {
		seed = -seed
	}
	for i := 0; i < len(entries); i++ {
		candidate := entries[(seed+i)%len(entries)]
		if !avoided(candidate, avoid) {
			return candidate
		}
	}
	return entries[seed%len(entries)]
}

func avoided(candidate string, avoid []string) bool {
	cand := loopPrefix(strings.ToLower(strings.TrimSpace(candidate)))
	for _, a := range avoid {
		if loopPrefix(strings.ToLower(strings.TrimSpace(a))) == cand {
			return true
		}
	}
	return false
}
