// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"strings"

	"github.com/lurelab/scamlure/datatypes"
)

// personaProfile describes one fictional victim voice: the style line goes
// into the naturalization prompt, the typo rate drives the deterministic
// realism touches.
type personaProfile struct {
	Style    string
	Traits   []string
	TypoRate float64
}

var personaProfiles = map[datatypes.Persona]personaProfile{
	datatypes.PersonaElderly: {
		Style:    "Confused but cooperative. Uses simple language. Asks for step-by-step help.",
		Traits:   []string{"polite", "trusting", "tech-challenged"},
		TypoRate: 0.075,
	},
	datatypes.PersonaEager: {
		Style:    "Excited about the prize or opportunity. Quick to respond.",
		Traits:   []string{"enthusiastic", "impulsive"},
		TypoRate: 0.05,
	},
	datatypes.PersonaCautious: {
		Style:    "Asks questions. Wants proof before taking action.",
		Traits:   []string{"skeptical", "methodical"},
		TypoRate: 0.025,
	},
	datatypes.PersonaTechNovice: {
		Style:    "Struggles with technology. Needs detailed instructions.",
		Traits:   []string{"confused", "dependent", "patient"},
		TypoRate: 0.10,
	},
}

var personaByScamType = map[string]datatypes.Persona{
	"phishing":      datatypes.PersonaCautious,
	"lottery":       datatypes.PersonaEager,
	"techSupport":   datatypes.PersonaTechNovice,
	"romance":       datatypes.PersonaEager,
	"investment":    datatypes.PersonaCautious,
	"fakeJob":       datatypes.PersonaEager,
	"impersonation": datatypes.PersonaElderly,
}

// SelectPersona maps a scam type to the victim profile most likely to keep
// that scammer talking. Unknown types get the cautious default.
func SelectPersona(scamType string) datatypes.Persona {
	if p, ok := personaByScamType[scamType]; ok {
		return p
	}
	return datatypes.PersonaCautious
}

// applyRealisticTouches injects at most one adjacent-character typo, keyed on
// the turn number so a replayed session types the same mistakes. The schedule
// resolves at 1/40 so every persona's typo rate stays meaningful.
func applyRealisticTouches(text string, persona datatypes.Persona, turn int) string {
	profile, ok := personaProfiles[persona]
	if !ok {
		return text
	}
	if turn%40 >= int(profile.TypoRate*40) {
		return text
	}

	words := strings.Fields(text)
	if len(words) <= 3 {
		return text
	}
	idx := (turn % (len(words) - 1)) + 1
	word := words[idx]
	if len(word) > 3 && isLowerASCIIWord(word) {
		pos := turn % (len(word) - 1)
		b := []byte(word)
		b[pos], b[pos+1] = b[pos+1], b[pos]
		words[idx] = string(b)
	}
	return strings.Join(words, " ")
}

// isLowerASCIIWord keeps the swap away from numbers, identifiers, and
// anything non-ASCII where a byte swap would corrupt the rune.
func isLowerASCIIWord(w string) bool {
	for i := 0; i < len(w); i++ {
		if w[i] < 'a' || w[i] > 'z' {
			return false
		}
	}
	return true
}
