// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import "strings"

// Persona rigidity limits for naturalized replies.
const (
	maxReplyWords = 150
	maxApologies  = 2
)

// leakagePhrases are self-references a victim persona would never produce.
var leakagePhrases = []string{
	"as an ai",
	"i am an ai",
	"i'm a language model",
	"as a language model",
	"i don't have",
	"i cannot",
	"i'm not able to",
	"my purpose is",
	"i was trained",
	"my training",
}

// analyticalPhrases read like a report, not a chat message.
var analyticalPhrases = []string{
	"it appears that",
	"upon analysis",
	"this suggests",
	"based on the information",
	"from my perspective",
	"in my assessment",
}

// stableReply rejects LLM output that breaks the persona: too long, too
// apologetic, AI leakage, or analytical tone.
func stableReply(text string) bool {
	lower := strings.ToLower(text)

	if len(strings.Fields(text)) > maxReplyWords {
		return false
	}

	apologies := 0
	for _, w := range []string{"sorry", "apologize", "apologies"} {
		if strings.Contains(lower, w) {
			apologies++
		}
	}
	if apologies > maxApologies {
		return false
	}

	for _, p := range leakagePhrases {
		if strings.Contains(lower, p) {
			return false
		}
	}
	for _, p := range analyticalPhrases {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}
