// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extractor pulls typed artifacts (bank accounts, IFSC codes, UPI
// IDs, phone numbers, links, email addresses) out of scammer messages.
//
// Layer 1 is deterministic pattern matching with context-aware validation.
// Layer 2 is an optional LLM pass, gated by the safety fabric, invoked only
// when Layer 1 found nothing in a suspicious message. Both layers share the
// same validators; Layer 1 values supersede Layer 2 on conflict.
package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lurelab/scamlure/datatypes"
	"github.com/lurelab/scamlure/extractor/patterns"
)

// Candidate is one extracted artifact before it is merged into a session's
// intel graph. Value is already normalized.
type Candidate struct {
	Kind       datatypes.IntelKind
	Value      string
	Confidence float64
	Source     string
}

const (
	SourceLayer1 = "layer1"
	SourceLayer2 = "layer2"

	// contextRadius is the character window used for cue lookups around a
	// match.
	contextRadius = 30
)

type vocabFile struct {
	UPIProviders     []string `yaml:"upiProviders"`
	LinkShorteners   []string `yaml:"linkShorteners"`
	LinkContextVerbs []string `yaml:"linkContextVerbs"`
	PhoneCues        []string `yaml:"phoneCues"`
	AccountCues      []string `yaml:"accountCues"`
}

var (
	ifscRe     = regexp.MustCompile(`\b[A-Z]{4}0[A-Z0-9]{6}\b`)
	emailishRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9][A-Za-z0-9.-]*`)
	urlRe      = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"]+|\bwww\.[a-zA-Z0-9-]+\.[a-zA-Z]{2,}[^\s<>"]*`)
	// digitRunRe captures digit sequences with optional grouping separators
	// and an optional +91 prefix.
	digitRunRe = regexp.MustCompile(`(?:\+?91[\s.\-]*)?\d(?:[\s.\-]*\d)+`)
	// stitchLabelRe matches a prior turn ending in an account label, e.g.
	// "My account number is:".
	stitchLabelRe = regexp.MustCompile(`(?i)(?:account|a/c|acct)\s*(?:number|no|num|#)?\s*(?:is)?\s*:?\s*$`)
	// bareDigitsRe matches a message that is nothing but one grouped digit
	// run.
	bareDigitsRe = regexp.MustCompile(`^\s*\d(?:[\s.\-]*\d)+\s*$`)
	nonDigitRe    = regexp.MustCompile(`\D`)
	trailingPunct = ".,;:!?)\"'"
)

// Extractor is immutable after construction and safe for concurrent use.
type Extractor struct {
	upiProviders map[string]bool
	shortenerRe  *regexp.Regexp
	bareDomainRe *regexp.Regexp
	linkVerbRe   *regexp.Regexp
	phoneCueRe   *regexp.Regexp
	accountCueRe *regexp.Regexp
	upiCueRe     *regexp.Regexp
}

// New compiles the embedded vocabulary.
func New() (*Extractor, error) {
	var vocab vocabFile
	if err := yaml.Unmarshal(patterns.ExtractionPatterns, &vocab); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the extraction vocabulary: %w", err)
	}

	e := &Extractor{upiProviders: make(map[string]bool)}
	for _, p := range vocab.UPIProviders {
		e.upiProviders[strings.ToLower(p)] = true
	}

	var err error
	if e.shortenerRe, err = compileAlternation(vocab.LinkShorteners, `(?i)\b(?:%s)/[^\s<>"]+`); err != nil {
		return nil, err
	}
	if e.linkVerbRe, err = compileCueSet(vocab.LinkContextVerbs); err != nil {
		return nil, err
	}
	if e.phoneCueRe, err = compileCueSet(vocab.PhoneCues); err != nil {
		return nil, err
	}
	if e.accountCueRe, err = compileCueSet(vocab.AccountCues); err != nil {
		return nil, err
	}
	e.bareDomainRe = regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9-]*(?:\.[a-z0-9-]+)*\.(?:com|net|org|in|co|io|me|info|site|online|xyz|tk|ml|ga|cf|gq)\b`)
	e.upiCueRe = regexp.MustCompile(`(?i)\bupi\b`)
	return e, nil
}

func compileAlternation(items []string, format string) (*regexp.Regexp, error) {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = regexp.QuoteMeta(it)
	}
	re, err := regexp.Compile(fmt.Sprintf(format, strings.Join(quoted, "|")))
	if err != nil {
		return nil, fmt.Errorf("failed to compile vocabulary alternation: %w", err)
	}
	return re, nil
}

func compileCueSet(cues []string) (*regexp.Regexp, error) {
	quoted := make([]string, len(cues))
	for i, c := range cues {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(c), `\ `, `\s+`)
	}
	re, err := regexp.Compile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
	if err != nil {
		return nil, fmt.Errorf("failed to compile cue set: %w", err)
	}
	return re, nil
}

// Extract runs Layer 1 over text. contextWindow is an optional slice of
// recent history used for cross-turn stitching; it may be nil. Never fails:
// unmatched input yields an empty slice.
func (e *Extractor) Extract(text string, contextWindow []datatypes.Message) []Candidate {
	var out []Candidate
	claimed := make([]span, 0, 8)

	// IFSC codes first: unambiguous shape.
	for _, loc := range ifscRe.FindAllStringIndex(text, -1) {
		out = appendCandidate(out, datatypes.KindIFSCCode, text[loc[0]:loc[1]], 1.0)
	}

	// Email-shaped tokens split into UPI IDs and email addresses.
	for _, loc := range emailishRe.FindAllStringIndex(text, -1) {
		raw := strings.Trim(text[loc[0]:loc[1]], trailingPunct)
		kind, value, ok := e.classifyHandle(raw, window(text, loc[0], loc[1]))
		if ok {
			out = appendCandidate(out, kind, value, 1.0)
			claimed = append(claimed, span{loc[0], loc[1]})
		}
	}

	// Links: full URLs and shorteners always, bare domains only with a
	// context verb nearby.
	for _, loc := range urlRe.FindAllStringIndex(text, -1) {
		if overlaps(claimed, loc[0], loc[1]) {
			continue
		}
		if v := normalizeLink(text[loc[0]:loc[1]]); v != "" {
			out = appendCandidate(out, datatypes.KindLink, v, 1.0)
			claimed = append(claimed, span{loc[0], loc[1]})
		}
	}
	for _, loc := range e.shortenerRe.FindAllStringIndex(text, -1) {
		if overlaps(claimed, loc[0], loc[1]) {
			continue
		}
		if v := normalizeLink(text[loc[0]:loc[1]]); v != "" {
			out = appendCandidate(out, datatypes.KindLink, v, 1.0)
			claimed = append(claimed, span{loc[0], loc[1]})
		}
	}
	for _, loc := range e.bareDomainRe.FindAllStringIndex(text, -1) {
		if overlaps(claimed, loc[0], loc[1]) {
			continue
		}
		if !e.linkVerbRe.MatchString(window(text, loc[0], loc[1])) {
			continue
		}
		if v := normalizeLink(text[loc[0]:loc[1]]); v != "" {
			out = appendCandidate(out, datatypes.KindLink, v, 1.0)
			claimed = append(claimed, span{loc[0], loc[1]})
		}
	}

	// Digit runs resolve to phone numbers or bank accounts.
	for _, loc := range digitRunRe.FindAllStringIndex(text, -1) {
		if overlaps(claimed, loc[0], loc[1]) {
			continue
		}
		raw := text[loc[0]:loc[1]]
		ctx := window(text, loc[0], loc[1])
		hasPlus91 := strings.HasPrefix(strings.TrimSpace(raw), "+91")

		if kind, value, ok := e.classifyDigits(raw, ctx, hasPlus91); ok {
			out = appendCandidate(out, kind, value, 1.0)
		}
	}

	// Cross-turn stitch: a bare digit run following a dangling account
	// label is a bank account.
	if bareDigitsRe.MatchString(text) {
		digits := nonDigitRe.ReplaceAllString(text, "")
		if len(digits) >= 9 && len(digits) <= 18 && priorTurnEndsWithAccountLabel(contextWindow) {
			out = appendCandidate(out, datatypes.KindBankAccount, digits, 1.0)
		}
	}

	return out
}

// classifyHandle decides whether an @-token is a UPI ID, an email address,
// or noise.
func (e *Extractor) classifyHandle(raw, ctx string) (datatypes.IntelKind, string, bool) {
	parts := strings.Split(raw, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	local, provider := parts[0], strings.ToLower(strings.Trim(parts[1], "."))
	if provider == "" {
		return "", "", false
	}

	if e.upiProviders[provider] {
		return datatypes.KindUPIID, strings.ToLower(local + "@" + provider), true
	}

	if dot := strings.LastIndex(provider, "."); dot > 0 {
		tld := provider[dot+1:]
		if len(tld) >= 2 && isAlpha(tld) {
			return datatypes.KindEmail, strings.ToLower(local + "@" + provider), true
		}
	}

	// Unknown bare provider: only a UPI when the surrounding text says so.
	if e.upiCueRe.MatchString(ctx) {
		return datatypes.KindUPIID, strings.ToLower(local + "@" + provider), true
	}
	return "", "", false
}

// classifyDigits resolves a digit run into a phone number or bank account.
// The negative-context filter rejects ten-digit runs that sit next to
// account vocabulary with no phone cue.
func (e *Extractor) classifyDigits(raw, ctx string, hasPlus91 bool) (datatypes.IntelKind, string, bool) {
	digits := nonDigitRe.ReplaceAllString(raw, "")

	accountCtx := e.accountCueRe.MatchString(ctx) || ifscRe.MatchString(ctx)
	phoneCtx := e.phoneCueRe.MatchString(ctx)

	if phone, ok := normalizePhoneDigits(digits); ok {
		if accountCtx && !phoneCtx && !hasPlus91 {
			// Looks like a phone but reads like an account; fall through to
			// the bank path.
		} else {
			return datatypes.KindPhoneNumber, phone, true
		}
	}

	if len(digits) >= 9 && len(digits) <= 18 {
		if accountCtx || len(digits) >= 11 {
			return datatypes.KindBankAccount, digits, true
		}
	}
	return "", "", false
}

// normalizePhoneDigits accepts Indian mobile shapes: bare ten digits
// starting 6-9, 0-prefixed eleven digits, or 91-prefixed twelve digits.
// The normalized form is always +91 followed by the ten digits.
func normalizePhoneDigits(digits string) (string, bool) {
	switch {
	case len(digits) == 10 && digits[0] >= '6' && digits[0] <= '9':
		return "+91" + digits, true
	case len(digits) == 11 && digits[0] == '0' && digits[1] >= '6' && digits[1] <= '9':
		return "+91" + digits[1:], true
	case len(digits) == 12 && strings.HasPrefix(digits, "91") && digits[2] >= '6' && digits[2] <= '9':
		return "+" + digits, true
	}
	return "", false
}

// NormalizePhone is the exported, idempotent phone normalizer.
func NormalizePhone(value string) string {
	digits := nonDigitRe.ReplaceAllString(value, "")
	if phone, ok := normalizePhoneDigits(digits); ok {
		return phone
	}
	return value
}

func normalizeLink(raw string) string {
	v := strings.Trim(strings.TrimSpace(raw), trailingPunct)
	if v == "" {
		return ""
	}
	host := v
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		return ""
	}
	return v
}

func priorTurnEndsWithAccountLabel(contextWindow []datatypes.Message) bool {
	for i := len(contextWindow) - 1; i >= 0; i-- {
		m := contextWindow[i]
		if m.Sender == datatypes.SenderScammer && stitchLabelRe.MatchString(m.Text) {
			return true
		}
	}
	return false
}

type span struct{ start, end int }

func overlaps(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

func window(text string, start, end int) string {
	lo := start - contextRadius
	if lo < 0 {
		lo = 0
	}
	hi := end + contextRadius
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}

func appendCandidate(out []Candidate, kind datatypes.IntelKind, value string, confidence float64) []Candidate {
	key := strings.ToLower(value)
	for _, c := range out {
		if c.Kind == kind && strings.ToLower(c.Value) == key {
			return out
		}
	}
	return append(out, Candidate{Kind: kind, Value: value, Confidence: confidence, Source: SourceLayer1})
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(s) > 0
}
