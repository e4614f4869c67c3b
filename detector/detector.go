// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package detector scores individual messages for scam intent.
//
// Scoring is a weighted hit aggregator over eight tactic families: six
// keyword families loaded from the embedded lexicon plus two computed
// families (suspicious URL, all-caps/punctuation density). The detector
// keeps no state; the session manager folds rule scores into the running
// suspicion score.
package detector

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lurelab/scamlure/detector/rules"
	"github.com/lurelab/scamlure/guardrails"
)

// Result is the per-message verdict. RuleScore is in [0,1]; the optional
// LLM classifier may refine Tactics and ExtractionIntent but never alters
// RuleScore.
type Result struct {
	RuleScore         float64
	Tactics           []string
	ScamType          string
	Keywords          []string
	ExtractionIntent  bool
	HasUrgency        bool
	HasPaymentTerms   bool
	IsPromptInjection bool
	ShortCircuit      bool
}

type family struct {
	name     string
	weight   float64
	patterns []*regexp.Regexp
	keywords []string
}

type scamType struct {
	name     string
	patterns []*regexp.Regexp
}

type lexiconFile struct {
	Families []struct {
		Name     string   `yaml:"name"`
		Weight   float64  `yaml:"weight"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"families"`
	ScamTypes []struct {
		Name     string   `yaml:"name"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"scamTypes"`
}

// Weights of the two computed families.
const (
	urlFamilyWeight   = 2.0
	styleFamilyWeight = 1.0
)

var (
	urlPattern        = regexp.MustCompile(`(?i)\bhttps?://[^\s]+|\bwww\.[a-z0-9-]+\.[a-z]{2,}[^\s]*`)
	suspiciousURLBits = regexp.MustCompile(`(?i)bit\.ly|tinyurl|goo\.gl|t\.co\b|t\.me\b|wa\.me\b|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}|[a-z0-9-]+\.(?:tk|ml|ga|cf|gq)\b`)
	currencyPattern   = regexp.MustCompile(`(?i)(?:₹|rs\.?\s|inr\s)\s*\d`)
	claimVerbPattern  = regexp.MustCompile(`(?i)\b(?:claim|collect|redeem)\b`)
	actionVerbPattern = regexp.MustCompile(`(?i)\b(?:pay|login|log in|verify|sign in|enter)\b`)
)

// Detector is immutable after construction and safe for concurrent use.
type Detector struct {
	families  []family
	scamTypes []scamType
	guard     *guardrails.Guardrails
	maxWeight float64
}

// New compiles the embedded lexicon. An error here is a build defect.
func New(guard *guardrails.Guardrails) (*Detector, error) {
	var file lexiconFile
	if err := yaml.Unmarshal(rules.ScamLexicon, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded lexicon: %w", err)
	}

	d := &Detector{guard: guard, maxWeight: urlFamilyWeight + styleFamilyWeight}
	for _, f := range file.Families {
		fam := family{name: f.Name, weight: f.Weight, keywords: f.Keywords}
		for _, kw := range f.Keywords {
			re, err := compileKeyword(kw)
			if err != nil {
				return nil, err
			}
			fam.patterns = append(fam.patterns, re)
		}
		d.families = append(d.families, fam)
		d.maxWeight += f.Weight
	}
	for _, t := range file.ScamTypes {
		st := scamType{name: t.Name}
		for _, kw := range t.Keywords {
			re, err := compileKeyword(kw)
			if err != nil {
				return nil, err
			}
			st.patterns = append(st.patterns, re)
		}
		d.scamTypes = append(d.scamTypes, st)
	}
	return d, nil
}

// compileKeyword turns a lexicon entry into a word-boundary, case-insensitive
// matcher. Spaces in multi-word keywords match any whitespace run.
func compileKeyword(kw string) (*regexp.Regexp, error) {
	parts := strings.Fields(kw)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	expr := `(?i)\b` + strings.Join(parts, `\s+`) + `\b`
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile lexicon keyword %q: %w", kw, err)
	}
	return re, nil
}

// Score analyzes one message. Pure function of its input.
func (d *Detector) Score(text string) Result {
	res := Result{ScamType: "generic"}
	var sum float64

	hit := map[string]bool{}
	for _, fam := range d.families {
		matched := false
		for i, p := range fam.patterns {
			if p.MatchString(text) {
				matched = true
				res.Keywords = appendUnique(res.Keywords, fam.keywords[i])
			}
		}
		if !matched && fam.name == "paymentDemand" && currencyPattern.MatchString(text) {
			matched = true
			res.Keywords = appendUnique(res.Keywords, "currency amount")
		}
		if matched {
			sum += fam.weight
			hit[fam.name] = true
			res.Tactics = append(res.Tactics, fam.name)
		}
	}

	urls := urlPattern.FindAllString(text, -1)
	suspiciousURL := false
	for _, u := range urls {
		if suspiciousURLBits.MatchString(u) {
			suspiciousURL = true
		}
	}
	if suspiciousURL {
		sum += urlFamilyWeight
		hit["suspiciousUrl"] = true
		res.Tactics = append(res.Tactics, "suspiciousUrl")
	}

	if styleDensityHit(text) {
		sum += styleFamilyWeight
		res.Tactics = append(res.Tactics, "styleDensity")
	}

	res.RuleScore = clamp01(sum / d.maxWeight)
	res.HasUrgency = hit["urgency"]
	res.HasPaymentTerms = hit["paymentDemand"]
	res.ExtractionIntent = hit["credentialRequest"] || hit["paymentDemand"]
	res.IsPromptInjection = d.guard.DetectPromptInjection(text)
	res.ScamType = d.identifyScamType(text)

	// Shortcuts force a high score regardless of keyword density.
	switch {
	case hit["urgency"] && hit["credentialRequest"]:
		res.ShortCircuit = true
	case hit["greed"] && claimVerbPattern.MatchString(text):
		res.ShortCircuit = true
	case suspiciousURL && actionVerbPattern.MatchString(text):
		res.ShortCircuit = true
	}
	if res.ShortCircuit {
		res.RuleScore = 1.0
	}

	return res
}

func (d *Detector) identifyScamType(text string) string {
	best, bestScore := "generic", 0
	for _, st := range d.scamTypes {
		score := 0
		for _, p := range st.patterns {
			if p.MatchString(text) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = st.name, score
		}
	}
	return best
}

func styleDensityHit(text string) bool {
	if strings.Count(text, "!") >= 2 {
		return true
	}
	letters, upper := 0, 0
	for _, r := range text {
		if r >= 'a' && r <= 'z' {
			letters++
		} else if r >= 'A' && r <= 'Z' {
			letters++
			upper++
		}
	}
	return letters > 0 && float64(upper)/float64(letters) > 0.3
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SortTacticsForNotes returns a stable, deduplicated tactic list for the
// finalization report.
func SortTacticsForNotes(tactics []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range tactics {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
