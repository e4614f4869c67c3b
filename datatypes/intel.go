// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "strings"

// IntelKind is one of the typed artifact categories the extractor produces.
type IntelKind string

const (
	KindBankAccount IntelKind = "bankAccount"
	KindIFSCCode    IntelKind = "ifscCode"
	KindUPIID       IntelKind = "upiId"
	KindPhoneNumber IntelKind = "phoneNumber"
	KindLink        IntelKind = "link"
	KindEmail       IntelKind = "emailAddress"
	KindKeyword     IntelKind = "suspiciousKeyword"
)

// PrimaryKinds are the kinds that count toward termination criterion A and
// drive the template priority ladder, in ladder order.
var PrimaryKinds = []IntelKind{
	KindBankAccount, KindIFSCCode, KindUPIID, KindLink, KindPhoneNumber,
}

// Artifact is one extracted instance of an intel kind. Value is normalized.
// Sources records which layer(s) produced it ("layer1", "layer2", "detector").
type Artifact struct {
	Value         string   `json:"value"`
	FirstSeenTurn int      `json:"firstSeenTurn"`
	Sources       []string `json:"sources"`
	Confidence    float64  `json:"confidence"`
}

// IntelGraph accumulates artifacts per kind for one session. Artifacts are
// ordered-unique by normalized value (case-insensitive) and are never
// removed. The graph is owned by the session manager; it is not safe for
// unsynchronized concurrent use.
type IntelGraph struct {
	kinds map[IntelKind][]Artifact
}

func NewIntelGraph() *IntelGraph {
	return &IntelGraph{kinds: make(map[IntelKind][]Artifact)}
}

// Add merges one artifact into the graph. Duplicates (same kind, same
// normalized value) are merged: sources are unioned and confidence takes the
// max. Returns true only when the value is new to the graph.
func (g *IntelGraph) Add(kind IntelKind, value string, turn int, source string, confidence float64) bool {
	key := strings.ToLower(value)
	for i := range g.kinds[kind] {
		a := &g.kinds[kind][i]
		if strings.ToLower(a.Value) != key {
			continue
		}
		if confidence > a.Confidence {
			a.Confidence = confidence
		}
		if !containsString(a.Sources, source) {
			a.Sources = append(a.Sources, source)
		}
		return false
	}
	g.kinds[kind] = append(g.kinds[kind], Artifact{
		Value:         value,
		FirstSeenTurn: turn,
		Sources:       []string{source},
		Confidence:    confidence,
	})
	return true
}

// Has reports whether at least one artifact of kind has been captured.
func (g *IntelGraph) Has(kind IntelKind) bool { return len(g.kinds[kind]) > 0 }

// Values returns the normalized values for kind in first-seen order.
func (g *IntelGraph) Values(kind IntelKind) []string {
	vals := make([]string, 0, len(g.kinds[kind]))
	for _, a := range g.kinds[kind] {
		vals = append(vals, a.Value)
	}
	return vals
}

// Artifacts returns a copy of the artifact records for kind.
func (g *IntelGraph) Artifacts(kind IntelKind) []Artifact {
	out := make([]Artifact, len(g.kinds[kind]))
	copy(out, g.kinds[kind])
	return out
}

// PrimaryKindsCaptured counts how many primary kinds have at least one hit.
func (g *IntelGraph) PrimaryKindsCaptured() int {
	n := 0
	for _, k := range PrimaryKinds {
		if g.Has(k) {
			n++
		}
	}
	return n
}

// MissingPrimaryKinds returns the primary kinds with no hits, in ladder order.
func (g *IntelGraph) MissingPrimaryKinds() []IntelKind {
	var missing []IntelKind
	for _, k := range PrimaryKinds {
		if !g.Has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// KindsCaptured counts the distinct kinds with at least one artifact,
// excluding suspiciousKeyword.
func (g *IntelGraph) KindsCaptured() int {
	n := 0
	for kind, arts := range g.kinds {
		if kind != KindKeyword && len(arts) > 0 {
			n++
		}
	}
	return n
}

// TotalItems counts artifacts across all kinds except suspiciousKeyword.
func (g *IntelGraph) TotalItems() int {
	n := 0
	for kind, arts := range g.kinds {
		if kind == KindKeyword {
			continue
		}
		n += len(arts)
	}
	return n
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
