// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lurelab/scamlure/datatypes"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New()
	require.NoError(t, err)
	return e
}

func emptyQuery(inbound string, count int) Query {
	return Query{
		Intel:        datatypes.NewIntelGraph(),
		Inbound:      inbound,
		MessageCount: count,
	}
}

func TestSelect_CredentialFlipWinsCascade(t *testing.T) {
	e := newTestEngine(t)

	q := emptyQuery("Share the OTP immediately or your account is blocked", 6)
	sel := e.Select(q)
	assert.Equal(t, CategoryCredentialFlip, sel.Category,
		"a credential ask outranks the urgency cue in the same message")
	assert.Empty(t, sel.TargetKind)
}

func TestSelect_UrgencyEchoNeedsFourTurns(t *testing.T) {
	e := newTestEngine(t)

	early := e.Select(emptyQuery("Hurry, your account will be suspended today, do it fast please", 2))
	assert.NotEqual(t, CategoryUrgencyEcho, early.Category,
		"urgency echo must not fire before turn 4")

	late := e.Select(emptyQuery("Hurry, your account will be suspended today, do it fast please", 5))
	assert.Equal(t, CategoryUrgencyEcho, late.Category)
}

func TestSelect_NeedBackupAfterFirstPrimaryCapture(t *testing.T) {
	e := newTestEngine(t)

	g := datatypes.NewIntelGraph()
	g.Add(datatypes.KindUPIID, "winner@okaxis", 3, "layer1", 1.0)

	sel := e.Select(Query{
		Intel:        g,
		Inbound:      "Send the money to that UPI and confirm the payment please",
		MessageCount: 3,
		NewKinds:     []datatypes.IntelKind{datatypes.KindUPIID},
	})
	assert.Equal(t, CategoryNeedBackup, sel.Category,
		"first fill of a primary kind pivots to asking for a backup channel")
}

func TestSelect_LadderOrder(t *testing.T) {
	e := newTestEngine(t)

	g := datatypes.NewIntelGraph()
	q := Query{Intel: g, Inbound: "You must complete the verification process for your registration now", MessageCount: 2}

	sel := e.Select(q)
	assert.Equal(t, CategoryMissingAccount, sel.Category)
	assert.Equal(t, datatypes.KindBankAccount, sel.TargetKind)

	g.Add(datatypes.KindBankAccount, "1234567890", 2, "layer1", 1.0)
	sel = e.Select(q)
	assert.Equal(t, CategoryMissingIfsc, sel.Category)
	assert.Equal(t, datatypes.KindIFSCCode, sel.TargetKind)

	g.Add(datatypes.KindIFSCCode, "SBIN0001234", 3, "layer1", 1.0)
	sel = e.Select(q)
	assert.Equal(t, CategoryMissingUpi, sel.Category)
	assert.Equal(t, datatypes.KindUPIID, sel.TargetKind)
}

func TestSelect_VagueProbe(t *testing.T) {
	e := newTestEngine(t)

	t.Run("short cue-free message with ladder top open still asks", func(t *testing.T) {
		sel := e.Select(emptyQuery("ok", 2))
		assert.Equal(t, CategoryMissingAccount, sel.Category,
			"the account and IFSC slots outrank the vague probe")
	})

	t.Run("short cue-free message with ladder top filled probes", func(t *testing.T) {
		g := datatypes.NewIntelGraph()
		g.Add(datatypes.KindBankAccount, "1234567890", 1, "layer1", 1.0)
		g.Add(datatypes.KindIFSCCode, "SBIN0001234", 1, "layer1", 1.0)
		sel := e.Select(Query{Intel: g, Inbound: "ok", MessageCount: 4})
		assert.Equal(t, CategoryVagueProbe, sel.Category)
	})
}

func TestSelect_DeterministicEntry(t *testing.T) {
	e := newTestEngine(t)

	q := emptyQuery("You must complete the verification process for your registration now", 7)
	first := e.Select(q)
	second := e.Select(q)
	assert.Equal(t, first.Text, second.Text, "same turn, same seed sentence")

	q.MessageCount = 8
	third := e.Select(q)
	assert.NotEqual(t, first.Text, third.Text, "the next turn advances the entry index")
}

func TestSibling_AvoidsPriorReplies(t *testing.T) {
	e := newTestEngine(t)

	base := e.Select(emptyQuery("You must complete the verification process for your registration now", 4))
	sibling := e.Sibling(base.Category, 4, []string{base.Text})
	assert.NotEqual(t, base.Text, sibling)
	assert.Contains(t, e.byCategory[base.Category], sibling)
}

func TestLoopDetect(t *testing.T) {
	recent := []datatypes.Message{
		{Sender: datatypes.SenderScammer, Text: "Send the money"},
		{Sender: datatypes.SenderHoneypot, Text: "Can you send me your Account Number? I want to check."},
		{Sender: datatypes.SenderScammer, Text: "Do it now"},
		{Sender: datatypes.SenderHoneypot, Text: "What is the next step?"},
	}

	t.Run("exact repeat", func(t *testing.T) {
		assert.True(t, LoopDetect("What is the next step?", recent))
	})

	t.Run("shared prefix repeat", func(t *testing.T) {
		assert.True(t, LoopDetect("Can you send me your Account Number? The form needs it.", recent))
	})

	t.Run("fresh reply", func(t *testing.T) {
		assert.False(t, LoopDetect("It's asking for an IFSC code to verify the branch.", recent))
	})

	t.Run("only the last three honeypot replies count", func(t *testing.T) {
		long := []datatypes.Message{
			{Sender: datatypes.SenderHoneypot, Text: "This reply is ancient history and out of the window."},
			{Sender: datatypes.SenderHoneypot, Text: "Recent reply one, with enough length to matter."},
			{Sender: datatypes.SenderHoneypot, Text: "Recent reply two, with enough length to matter."},
			{Sender: datatypes.SenderHoneypot, Text: "Recent reply three, with enough length to matter."},
		}
		assert.False(t, LoopDetect("This reply is ancient history and out of the window.", long))
	})
}

func TestCategoryForKind(t *testing.T) {
	e := newTestEngine(t)

	cat, ok := e.CategoryForKind(datatypes.KindPhoneNumber)
	require.True(t, ok)
	assert.Equal(t, CategoryMissingPhone, cat)

	_, ok = e.CategoryForKind(datatypes.KindKeyword)
	assert.False(t, ok)
}

func TestCredentialFlipEntriesPivotToScammerDetails(t *testing.T) {
	e := newTestEngine(t)

	for _, text := range e.byCategory[CategoryCredentialFlip] {
		lower := strings.ToLower(text)
		refuses := strings.Contains(lower, "never") || strings.Contains(lower, "won't") ||
			strings.Contains(lower, "not comfortable") || strings.Contains(lower, "can't") ||
			strings.Contains(lower, "blocks")
		asks := strings.Contains(lower, "number") || strings.Contains(lower, "upi")
		assert.True(t, refuses, "entry should refuse the credential: %s", text)
		assert.True(t, asks, "entry should ask for the scammer's details: %s", text)
	}
}
