// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// ExtractedIntelligence is the callback view of the intel graph. Field names
// are camelCase per the platform contract. Slices are always non-nil so they
// serialize as [] rather than null.
type ExtractedIntelligence struct {
	PhoneNumbers   []string `json:"phoneNumbers"`
	BankAccounts   []string `json:"bankAccounts"`
	UpiIDs         []string `json:"upiIds"`
	IfscCodes      []string `json:"ifscCodes"`
	PhishingLinks  []string `json:"phishingLinks"`
	EmailAddresses []string `json:"emailAddresses"`
}

// EngagementMetrics nests the message count. totalMessagesExchanged MUST
// appear only here, never at the payload top level; downstream scoring
// checks the exact structure.
type EngagementMetrics struct {
	TotalMessagesExchanged    int `json:"totalMessagesExchanged"`
	EngagementDurationSeconds int `json:"engagementDurationSeconds"`
}

// FinalCallbackPayload is the finalization report posted once per session.
type FinalCallbackPayload struct {
	SessionID             string                `json:"sessionId"`
	Status                string                `json:"status"`
	ScamDetected          bool                  `json:"scamDetected"`
	ExtractedIntelligence ExtractedIntelligence `json:"extractedIntelligence"`
	EngagementMetrics     EngagementMetrics     `json:"engagementMetrics"`
	AgentNotes            string                `json:"agentNotes"`
}

// IntelligenceFromGraph maps an intel graph into the callback shape.
func IntelligenceFromGraph(g *IntelGraph) ExtractedIntelligence {
	nonNil := func(vals []string) []string {
		if vals == nil {
			return []string{}
		}
		return vals
	}
	return ExtractedIntelligence{
		PhoneNumbers:   nonNil(g.Values(KindPhoneNumber)),
		BankAccounts:   nonNil(g.Values(KindBankAccount)),
		UpiIDs:         nonNil(g.Values(KindUPIID)),
		IfscCodes:      nonNil(g.Values(KindIFSCCode)),
		PhishingLinks:  nonNil(g.Values(KindLink)),
		EmailAddresses: nonNil(g.Values(KindEmail)),
	}
}
