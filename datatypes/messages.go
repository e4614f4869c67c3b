// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the wire and domain models shared across the
// honeypot service: inbound message envelopes, session state, the
// intelligence graph, and the finalization callback payload.
package datatypes

// Sender identifies which side of the conversation produced a message.
type Sender string

const (
	SenderScammer  Sender = "scammer"
	SenderHoneypot Sender = "honeypot"
)

// Message is a single immutable conversation entry. Timestamp is Unix
// milliseconds. Insertion order in a session history is semantically
// significant.
type Message struct {
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Metadata carries optional channel hints from the platform. All fields are
// advisory.
type Metadata struct {
	Channel  string `json:"channel,omitempty"`
	Language string `json:"language,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

// HoneypotRequest is the official inbound body for POST /api/honeypot/message.
//
// conversationHistory is advisory: the server's own history is authoritative.
type HoneypotRequest struct {
	SessionID           string    `json:"sessionId" binding:"required"`
	Message             Message   `json:"message"`
	ConversationHistory []Message `json:"conversationHistory"`
	Metadata            *Metadata `json:"metadata,omitempty"`
}

// HoneypotResponse is the outbound body. It MUST contain exactly these two
// fields; downstream consumers reject anything else.
type HoneypotResponse struct {
	Status string `json:"status"`
	Reply  string `json:"reply"`
}

// ErrorResponse is returned for parse and auth failures.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
