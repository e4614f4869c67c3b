// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP surface of the honeypot service.
package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lurelab/scamlure/datatypes"
	"github.com/lurelab/scamlure/observability"
	"github.com/lurelab/scamlure/pkg/validation"
	"github.com/lurelab/scamlure/sessions"
)

// panicFallbackReply keeps the conversation alive when a turn panics; the
// scammer must never see an error page.
const panicFallbackReply = "I'm sorry, I didn't catch that. Could you repeat?"

// HandleMessage processes one inbound scammer turn.
//
// The response body carries exactly two fields, status and reply; downstream
// consumers validate that shape strictly. Malformed input is the only path
// that returns 400; everything recoverable produces a 200 with a usable
// reply.
func HandleMessage(m *sessions.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req datatypes.HoneypotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			observability.ObserveRequest("message", "bad_request")
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Status:  "error",
				Message: "sessionId is required and the body must be valid JSON",
			})
			return
		}
		if strings.TrimSpace(req.Message.Text) == "" {
			observability.ObserveRequest("message", "bad_request")
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Status:  "error",
				Message: "message.text is required",
			})
			return
		}
		sessionID, err := validation.SanitizeSessionID(req.SessionID)
		if err != nil {
			observability.ObserveRequest("message", "bad_request")
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Status:  "error",
				Message: err.Error(),
			})
			return
		}
		req.SessionID = sessionID

		reply := m.HandleMessage(c.Request.Context(), req)

		observability.ObserveRequest("message", "success")
		observability.ObserveTurn("success", time.Since(start).Seconds())
		c.JSON(http.StatusOK, datatypes.HoneypotResponse{
			Status: "success",
			Reply:  reply,
		})
	}
}

// RecoverTurn replaces gin's default recovery on the message endpoint: a
// panicking turn still answers with a safe reply instead of a 500.
func RecoverTurn() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.Error("panic while processing turn", "panic", recovered, "path", c.Request.URL.Path)
		observability.ObserveRequest("message", "panic")
		c.AbortWithStatusJSON(http.StatusOK, datatypes.HoneypotResponse{
			Status: "success",
			Reply:  panicFallbackReply,
		})
	})
}
