// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lurelab/scamlure/datatypes"
	"github.com/lurelab/scamlure/sessions"
)

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleStats serves aggregate counters across all sessions.
func HandleStats(m *sessions.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, m.Snapshot())
	}
}

// HandleDebugSession serves the full state of one session.
func HandleDebugSession(m *sessions.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		snapshot, ok := m.Debug(id)
		if !ok {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
				Status:  "error",
				Message: "unknown session",
			})
			return
		}
		c.JSON(http.StatusOK, snapshot)
	}
}
