// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the honeypot service.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lurelab/scamlure/datatypes"
	"github.com/lurelab/scamlure/observability"
)

// APIKeyHeader is the header the inbound gateway sends the shared key in.
const APIKeyHeader = "x-api-key"

// RequireAPIKey rejects requests whose x-api-key header does not match the
// configured key. Comparison is constant-time.
func RequireAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(APIKeyHeader)
		if provided == "" ||
			subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			observability.ObserveRequest(c.FullPath(), "unauthorized")
			c.AbortWithStatusJSON(http.StatusUnauthorized, datatypes.ErrorResponse{
				Status:  "error",
				Message: "missing or invalid API key",
			})
			return
		}
		c.Next()
	}
}
