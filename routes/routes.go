// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lurelab/scamlure/handlers"
	"github.com/lurelab/scamlure/middleware"
	"github.com/lurelab/scamlure/sessions"
)

// SetupRoutes wires the HTTP surface. Everything except the Prometheus
// scrape endpoint sits behind the shared API key.
func SetupRoutes(router *gin.Engine, manager *sessions.Manager, apiKey string) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := router.Group("/", middleware.RequireAPIKey(apiKey))
	{
		authed.GET("/health", handlers.HealthCheck)
		authed.GET("/stats", handlers.HandleStats(manager))
		authed.GET("/debug/session/:id", handlers.HandleDebugSession(manager))

		api := authed.Group("/api/honeypot")
		{
			api.POST("/message", handlers.RecoverTurn(), handlers.HandleMessage(manager))
		}
	}
}
