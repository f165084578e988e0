package rest

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler) {
	// Health check endpoint (no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Sync trigger and progress
		v1.POST("/sync", handler.TriggerSync)
		v1.GET("/status", handler.GetStatus)

		// Derived stats (public read access)
		v1.GET("/tokens/:id/stats", handler.GetTokenStats)
		v1.GET("/tokens/:id/render", handler.GetRenderJob)
		v1.GET("/authors/:address/stats", handler.GetAuthorStats)
	}
}
