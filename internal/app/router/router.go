// Package router wires the HTTP surface.
package router

import (
	"github.com/gin-gonic/gin"

	adminhandler "risk_backend/internal/feature/admin/transport/handler"
	jwtmw "risk_backend/internal/platform/jwt"
)

// NewRouter builds the gin engine. Only the health probe is open; the status
// and trigger surface requires a bearer token.
func NewRouter(admin *adminhandler.AdminHandler) *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", adminhandler.Health)
	r.HEAD("/healthz", adminhandler.Health)

	authed := r.Group("/admin")
	authed.Use(jwtmw.AuthRequired())
	{
		authed.GET("/status", admin.Status)
		authed.POST("/batches/symbol", admin.TriggerSymbolBatch)
		authed.POST("/batches/refresh", admin.TriggerRefresh)
		authed.POST("/onboarding", admin.EnqueueOnboarding)
		authed.GET("/onboarding/:symbol", admin.OnboardingStatus)
		authed.DELETE("/onboarding/failed", admin.ClearOnboardingFailures)
	}

	return r
}
