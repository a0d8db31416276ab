package router

import (
	"callbridge.app/bridge/internal/http/handler"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Call    *handler.CallHandler
	Health  *handler.HealthHandler
	Summary *handler.SummaryHandler
}

func SetupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/health", h.Health.Health)

	CallRouter(&router.RouterGroup, h.Call)

	v1 := router.Group("/api/v1")
	{
		SummaryRouter(v1.Group("/summaries"), h.Summary)
	}
}
