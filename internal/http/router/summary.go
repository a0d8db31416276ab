package router

import (
	"callbridge.app/bridge/internal/http/handler"
	"github.com/gin-gonic/gin"
)

func SummaryRouter(rg *gin.RouterGroup, h *handler.SummaryHandler) {
	rg.GET("", h.List)
	rg.GET("/:callId", h.Get)
}
