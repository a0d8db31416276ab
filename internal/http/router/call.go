package router

import (
	"callbridge.app/bridge/internal/http/handler"
	"github.com/gin-gonic/gin"
)

func CallRouter(rg *gin.RouterGroup, h *handler.CallHandler) {
	rg.POST("/incoming-call", h.IncomingCall)
	rg.GET("/incoming-call", h.IncomingCall)
	rg.GET("/media-stream", h.MediaStream)
}
