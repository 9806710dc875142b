package router

import (
	"github.com/gin-gonic/gin"

	"github.com/magiciincaidev/callassist/internal/http/handler"
)

// SessionRouter sets up the call-session routes.
func SessionRouter(rg *gin.RouterGroup, h *handler.SessionHandler) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.DELETE("", h.DeleteAll)

	rg.GET("/:id", h.Get)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/join", h.Join)
	rg.POST("/:id/leave", h.Leave)
	rg.POST("/:id/end", h.End)
	rg.GET("/:id/history", h.History)
	rg.POST("/:id/messages", h.PostMessage)
	rg.GET("/:id/events", h.Watch)
}
