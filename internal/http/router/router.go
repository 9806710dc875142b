package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/magiciincaidev/callassist/internal/http/handler"
	"github.com/magiciincaidev/callassist/internal/queue"
	"github.com/magiciincaidev/callassist/internal/service"
)

type RouterConfig struct {
	WatchBlock time.Duration
}

func SetupRoutes(router *gin.Engine, calls service.CallService, watcher queue.Watcher, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		sessionHandler := handler.NewSessionHandler(calls, watcher, cfg.WatchBlock)
		SessionRouter(v1.Group("/sessions"), sessionHandler)
	}
}
