package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-webinar/livepoll/internal/middleware"
	"github.com/aura-webinar/livepoll/internal/sessions"
	"github.com/aura-webinar/livepoll/pkg/response"
)

const livenessPage = "<h1>Live Poll server is running</h1><p>Connect a client to /ws.</p>"

func newRouter(logger *zap.Logger, origins middleware.OriginPolicy, manager *sessions.Manager, ws gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(origins))
	router.Use(middleware.Logger(logger, "/", "/health"))

	// Liveness
	router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(livenessPage))
	})
	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok", "sessions": manager.Count()})
	})

	router.GET("/ws", ws)

	router.NoRoute(func(c *gin.Context) { response.NotFound(c, "not found") })
	return router
}
