package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kurasuta/kurasuta-backend/internal/handlers"
	"github.com/kurasuta/kurasuta-backend/internal/middleware"
)

type RouterConfig struct {
	TaskHandler      *handlers.TaskHandler
	SampleHandler    *handlers.SampleHandler
	APIKeyMiddleware *middleware.APIKeyMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(middleware.RequestID())

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Api-Key", "X-Request-Id"},
		AllowCredentials: false,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	protected := router.Group("/")
	protected.Use(cfg.APIKeyMiddleware.RequireKey())
	// Queue
	protected.POST("/task", cfg.TaskHandler.Claim)
	protected.POST("/tasks", cfg.TaskHandler.Create)
	// Samples
	protected.POST("/sha256/:hash", cfg.SampleHandler.Submit)
	protected.GET("/sha256/:hash", cfg.SampleHandler.Get("sha256"))
	protected.GET("/md5/:hash", cfg.SampleHandler.Get("md5"))
	protected.GET("/sha1/:hash", cfg.SampleHandler.Get("sha1"))

	return router
}
