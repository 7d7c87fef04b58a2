package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kurasuta/kurasuta-backend/internal/clients"
	"github.com/kurasuta/kurasuta-backend/internal/db"
	"github.com/kurasuta/kurasuta-backend/internal/handlers"
	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/middleware"
	"github.com/kurasuta/kurasuta-backend/internal/repos"
	"github.com/kurasuta/kurasuta-backend/internal/server"
	"github.com/kurasuta/kurasuta-backend/internal/services"
	"github.com/kurasuta/kurasuta-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.MigrateAll(); err != nil {
		log.Fatal("Postgres migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis (optional dimension id cache)
	dimensionCache, err := clients.NewDimensionCache(log)
	if err != nil {
		log.Warn("Redis init failed, continuing without dimension cache", "error", err)
		dimensionCache = nil
	}

	// Repos
	log.Info("Setting up repos...")
	sampleRepo := repos.NewSampleRepo(thePG, log)
	dimensionRepo := repos.NewDimensionRepo(thePG, log, dimensionCache)
	taskRepo := repos.NewTaskRepo(thePG, log)
	consumerRepo := repos.NewTaskConsumerRepo(thePG, log)
	sourceRepo := repos.NewSampleSourceRepo(thePG, log)
	apiKeyRepo := repos.NewAPIKeyRepo(thePG, log)

	// Services
	log.Info("Setting up services...")
	leaseTTL := time.Duration(utils.GetEnvAsInt("TASK_LEASE_TTL", 3600, log)) * time.Second
	taskService := services.NewTaskService(thePG, log, taskRepo, consumerRepo, leaseTTL)
	ingestService := services.NewIngestService(thePG, log, sampleRepo, dimensionRepo, taskService)

	// Handlers
	log.Info("Setting up handlers...")
	taskHandler := handlers.NewTaskHandler(log, taskService, sourceRepo)
	sampleHandler := handlers.NewSampleHandler(log, ingestService)

	// Middleware
	apiKeyMiddleware := middleware.NewAPIKeyMiddleware(log, apiKeyRepo)

	// Router
	router := server.NewRouter(server.RouterConfig{
		TaskHandler:      taskHandler,
		SampleHandler:    sampleHandler,
		APIKeyMiddleware: apiKeyMiddleware,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server stopped", "error", err)
	}
}
