package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parcelaria/api/internal/config"
	"github.com/parcelaria/api/internal/database"
	"github.com/parcelaria/api/internal/extractor"
	"github.com/parcelaria/api/internal/geocoder"
	"github.com/parcelaria/api/internal/handlers"
	"github.com/parcelaria/api/internal/logger"
	"github.com/parcelaria/api/internal/matching"
	"github.com/parcelaria/api/internal/middleware"
	"github.com/parcelaria/api/internal/normalizer"
	"github.com/parcelaria/api/internal/repository"
	"github.com/parcelaria/api/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.New(cfg.Server.Env)
	log.Info("Starting Parcelaria API", map[string]interface{}{
		"version":     "0.1.0",
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
	})

	// Open the SQLite store and run migrations
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to open parcel store", err, map[string]interface{}{
			"path": cfg.Database.Path,
		})
	}
	defer db.Close()

	log.Info("Parcel store ready", map[string]interface{}{
		"path": cfg.Database.Path,
	})

	// External service handles are process-wide singletons
	vision, err := extractor.NewOpenAIVision(cfg.Vision, log)
	if err != nil {
		log.Fatal("Failed to configure vision model", err, nil)
	}
	geo := geocoder.New(cfg.Geocoder, log)

	// Repository layer
	parcelRepo := repository.NewParcelRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	extractionRepo := repository.NewExtractionRepository(db)
	reservationRepo := repository.NewReservationRepository(db)

	// Pipeline and service layer
	intakeService := services.NewIntakeService(
		normalizer.New(cfg.Pipeline.DPI, cfg.Pipeline.MaxPages),
		extractor.New(vision, cfg.Pipeline.PromptVersion, cfg.Pipeline.DPI, cfg.Pipeline.MaxPages, log),
		geo,
		parcelRepo,
		extractionRepo,
		cfg.Pipeline.EdificabilityRatio,
		log,
	)
	parcelService := services.NewParcelService(parcelRepo, log)
	projectService := services.NewProjectService(
		projectRepo,
		parcelRepo,
		reservationRepo,
		matching.NewEngine(projectRepo, reservationRepo, log),
		log,
	)

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Recovery -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))

	// Register health check routes
	healthHandler := handlers.NewHealthHandler(db, cfg.Server.Env)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/api/v1/info", healthHandler.Info)

	// Initialize handlers
	intakeHandler := handlers.NewIntakeHandler(intakeService)
	parcelHandler := handlers.NewParcelHandler(parcelService)
	projectHandler := handlers.NewProjectHandler(projectService)

	// Register API v1 routes
	v1 := router.Group("/api/v1")
	{
		parcels := v1.Group("/parcels")
		{
			parcels.POST("/intake", intakeHandler.Intake)
			parcels.GET("", parcelHandler.List)
			parcels.GET("/:ref", parcelHandler.GetByReference)
			parcels.POST("/:id/status", parcelHandler.ChangeStatus)
			parcels.POST("/:id/reservations", parcelHandler.Reserve)
		}

		v1.POST("/reservations/:id/cancel", parcelHandler.CancelReservation)

		projects := v1.Group("/projects")
		{
			projects.POST("", projectHandler.Create)
			projects.GET("", projectHandler.List)
			projects.GET("/compatible", projectHandler.Compatible)
			projects.POST("/:id/purchase", projectHandler.Purchase)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}
