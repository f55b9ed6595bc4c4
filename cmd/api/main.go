package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/collab-docs/backend/internal/api"
	"github.com/collab-docs/backend/internal/cache"
	"github.com/collab-docs/backend/internal/config"
	"github.com/collab-docs/backend/internal/store"
)

func main() {
	// Load .env file if exists
	godotenv.Load()

	cfg := config.Load()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	// Initialize coordination cache
	ca, err := cache.New(ctx, cfg.CacheURL)
	if err != nil {
		log.Fatalf("Failed to connect to cache: %v", err)
	}
	defer ca.Close()

	// Create Gin router
	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.OriginAllowList,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Register share API routes
	handler := api.NewHandler(st, ca, api.Config{
		PublicBaseURL:    cfg.PublicBaseURL,
		WSBaseURL:        cfg.WSBaseURL,
		MaxMarkdownBytes: cfg.MaxMarkdownBytes,
		MaxHTMLBytes:     cfg.MaxHTMLBytes,
		Version:          "1.0.0",
	})
	handler.RegisterRoutes(r)

	// Start server in goroutine
	go func() {
		log.Printf("API Server starting on port %s", cfg.Port)
		if err := r.Run(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancel()
}
