package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/collab-docs/backend/internal/auth"
	"github.com/collab-docs/backend/internal/cache"
	"github.com/collab-docs/backend/internal/collab"
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

	instanceID := uuid.New().String()

	roomManager := collab.NewRoomManager(ctx, instanceID, st, ca, collab.RoomConfig{
		PersistenceDebounce: cfg.PersistenceDebounce,
		AwarenessTimeout:    cfg.AwarenessTimeout,
		DrainGrace:          cfg.DrainGrace,
		PerConnectionRate:   cfg.PerConnectionUpdateRate,
		MaxReplicaBytes:     50 << 20, // ~50MiB per-document memory ceiling
		MarkdownRefresh:     cfg.MarkdownRefreshOnDebounce,
	}, cfg.MaxLiveDocuments)

	server := collab.NewServer(roomManager, cfg.JWTSecret, cfg.OriginAllowList, cfg.PerConnectionUpdateRate)

	// Create HTTP mux
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"status": "ok"})
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, server.RoomStats())
	})

	mux.HandleFunc("GET /ws/{docId}", server.HandleWebSocket)

	handler := corsMiddleware(mux, cfg.OriginAllowList)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HubPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Collaboration Server starting on port %s (instance %s)", cfg.HubPort, instanceID)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DrainGrace+5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	roomManager.DrainAll(cfg.DrainGrace)

	cancel()
	log.Println("Server stopped")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// corsMiddleware enforces the same origin allow-list used by the
// WebSocket upgrade, for the plain HTTP endpoints on this server.
func corsMiddleware(next http.Handler, allowList []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && auth.OriginAllowed(origin, allowList) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
