package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nawal-0/moviepicker/internal/app"
	"github.com/nawal-0/moviepicker/internal/config"
	"github.com/nawal-0/moviepicker/internal/registry"
	"github.com/nawal-0/moviepicker/internal/store"
	"github.com/nawal-0/moviepicker/internal/tmdb"
	"github.com/nawal-0/moviepicker/internal/ws"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	if cfg.TMDBAPIKey == "" {
		log.Fatalf("TMDB_API_KEY is required")
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("schema setup failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	connRegistry, err := registry.NewRedisRegistry(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer connRegistry.Close()

	catalog := tmdb.New(cfg.TMDBAPIKey, cfg.TMDBBaseURL, cfg.TMDBTimeout)

	hub := ws.NewHub(func(*http.Request) bool { return true })
	service := app.New(cfg, dataStore, catalog, connRegistry, hub)

	httpServer := app.NewHTTPServer(service, hub, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("MoviePicker API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
