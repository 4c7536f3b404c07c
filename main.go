package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aacamara/cscx-mvp6-sub017/internal/config"
	"github.com/aacamara/cscx-mvp6-sub017/internal/repository"
	"github.com/aacamara/cscx-mvp6-sub017/internal/tracer"
	transport "github.com/aacamara/cscx-mvp6-sub017/internal/transport/http"
	"github.com/aacamara/cscx-mvp6-sub017/internal/transport/ws"
	"github.com/aacamara/cscx-mvp6-sub017/policy"
)

func main() {
	cfg := config.Load()

	log.Printf("Starting tracer service...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)

	// The tracer stays fully functional in memory when the durable store is
	// unreachable; only historical queries after a restart are affected.
	var store tracer.Store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Printf("ERROR: failed to initialize store, running memory-only: %v", err)
	} else {
		store = db
		defer db.Close()
	}

	ctx := context.Background()
	var policyEngine tracer.PolicyEngine
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Printf("ERROR: failed to initialize policy engine, tool calls will not be policy-checked: %v", err)
	} else {
		policyEngine = engine
	}

	tr := tracer.New(store, policyEngine)
	defer tr.Close()

	hub := ws.NewHub()
	go hub.Run()
	go hub.Pump(tr)

	server := transport.NewServer(tr, hub)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Retention sweep
	cleanupTicker := time.NewTicker(cfg.CleanupInterval)
	defer cleanupTicker.Stop()
	go func() {
		for range cleanupTicker.C {
			removed := tr.Cleanup(cfg.MaxRuns, cfg.MaxRunAge)
			if removed > 0 {
				log.Printf("INFO: evicted %d runs from memory", removed)
			}
		}
	}()

	log.Printf("Tracer API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down tracer service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	// Let queued durable writes finish before the store closes.
	tr.Flush()

	log.Println("Tracer service stopped")
}
