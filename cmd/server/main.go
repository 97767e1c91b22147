/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the agreement ledger engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize the SQLite store (also serves as the audit sink)
  3. Connect the summary cache (Redis, or in-process when unconfigured)
  4. Wire the finance service and case automation
  5. Start the HTTP server with graceful shutdown

CONFIGURATION:
  Flags take precedence over environment variables:
    -port / PORT                    HTTP server port (default: 8080)
    -db / DB_PATH                   SQLite database path (default: agreements.db,
                                    use ":memory:" for in-memory)
    -redis / REDIS_ADDR             Redis address for the summary cache
                                    (empty: in-process cache)
    -overdue-days / OVERDUE_DEFAULT_DAYS
                                    Days overdue before an agreement is
                                    considered defaulted (default: 30)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for active
  requests, close the database.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pactum/agreement-engine/api"
	"github.com/pactum/agreement-engine/cache"
	"github.com/pactum/agreement-engine/casefile"
	"github.com/pactum/agreement-engine/finance"
	"github.com/pactum/agreement-engine/store/sqlite"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "agreements.db"), "SQLite database path")
	redisAddr := flag.String("redis", envStr("REDIS_ADDR", ""), "Redis address for the summary cache")
	overdueDays := flag.Int("overdue-days", envInt("OVERDUE_DEFAULT_DAYS", finance.DefaultOverdueThresholdDays),
		"days overdue before an agreement is considered defaulted")
	flag.Parse()

	// Initialize store (also the audit sink)
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Summary cache
	var summaryCache cache.Cache
	if *redisAddr != "" {
		redisCache := cache.NewRedis(*redisAddr)
		defer redisCache.Close()
		summaryCache = redisCache
		log.Printf("Using Redis summary cache at %s", *redisAddr)
	} else {
		summaryCache = cache.NewMemory()
	}

	// Wire the engine
	service := finance.NewService(store, store, finance.WithOverdueThreshold(*overdueDays))
	automation := casefile.NewAutomation(service, casefile.DerivedPartyDirectory{}, casefile.NoopArchiver{})

	handler := api.NewHandler(service, automation, store, summaryCache)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Agreement engine listening on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
