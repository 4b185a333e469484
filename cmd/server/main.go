/*
main.go - Scan sync server entry point

PURPOSE:
  Initializes and starts the scan synchronization server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize the SQLite ledger store
  3. Create the API handler and router
  4. Start the server with graceful shutdown

CONFIGURATION (flag, falling back to environment variable):
  -port    / PORT          HTTP server port (default: 8080)
  -db      / DATABASE_PATH SQLite ledger path (default: scans.db,
                           ":memory:" for in-memory)
  -secret  / JWT_SECRET    HS256 secret for bearer tokens (required)
  -origins / CORS_ORIGINS  Comma-separated allowed origins
  -dev-token SUBJECT       Print a 24h token for SUBJECT and exit
                           (local development only)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait for active requests
  (30s timeout), close the database, exit.

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Ledger implementation
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
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/campuslink/scan-engine/api"
	"github.com/campuslink/scan-engine/scan"
	"github.com/campuslink/scan-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments use actual environment variables.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DATABASE_PATH", "scans.db"), "SQLite ledger path")
	secret := flag.String("secret", envStr("JWT_SECRET", ""), "HS256 secret for bearer tokens")
	origins := flag.String("origins", envStr("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080"), "comma-separated allowed CORS origins")
	devToken := flag.String("dev-token", "", "print a 24h token for the given subject id and exit")
	flag.Parse()

	if *secret == "" {
		log.Fatal("JWT secret is required (-secret or JWT_SECRET)")
	}

	if *devToken != "" {
		token, err := api.SignToken(*secret, scan.SubjectID(*devToken), "student", 24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to sign token: %v", err)
		}
		fmt.Println(token)
		return
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Create router
	handler := api.NewHandler(store)
	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret:      *secret,
		AllowedOrigins: strings.Split(*origins, ","),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Scan sync server listening on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
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
