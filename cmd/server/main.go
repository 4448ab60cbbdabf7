/*
main.go - Rollup service entry point

PURPOSE:
  Starts the long-running meter rollup service: the daily pipeline
  scheduler plus the dashboard API.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Open the SQLite store (device registry)
  3. Wire the completion ledger, reading source and pipeline
  4. Start the daily scheduler
  5. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: meters.db)
           Use ":memory:" for an in-memory database
  -data    Artifact root directory (default: ./data)
  -ledger  Completion ledger file (default: {data}/completions.log)
  -feed    Vendor feed URL; empty runs the built-in simulator

EXAMPLES:
  # Simulated feed, everything local
  ./server -db=./meters.db -data=./data

  # Live vendor feed
  ./server -feed=https://vendor.example.com/meter_data

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM the scheduler is stopped first (no run is started
  mid-shutdown), then the HTTP server drains with a 30s timeout.

SEE ALSO:
  - cmd/rollup/main.go: One-shot pipeline invocation for cron
  - api/server.go: Router configuration
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
	"path/filepath"
	"syscall"
	"time"

	"github.com/gridline/meter-rollup/api"
	"github.com/gridline/meter-rollup/feed"
	"github.com/gridline/meter-rollup/rollup"
	"github.com/gridline/meter-rollup/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "meters.db", "SQLite database path")
	dataRoot := flag.String("data", "./data", "artifact root directory")
	ledgerPath := flag.String("ledger", "", "completion ledger file (default: {data}/completions.log)")
	feedURL := flag.String("feed", "", "vendor feed URL (empty: built-in simulator)")
	flag.Parse()

	if *ledgerPath == "" {
		*ledgerPath = filepath.Join(*dataRoot, "completions.log")
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Reading source: live vendor feed or simulator over the registry
	var source rollup.ReadingSource
	if *feedURL != "" {
		source = feed.NewHTTPSource(*feedURL)
	} else {
		source = feed.NewSimulator(store, time.Now().UnixNano())
	}

	ledger := rollup.NewFileLedger(*ledgerPath)
	pipeline := rollup.NewPipeline(source, ledger, *dataRoot)

	// Daily trigger
	scheduler := api.NewPipelineScheduler(pipeline)
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP surface
	handler := api.NewHandler(store, pipeline)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
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
