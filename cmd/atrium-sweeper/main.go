package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atrium-works/atrium/pkg/authn"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
)

var (
	dbURL    = flag.String("db-url", getEnv("ATRIUM_POSTGRES_URL", "postgres://localhost/atrium?sslmode=disable"), "PostgreSQL connection URL")
	schedule = flag.String("schedule", "*/15 * * * *", "Cron schedule for expired session and magic link sweeps (default: every 15 minutes)")
	runOnce  = flag.Bool("run-once", false, "Run a single sweep and exit (for testing)")
)

func main() {
	flag.Parse()

	// Connect to database
	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Verify connection
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	store := authn.NewStore(db)

	// Run once mode (for testing or manual cleanup)
	if *runOnce {
		if err := runSweep(store); err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		log.Println("Sweep completed successfully")
		return
	}

	// Scheduled mode
	c := cron.New()

	_, err = c.AddFunc(*schedule, func() {
		if err := runSweep(store); err != nil {
			log.Printf("Sweep failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule sweep: %v", err)
	}

	c.Start()
	log.Println("Atrium Sweeper started")
	log.Printf("Sweep schedule: %s", *schedule)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop the cron scheduler
	ctx := c.Stop()
	<-ctx.Done()

	log.Println("Sweeper stopped")
}

func runSweep(store *authn.Store) error {
	ctx := context.Background()
	now := time.Now().UTC()

	sessions, err := store.DeleteExpiredSessions(ctx, now)
	if err != nil {
		log.Printf("Expired session sweep failed: %v", err)
		return err
	}
	log.Printf("Removed %d expired sessions", sessions)

	links, err := store.DeleteExpiredMagicLinks(ctx, now)
	if err != nil {
		log.Printf("Expired magic link sweep failed: %v", err)
		return err
	}
	log.Printf("Removed %d used or expired magic links", links)

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
