// Worker deletes sessions whose refresh lifetime has passed every SESSION_PURGE_INTERVAL.
// Only DATABASE_URL is required.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identity-service/internal/bootstrap"
	"identity-service/internal/config"
	"identity-service/internal/session/cleanup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.OpenStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	log.Printf("worker: purging expired sessions every %s", cfg.SessionPurgeInterval)
	cleanup.NewPurger(app.Sessions, app.Events, cfg.SessionPurgeInterval, nil).Run(ctx)
	log.Println("worker: stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(shutdownCtx); err != nil {
		log.Printf("worker: shutdown: %v", err)
	}
}
