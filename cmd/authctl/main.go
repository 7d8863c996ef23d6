// authctl drives the auth service against the configured database and Redis and prints JSON.
//
//	authctl login -email dev@example.com -password password123
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"identity-service/internal/autherr"
	"identity-service/internal/bootstrap"
	"identity-service/internal/cli/authctl"
	"identity-service/internal/config"
)

func main() {
	log.SetOutput(os.Stderr)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	err = authctl.Run(ctx, app.Auth, app.Users, os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr)
	_ = app.Close(context.Background())
	if err != nil {
		if !errors.Is(err, authctl.ErrUsage) {
			err = fmt.Errorf("%w (%s)", autherr.Public(err), autherr.Kind(err))
		}
		fmt.Fprintln(os.Stderr, "authctl:", err)
		os.Exit(1)
	}
}
