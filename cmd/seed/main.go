// seed registers the development account through the auth service. Idempotent: an existing
// dev@example.com is left untouched.
package main

import (
	"context"
	"errors"
	"log"
	"time"

	"identity-service/internal/autherr"
	"identity-service/internal/bootstrap"
	"identity-service/internal/config"
)

const (
	devUserEmail = "dev@example.com"
	devPassword  = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer app.Close(context.Background())

	id, err := app.Auth.Register(ctx, devUserEmail, devPassword)
	switch {
	case errors.Is(err, autherr.ErrAlreadyExists):
		log.Printf("seed: %s already exists, skipping", devUserEmail)
	case err != nil:
		log.Fatalf("seed: register %s: %v", devUserEmail, err)
	default:
		log.Printf("seed: created %s (id %s, password %s)", devUserEmail, id, devPassword)
	}
}
