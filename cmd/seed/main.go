package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"sessions/config"
	"sessions/internal/app"
	"sessions/internal/identity/local"
	"sessions/internal/lib/logger/sl"
)

func main() {
	var email, password, fullName, roleID string
	var unconfirmed bool

	flag.StringVar(&email, "email", "", "account email")
	flag.StringVar(&password, "password", "", "account password")
	flag.StringVar(&fullName, "name", "", "account full name")
	flag.StringVar(&roleID, "role", "user", "account role id")
	flag.BoolVar(&unconfirmed, "unconfirmed", false, "leave the account unconfirmed")

	cfg := config.MustLoad()
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if email == "" || password == "" {
		log.Error("email and password are required")
		os.Exit(2)
	}

	id, err := register(cfg, log, email, password, fullName, roleID, !unconfirmed)
	if err != nil {
		log.Error("failed to register account", sl.Err(err))
		os.Exit(1)
	}

	log.Info("account registered", slog.String("user_id", id), slog.String("email", email))
}

func register(cfg *config.Config, log *slog.Logger, email, password, fullName, roleID string, confirmed bool) (string, error) {
	storageApp, err := app.NewStorageApp(cfg.StoragePath)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := storageApp.Stop(); err != nil {
			log.Error("failed to close storage", sl.Err(err))
		}
	}()

	storage := storageApp.Storage()
	provider := local.New(log, storage, storage, local.Config{
		Issuer:        cfg.Identity.Issuer,
		SigningSecret: cfg.Identity.SigningSecret,
		AccessTTL:     cfg.Identity.AccessTTL,
		RefreshTTL:    cfg.Identity.RefreshTTL,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return provider.Register(ctx, email, password, fullName, roleID, confirmed)
}
