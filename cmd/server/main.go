package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"catalogd/internal/account"
	"catalogd/internal/catalog"
	"catalogd/internal/config"
	"catalogd/internal/server"
	"catalogd/internal/storage"
	"catalogd/internal/store"
	"catalogd/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	uploadTimeout, err := config.ParseUploadTimeout(cfg.UploadTimeout)
	if err != nil {
		log.Fatalf("failed to parse upload timeout: %v", err)
	}

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}
	sessions := store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, sessionTTL)

	accounts := account.New(dataStore, sessions)
	if err := accounts.EnsureAdmin(cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatalf("failed to ensure admin account: %v", err)
	}

	cat, err := catalog.New(catalog.Config{
		Store:         dataStore,
		Objects:       objects,
		UploadTimeout: uploadTimeout,
	})
	if err != nil {
		log.Fatalf("failed to init catalog: %v", err)
	}

	httpServer, err := server.New(server.Config{
		Catalog:                 cat,
		Accounts:                accounts,
		RedisAddr:               cfg.RedisAddr,
		RedisPassword:           cfg.RedisPassword,
		LoginRateLimitPerMinute: cfg.LoginRateLimitPerMinute,
		MaxUploadBytes:          cfg.MaxUploadBytes,
		SessionTTL:              sessionTTL,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("catalogd listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
