// Main package for the chat relay server binary.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/driftline/chat-relay/internal/config"
	"github.com/driftline/chat-relay/internal/registry"
	"github.com/driftline/chat-relay/pkg/api"
	"github.com/driftline/chat-relay/pkg/relay"
	"github.com/driftline/chat-relay/pkg/store"
)

func main() {
	logger := zap.Must(zap.NewProduction())
	if os.Getenv("APP_ENV") != "production" {
		logger = zap.Must(zap.NewDevelopment())
	}
	defer logger.Sync()

	//
	// Flags
	configPath := flag.String("config", "chat-relay.toml", "Path to the TOML config file")
	listenAddr := flag.String("listen", "", "Listen address override (e.g. :3000)")
	dbPath := flag.String("db", "", "SQLite database path override (empty uses config, config empty uses in-memory store)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		return
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddress = *listenAddr
	}
	if *dbPath != "" {
		cfg.Server.DatabasePath = *dbPath
	}

	//
	// User store (REST surface only; the relay itself persists nothing)
	var userStore store.UserStore
	if cfg.Server.DatabasePath != "" {
		sqliteStore, err := store.OpenSQLite(cfg.Server.DatabasePath)
		if err != nil {
			logger.Error("Failed to open user database", zap.String("path", cfg.Server.DatabasePath), zap.Error(err))
			return
		}
		userStore = sqliteStore
		logger.Info("Using SQLite user store", zap.String("path", cfg.Server.DatabasePath))
	} else {
		userStore = store.NewMemoryStore()
		logger.Info("Using in-memory user store")
	}
	defer userStore.Close()

	//
	// Relay setup
	reg := registry.CreateRegistry()
	metrics := relay.NewMetrics(nil)
	handler := relay.CreateHandler(reg, metrics, logger)

	server := relay.CreateServer(reg, handler, metrics, relay.ServerParams{
		ListenAddress:      cfg.Server.ListenAddress,
		ListenEndpoint:     cfg.Server.WSEndpoint,
		AllowAllOrigins:    cfg.Server.AllowAllOrigins,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		DeniedOrigins:      cfg.Server.DeniedOrigins,
		MaxReadMessageSize: cfg.Server.MaxMessageSize,
		Logger:             logger,
	})

	api.Register(server.Mux(), userStore, logger)

	shutdownCtx, shutdownRelease := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer shutdownRelease()

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Start(shutdownCtx)
	}()

	wg.Wait()
	logger.Info("Relay exited")
}
