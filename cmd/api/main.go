package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sheetkeeper/api/internal/app"
	"sheetkeeper/api/internal/auth"
	"sheetkeeper/api/internal/authpw"
	"sheetkeeper/api/internal/config"
	"sheetkeeper/api/internal/docstore"
	"sheetkeeper/api/internal/engine"
	"sheetkeeper/api/internal/export"
	"sheetkeeper/api/internal/portrait"
	"sheetkeeper/api/internal/search"
	"sheetkeeper/api/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", engine.Initialization("config", err))
	}
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer store.Close()

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewScan(store))
	go searchService.ReindexAll(ctx)

	var portraits app.PortraitStore
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		svc, err := portrait.New(ctx, portrait.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			log.Printf("WARNING: portrait storage unavailable: %v", err)
		} else {
			portraits = svc
		}
	}

	var revocations session.Revocations = session.NewMemoryStore()
	if cfg.StoreBackend == config.BackendRedis {
		redisRevocations, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("%v", engine.Initialization("redis revocations", err))
		}
		defer redisRevocations.Close()
		revocations = redisRevocations
	}

	registry := engine.NewRegistry(store, engine.Options{
		Debounce: cfg.WriteDebounce,
		Indexer:  searchService,
	})
	defer registry.Close()

	service := app.New(app.Deps{
		Store:       store,
		Registry:    registry,
		Issuer:      auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL),
		Accounts:    authpw.NewService(store),
		Revocations: revocations,
		Search:      searchService,
		Portraits:   portraits,
		Exporter:    export.NewService(),
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No write timeout: /api/session/stream holds its connection open.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Sheets API listening on %s (store=%s)", cfg.Addr, cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// openStore connects the configured backend. Any failure here is fatal.
func openStore(ctx context.Context, cfg config.Config) (docstore.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Printf("Using in-memory document store; data is lost on exit")
		return docstore.NewMemoryStore(), nil
	case config.BackendPostgres:
		db, err := docstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, engine.Initialization("database connection", err)
		}
		if err := docstore.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			_ = db.Close()
			return nil, engine.Initialization("migrations", err)
		}
		return docstore.NewPostgresStore(db, cfg.DatabaseURL), nil
	default:
		store, err := docstore.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, engine.Initialization("redis connection", err)
		}
		return store, nil
	}
}
