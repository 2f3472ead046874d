package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"catalog/api/internal/app"
	"catalog/api/internal/cache"
	"catalog/api/internal/config"
	"catalog/api/internal/logger"
	"catalog/api/internal/search"
	"catalog/api/internal/sorting"
	"catalog/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	log := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Output: os.Stderr,
		JSON:   cfg.LogJSON,
	})

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	registry, err := sorting.NewRegistry(store.SortableFields)
	if err != nil {
		log.Error("sortable fields", "error", err)
		os.Exit(1)
	}

	products := store.NewProductRepo(db)
	var searchService *search.Service
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
		searchService = search.NewService(meiliClient, products, log)
		searchService.Reindex(ctx, products, meiliClient)
	} else {
		searchService = search.NewService(nil, products, log)
	}

	opts := app.Options{
		Source:     searchService,
		Registry:   registry,
		Database:   products,
		CORSOrigin: cfg.CORSOrigin,
		Logger:     log,
	}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		pages, err := cache.NewRedisPages(cfg.RedisURL, cfg.PageCacheTTL)
		if err != nil {
			log.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer pages.Close()
		log.Info("using redis page cache", "ttl", cfg.PageCacheTTL)
		opts.Cache = pages
	}

	httpServer := app.NewHTTPServer(opts)
	if err := httpServer.PurgeCache(ctx); err != nil {
		log.Warn("page cache purge failed", "error", err)
	}
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("catalog API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", "error", err)
	}
}
