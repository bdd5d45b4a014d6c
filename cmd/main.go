package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"swing-service/internal/cache"
	"swing-service/internal/config"
	"swing-service/internal/ingest"
	"swing-service/internal/server"
	"swing-service/internal/session"
	"swing-service/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("SWING_CONFIG"), "path to YAML config")
	migrateAction := flag.String("migrate", "", "run a schema action (up, down, version) and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	if *migrateAction != "" {
		if err := runMigrate(os.Stdout, *migrateAction, cfg.Storage.SQLitePath); err != nil {
			log.Fatal(err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	var (
		stores  ingest.MultiStore
		history server.History
		recent  server.Cache
	)

	if path := cfg.Storage.SQLitePath; path != "" {
		db, err := store.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		stores = append(stores, db)
		history = db
		log.Printf("Database ready at %s", path)
	}

	if addr := cfg.Storage.RedisAddr; addr != "" {
		redisClient, err := cache.NewRedisClient(addr)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisClient.Close()
		stores = append(stores, redisClient)
		recent = redisClient
		log.Printf("Redis cache ready at %s", addr)
	}

	var (
		sink   ingest.Store
		writer *ingest.Writer
	)
	if len(stores) > 0 {
		writer = ingest.NewWriter(stores, cfg.Storage.QueueSize)
		sink = writer
	}

	registry := session.NewRegistry(cfg.Detector.Analytics())
	pipeline := ingest.NewPipeline(registry, sink)

	if pipeline.Realtime() {
		log.Printf("Realtime swing detection ENABLED (threshold %.2f rad/s, window %d samples)",
			cfg.Detector.Threshold, cfg.Detector.BufferCapacity)
	} else {
		log.Printf("Realtime swing detection DISABLED, raw data is stored for offline analysis")
	}

	srv := server.NewServer(pipeline, history, recent, server.Options{
		EndSessionsOnDisconnect: cfg.WebSocket.EndSessionsOnDisconnect,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.ListenAddr)
	})
	if cfg.MQTT.Enabled {
		transport := server.NewMQTTTransport(cfg.MQTT, pipeline)
		g.Go(func() error {
			return transport.Run(gctx)
		})
	}
	runErr := g.Wait()

	// Sessions still open at shutdown are ended so their trailing swings and
	// summaries reach storage before the writer drains.
	for _, id := range registry.IDs() {
		pipeline.EndSession(context.Background(), id)
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			log.Printf("Failed to drain persistence queue: %v", err)
		}
		if n := writer.Dropped(); n > 0 {
			log.Printf("Persistence dropped %d operations", n)
		}
		if n := writer.Failed(); n > 0 {
			log.Printf("Persistence failed %d operations", n)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	log.Println("Server stopped")
	return nil
}
