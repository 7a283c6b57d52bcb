package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/config"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/db"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/directory"
	internalhttp "github.com/abuabdirohman4/generus-mandiri-sub001/internal/http"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/identity"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/jobs"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/meetings"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()
	store := db.NewStore(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
	}

	dir := directory.New(store, redisClient, cfg.DirectoryCacheTTL)
	profiles := identity.New(store)
	fetcher := meetings.NewLogFetcher(store, cfg.LogFetchChunkSize, cfg.LogFetchParallelism)
	service := meetings.NewService(store, dir, fetcher)

	server := internalhttp.NewServer(cfg, profiles, service)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	jobs.StartOrphanLogSweep(ctx, cfg, store)

	go func() {
		log.Printf("attendance http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
