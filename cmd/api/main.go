package main

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dataviz-hub/refine-gateway/config"
	"github.com/dataviz-hub/refine-gateway/internal/auth"
	"github.com/dataviz-hub/refine-gateway/internal/bootstrap"
	"github.com/dataviz-hub/refine-gateway/internal/cleanup"
	"github.com/dataviz-hub/refine-gateway/internal/cloudsync"
	"github.com/dataviz-hub/refine-gateway/internal/refine"
	"github.com/dataviz-hub/refine-gateway/internal/registry"
	"github.com/dataviz-hub/refine-gateway/internal/saved"
	"github.com/dataviz-hub/refine-gateway/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[error] operation=config_load error=%v", err)
	}
	bootstrap.SetGinMode(cfg.App.Environment)

	ctx := context.Background()

	var pool *pgxpool.Pool
	if cfg.Registry.DSN != "" {
		pool, err = bootstrap.OpenDB(ctx, bootstrap.DBOptions{
			DSN:      cfg.Registry.DSN,
			MaxConns: cfg.Registry.MaxConns,
			MinConns: cfg.Registry.MinConns,
		})
		if err != nil {
			log.Fatalf("[error] operation=db_open error=%v", err)
		}
		defer pool.Close()
	}

	reg, err := buildRegistry(cfg, pool)
	if err != nil {
		log.Fatalf("[error] operation=registry_init error=%v", err)
	}

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		log.Fatalf("[error] operation=storage_init error=%v", err)
	}

	client := refine.NewClient(cfg.Backend.URL, cfg.Backend.SharedSecret)
	verifier := auth.NewSupabaseVerifier(cfg.Supabase.URL, cfg.Supabase.AnonKey)

	var savedStore saved.Store
	if pool != nil {
		savedStore = saved.NewPostgresStore(pool)
	} else {
		log.Printf("[warn] operation=startup detail=no DB_DSN, saved projects are in-memory only")
		savedStore = saved.NewMemoryStore()
	}
	savedService := saved.NewService(savedStore, blobs, client, reg, cfg.MaxUploadBytes())

	sync := cloudsync.New(savedService, client, cfg.Sync.Interval, cfg.Sync.MaxImports)
	sweeper := cleanup.NewSweeper(reg, client, cfg.MaxProjectAge())

	scheduler := cleanup.NewScheduler(sweeper, cfg.Cleanup.Schedule)
	scheduler.Start()
	defer scheduler.Stop()

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		Config:   cfg,
		DB:       pool,
		Verifier: verifier,
		Registry: reg,
		Client:   client,
		Saved:    savedService,
		Sync:     sync,
		Sweeper:  sweeper,
	})

	log.Printf("[info] operation=startup port=%s env=%s registry=%s storage=%s",
		cfg.Server.Port, cfg.App.Environment, cfg.Registry.Backend, cfg.Storage.Backend)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("[error] operation=serve error=%v", err)
	}
}

func buildRegistry(cfg *config.Config, pool *pgxpool.Pool) (registry.Store, error) {
	switch cfg.Registry.Backend {
	case "postgres":
		return registry.NewPostgresStore(pool), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Registry.RedisAddr,
			Password: cfg.Registry.RedisPassword,
		})
		return registry.NewRedisStore(client), nil
	default:
		return registry.NewMemoryStore(), nil
	}
}

func buildBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.Storage.Backend == "s3" {
		return storage.NewS3Store(ctx, cfg.Storage.S3Bucket, cfg.Storage.S3Prefix)
	}
	return storage.NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, cfg.Storage.Bucket), nil
}
