package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"file-conversion-service/internal/codec"
	"file-conversion-service/internal/config"
	"file-conversion-service/internal/converter"
	"file-conversion-service/internal/queue"
	"file-conversion-service/internal/storage"
	"file-conversion-service/internal/store/postgres"
	"file-conversion-service/internal/worker"
)

// Standalone conversion worker. The API process enqueues job ids into
// redis, this process claims and executes them. Requires the shared
// postgres store and a blob backend both processes can reach.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		log.Fatalf("work dir: %v", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("pg: %v", err)
	}
	defer pool.Close()
	st := postgres.New(pool)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}
	q := queue.NewRedis(rdb, cfg.PendingQueue, cfg.ProcessingQueue)

	var blobs storage.BlobStore
	switch cfg.BlobBackend {
	case "s3":
		blobs, err = storage.NewS3(storage.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			log.Fatalf("s3: %v", err)
		}
	default:
		blobs, err = storage.NewLocal(cfg.BlobDir)
		if err != nil {
			log.Fatalf("blob dir: %v", err)
		}
	}

	router := converter.NewRouter(codec.NewRemoteProvider(cfg.CodecURL))
	proc := worker.NewProcessor(st, router, blobs, cfg.WorkDir, cfg.MaxRetries)

	consumer := worker.NewConsumer(q, proc, cfg.WorkerCount)

	// return jobs abandoned by crashed workers back to the queue
	go consumer.Reap(ctx, cfg.ReapInterval)

	log.Printf("[worker] started workers=%d redis_addr=%s queue=%s", cfg.WorkerCount, cfg.RedisAddr, cfg.PendingQueue)
	consumer.Run(ctx)

	log.Println("worker stopped")
}
