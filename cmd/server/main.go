package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"file-conversion-service/internal/codec"
	"file-conversion-service/internal/config"
	"file-conversion-service/internal/converter"
	"file-conversion-service/internal/queue"
	"file-conversion-service/internal/service"
	"file-conversion-service/internal/storage"
	"file-conversion-service/internal/store"
	"file-conversion-service/internal/store/postgres"
	httptransport "file-conversion-service/internal/transport/http"
	"file-conversion-service/internal/worker"
)

// queueScheduler hands accepted jobs to the durable queue instead of the
// in-process pool. Workers in other processes claim them from there.
type queueScheduler struct {
	q queue.Queue
}

func (s *queueScheduler) Submit(ctx context.Context, id uuid.UUID) error {
	return s.q.Enqueue(ctx, id.String())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		log.Fatalf("work dir: %v", err)
	}

	// store
	var st store.Store
	switch cfg.StoreBackend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("pg: %v", err)
		}
		defer pool.Close()
		st = postgres.New(pool)
	default:
		st = store.NewMemory()
	}

	// blob store (only needed when api and workers are separate processes)
	var blobs storage.BlobStore
	var err error
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
	case "local":
		if cfg.QueueMode == "redis" {
			blobs, err = storage.NewLocal(cfg.BlobDir)
			if err != nil {
				log.Fatalf("blob dir: %v", err)
			}
		}
	}

	router := converter.NewRouter(codec.NewRemoteProvider(cfg.CodecURL))

	// scheduler: inline pool in this process, or a redis queue that a
	// separate worker process drains
	var sched service.Scheduler
	switch cfg.QueueMode {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		sched = &queueScheduler{q: queue.NewRedis(rdb, cfg.PendingQueue, cfg.ProcessingQueue)}
	default:
		proc := worker.NewProcessor(st, router, blobs, cfg.WorkDir, cfg.MaxRetries)
		pool := worker.NewPool(proc, cfg.WorkerCount, cfg.QueueCapacity)
		pool.Start(ctx)
		defer pool.Wait()
		sched = pool
	}

	conv := service.NewConversionService(st, sched, router, blobs, cfg.WorkDir)
	downloads := service.NewDownloads(st, blobs, cfg.WorkDir, cfg.DownloadGrace, time.Duration(cfg.RetentionHours)*time.Hour)
	batches := service.NewBatchService(st, conv, downloads)

	go downloads.Janitor(ctx, cfg.SweepInterval)

	h := httptransport.NewHandler(conv, batches, downloads)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.Routes(h),
	}

	go func() {
		log.Printf("[server] listening addr=%s store=%s queue=%s workers=%d",
			srv.Addr, cfg.StoreBackend, cfg.QueueMode, cfg.WorkerCount)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] shutdown error=%v", err)
	}

	log.Println("server stopped")
}
