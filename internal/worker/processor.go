package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"file-conversion-service/internal/codec"
	"file-conversion-service/internal/converter"
	"file-conversion-service/internal/entity"
	"file-conversion-service/internal/storage"
	"file-conversion-service/internal/store"
)

type JobStore interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.ConversionJob, error)
	Transition(ctx context.Context, id uuid.UUID, next entity.JobStatus, upd store.Update) (*entity.ConversionJob, error)
}

type Router interface {
	Route(source, target string) (converter.Strategy, error)
}

// Processor executes one conversion job end to end: claim it by moving it
// to processing, run the routed strategy, and record the terminal state.
// Transient codec failures are retried a bounded number of times with
// capped backoff; nothing else is.
type Processor struct {
	store      JobStore
	router     Router
	blobs      storage.BlobStore // nil when artifacts stay on this host
	workDir    string
	maxRetries int
	backoff    time.Duration
}

func NewProcessor(st JobStore, router Router, blobs storage.BlobStore, workDir string, maxRetries int) *Processor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Processor{
		store:      st,
		router:     router,
		blobs:      blobs,
		workDir:    workDir,
		maxRetries: maxRetries,
		backoff:    time.Second,
	}
}

// Process runs the job with the given id. The pending->processing
// transition doubles as the execution lock: if another worker already
// claimed the job, this call logs and returns without side effects.
func (p *Processor) Process(ctx context.Context, id uuid.UUID) error {
	start := time.Now()

	job, err := p.store.Transition(ctx, id, entity.StatusProcessing, store.Update{})
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			log.Printf("[worker] job_id=%s already claimed, skipping", id)
			return nil
		}
		return fmt.Errorf("claim job %s: %w", id, err)
	}

	if err := p.ensureInput(ctx, job); err != nil {
		p.fail(ctx, job, fmt.Sprintf("fetch input: %v", err))
		return err
	}

	strategy, err := p.router.Route(job.SourceFormat, job.TargetFormat)
	if err != nil {
		// admission already vetted the pair; reaching this is a data bug
		p.fail(ctx, job, err.Error())
		return err
	}

	res, convErr := p.convertWithRetry(ctx, job, strategy)
	if convErr != nil {
		p.fail(ctx, job, convErr.Error())
		log.Printf("[worker] job_id=%s %s->%s status=failed duration_ms=%d error=%v",
			id, job.SourceFormat, job.TargetFormat, time.Since(start).Milliseconds(), convErr)
		return convErr
	}

	if p.blobs != nil {
		if err := p.blobs.Put(ctx, filepath.Base(res.OutputPath), res.OutputPath); err != nil {
			p.fail(ctx, job, fmt.Sprintf("store artifact: %v", err))
			return err
		}
	}

	if _, err := p.store.Transition(ctx, id, entity.StatusCompleted, store.Update{
		OutputPath:      res.OutputPath,
		OutputSizeBytes: res.OutputSizeBytes,
	}); err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	p.releaseInput(job)

	log.Printf("[worker] job_id=%s %s->%s status=completed output_bytes=%d duration_ms=%d",
		id, job.SourceFormat, job.TargetFormat, res.OutputSizeBytes, time.Since(start).Milliseconds())
	return nil
}

func (p *Processor) convertWithRetry(ctx context.Context, job *entity.ConversionJob, strategy converter.Strategy) (converter.Result, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.backoff << uint(attempt-1)
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
			log.Printf("[worker] job_id=%s retry=%d/%d in %v", job.ID, attempt, p.maxRetries, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return converter.Result{}, fmt.Errorf("conversion aborted: %w", ctx.Err())
			}
		}

		res, err := strategy.Convert(ctx, job.InputPath, job.TargetFormat, job.Options)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return converter.Result{}, fmt.Errorf("conversion aborted: %w", ctx.Err())
		}
		if !codec.IsTransient(err) {
			break
		}
	}
	return converter.Result{}, lastErr
}

// ensureInput materializes the input file locally when the job was
// admitted by another process.
func (p *Processor) ensureInput(ctx context.Context, job *entity.ConversionJob) error {
	if _, err := os.Stat(job.InputPath); err == nil {
		return nil
	}
	if p.blobs == nil {
		return fmt.Errorf("input file missing: %s", job.InputPath)
	}
	local := filepath.Join(p.workDir, filepath.Base(job.InputPath))
	if err := p.blobs.Fetch(ctx, filepath.Base(job.InputPath), local); err != nil {
		return err
	}
	job.InputPath = local
	return nil
}

func (p *Processor) fail(ctx context.Context, job *entity.ConversionJob, msg string) {
	if _, err := p.store.Transition(ctx, job.ID, entity.StatusFailed, store.Update{ErrorMessage: msg}); err != nil {
		log.Printf("[worker] job_id=%s record failure error=%v", job.ID, err)
	}
	p.releaseInput(job)
}

// releaseInput hands the input file back on terminal entry. Best-effort:
// a missing file is fine, and cleanup failures never block the terminal
// status.
func (p *Processor) releaseInput(job *entity.ConversionJob) {
	if err := os.Remove(job.InputPath); err != nil && !os.IsNotExist(err) {
		log.Printf("[worker] job_id=%s release input error=%v", job.ID, err)
	}
	if p.blobs != nil {
		if err := p.blobs.Delete(context.Background(), filepath.Base(job.InputPath)); err != nil {
			log.Printf("[worker] job_id=%s release input blob error=%v", job.ID, err)
		}
	}
}
