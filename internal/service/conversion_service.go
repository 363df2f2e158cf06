package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"file-conversion-service/internal/converter"
	"file-conversion-service/internal/entity"
	"file-conversion-service/internal/format"
	"file-conversion-service/internal/storage"
)

// ErrInvalidInput covers synchronous submission defects: missing file,
// missing target format, empty upload.
var ErrInvalidInput = errors.New("invalid input")

// Ports, implemented by store.Memory / postgres.Store and worker.Pool (or
// the queue enqueuer in multi-process mode).
type JobStore interface {
	Create(ctx context.Context, job *entity.ConversionJob) error
	Get(ctx context.Context, id uuid.UUID) (*entity.ConversionJob, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CreateBatch(ctx context.Context, batch *entity.BatchJob) error
	GetBatch(ctx context.Context, id uuid.UUID) (*entity.BatchJob, error)
}

type Scheduler interface {
	Submit(ctx context.Context, id uuid.UUID) error
}

type Pairs interface {
	Route(source, target string) (converter.Strategy, error)
}

type ConversionService struct {
	store   JobStore
	sched   Scheduler
	pairs   Pairs
	blobs   storage.BlobStore // nil when workers share this filesystem
	workDir string
}

func NewConversionService(st JobStore, sched Scheduler, pairs Pairs, blobs storage.BlobStore, workDir string) *ConversionService {
	return &ConversionService{
		store:   st,
		sched:   sched,
		pairs:   pairs,
		blobs:   blobs,
		workDir: workDir,
	}
}

type SubmitRequest struct {
	Filename     string
	TargetFormat string
	File         io.Reader
	Options      entity.ConvertOptions
	BatchID      *uuid.UUID
}

// Submit validates a conversion request, spools the upload, registers the
// job and hands it to the scheduler. It returns as soon as the job is
// pending; conversion happens in the background. Unsupported pairs and
// invalid input fail here, synchronously, with no job created and no file
// retained.
func (s *ConversionService) Submit(ctx context.Context, req SubmitRequest) (*entity.ConversionJob, error) {
	if req.File == nil || req.Filename == "" {
		return nil, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}
	if req.TargetFormat == "" {
		return nil, fmt.Errorf("%w: target format is required", ErrInvalidInput)
	}

	src := format.Normalize(strings.TrimPrefix(filepath.Ext(req.Filename), "."))
	if src == "" {
		return nil, fmt.Errorf("%w: filename has no extension", ErrInvalidInput)
	}
	dst := format.Normalize(req.TargetFormat)

	// cost control: an unsupported pair must never reach the scheduler
	if _, err := s.pairs.Route(src, dst); err != nil {
		return nil, err
	}

	id := uuid.New()
	inputPath := filepath.Join(s.workDir, fmt.Sprintf("%s.in.%s", id, src))

	size, err := spool(req.File, inputPath)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		os.Remove(inputPath)
		return nil, fmt.Errorf("%w: uploaded file is empty", ErrInvalidInput)
	}

	if s.blobs != nil {
		if err := s.blobs.Put(ctx, filepath.Base(inputPath), inputPath); err != nil {
			os.Remove(inputPath)
			return nil, fmt.Errorf("stage input: %w", err)
		}
	}

	job := &entity.ConversionJob{
		ID:               id,
		BatchID:          req.BatchID,
		OriginalFilename: filepath.Base(req.Filename),
		SourceFormat:     src,
		TargetFormat:     dst,
		FileSizeBytes:    size,
		Options:          req.Options,
		InputPath:        inputPath,
	}
	if err := s.store.Create(ctx, job); err != nil {
		os.Remove(inputPath)
		return nil, fmt.Errorf("register job: %w", err)
	}

	if err := s.sched.Submit(ctx, id); err != nil {
		// admission rollback: the job never started, so it may be removed
		if delErr := s.store.Delete(ctx, id); delErr != nil {
			log.Printf("[service] job_id=%s rollback error=%v", id, delErr)
		}
		os.Remove(inputPath)
		return nil, err
	}
	return job, nil
}

// Status returns the current job record.
func (s *ConversionService) Status(ctx context.Context, id uuid.UUID) (*entity.ConversionJob, error) {
	return s.store.Get(ctx, id)
}

func spool(r io.Reader, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("spool upload: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("spool upload: %w", err)
	}
	return n, nil
}
