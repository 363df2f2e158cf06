// Package postgres backs the job store with Postgres. State transitions
// use conditional updates (status = expected) as a compare-and-swap so two
// racing writers can never both move the same job.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"file-conversion-service/internal/entity"
	"file-conversion-service/internal/store"
)

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}
	return pool, nil
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, job *entity.ConversionJob) error {
	const q = `
INSERT INTO conversion_jobs
  (id, batch_id, original_filename, source_format, target_format,
   file_size_bytes, status, quality, width, height, input_path, created_at)
VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8, $9, $10, now())
RETURNING created_at;
`
	job.Status = entity.StatusPending
	return s.pool.QueryRow(ctx, q,
		job.ID, job.BatchID, job.OriginalFilename, job.SourceFormat, job.TargetFormat,
		job.FileSizeBytes, job.Options.Quality, job.Options.Width, job.Options.Height,
		job.InputPath,
	).Scan(&job.CreatedAt)
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*entity.ConversionJob, error) {
	const q = `
SELECT id, batch_id, original_filename, source_format, target_format,
       file_size_bytes, status, quality, width, height,
       input_path, output_path, output_size_bytes, error_message,
       created_at, started_at, completed_at
FROM conversion_jobs
WHERE id = $1;
`
	var (
		job        entity.ConversionJob
		statusText string
		outputPath *string
	)
	if err := s.pool.QueryRow(ctx, q, id).Scan(
		&job.ID,
		&job.BatchID,
		&job.OriginalFilename,
		&job.SourceFormat,
		&job.TargetFormat,
		&job.FileSizeBytes,
		&statusText,
		&job.Options.Quality,
		&job.Options.Width,
		&job.Options.Height,
		&job.InputPath,
		&outputPath,
		&job.OutputSizeBytes,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	job.Status = entity.JobStatus(statusText)
	if outputPath != nil {
		job.OutputPath = *outputPath
	}
	return &job, nil
}

func (s *Store) Transition(ctx context.Context, id uuid.UUID, next entity.JobStatus, upd store.Update) (*entity.ConversionJob, error) {
	var q string
	var args []any

	switch next {
	case entity.StatusProcessing:
		q = `UPDATE conversion_jobs SET status='processing', started_at=now()
WHERE id=$1 AND status='pending';`
		args = []any{id}
	case entity.StatusCompleted:
		q = `UPDATE conversion_jobs SET status='completed', completed_at=now(),
  output_path=$2, output_size_bytes=$3
WHERE id=$1 AND status='processing';`
		args = []any{id, upd.OutputPath, upd.OutputSizeBytes}
	case entity.StatusFailed:
		q = `UPDATE conversion_jobs SET status='failed', completed_at=now(),
  error_message=$2
WHERE id=$1 AND status='processing';`
		args = []any{id, upd.ErrorMessage}
	default:
		return nil, store.ErrInvalidTransition
	}

	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		// distinguish a missing job from an illegal transition
		if _, getErr := s.Get(ctx, id); errors.Is(getErr, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrInvalidTransition
	}
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM conversion_jobs WHERE id=$1;`

	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateBatch(ctx context.Context, batch *entity.BatchJob) error {
	const q = `
INSERT INTO conversion_batches (id, member_job_ids, created_at)
VALUES ($1, $2, now())
RETURNING created_at;
`
	return s.pool.QueryRow(ctx, q, batch.ID, batch.MemberJobIDs).Scan(&batch.CreatedAt)
}

func (s *Store) GetBatch(ctx context.Context, id uuid.UUID) (*entity.BatchJob, error) {
	const q = `
SELECT id, member_job_ids, created_at
FROM conversion_batches
WHERE id = $1;
`
	var batch entity.BatchJob
	if err := s.pool.QueryRow(ctx, q, id).Scan(
		&batch.ID,
		&batch.MemberJobIDs,
		&batch.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}
