// Package store is the single source of truth for job and batch records.
// It enforces the job state machine: pending -> processing -> {completed,
// failed}, terminal states immutable.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"file-conversion-service/internal/entity"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Update carries the fields a transition may set. Output fields apply on
// entry to completed, ErrorMessage on entry to failed.
type Update struct {
	OutputPath      string
	OutputSizeBytes int64
	ErrorMessage    string
}

type Store interface {
	Create(ctx context.Context, job *entity.ConversionJob) error
	Get(ctx context.Context, id uuid.UUID) (*entity.ConversionJob, error)

	// Transition moves a job to the next state, stamping StartedAt on
	// pending->processing and CompletedAt on entry to a terminal state.
	// It fails with ErrInvalidTransition for anything outside the allowed
	// set, including any transition out of a terminal state.
	Transition(ctx context.Context, id uuid.UUID, next entity.JobStatus, upd Update) (*entity.ConversionJob, error)

	// Delete removes a job record. Used only to roll back an admission
	// that could not be scheduled; running jobs are never deleted.
	Delete(ctx context.Context, id uuid.UUID) error

	CreateBatch(ctx context.Context, batch *entity.BatchJob) error
	GetBatch(ctx context.Context, id uuid.UUID) (*entity.BatchJob, error)
}

// allowedFrom returns the required current status for a transition into
// next, or false when next is never a valid destination.
func allowedFrom(next entity.JobStatus) (entity.JobStatus, bool) {
	switch next {
	case entity.StatusProcessing:
		return entity.StatusPending, true
	case entity.StatusCompleted, entity.StatusFailed:
		return entity.StatusProcessing, true
	default:
		return "", false
	}
}
