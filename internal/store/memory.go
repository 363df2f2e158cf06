package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"file-conversion-service/internal/entity"
)

// Memory is the in-process Store. All access to a record is serialized
// through one mutex, so two concurrent completions can never both win.
type Memory struct {
	mu      sync.RWMutex
	jobs    map[uuid.UUID]*entity.ConversionJob
	batches map[uuid.UUID]*entity.BatchJob
}

func NewMemory() *Memory {
	return &Memory{
		jobs:    make(map[uuid.UUID]*entity.ConversionJob),
		batches: make(map[uuid.UUID]*entity.BatchJob),
	}
}

func (m *Memory) Create(ctx context.Context, job *entity.ConversionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *job
	cp.Status = entity.StatusPending
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.jobs[cp.ID] = &cp
	job.Status = cp.Status
	job.CreatedAt = cp.CreatedAt
	return nil
}

func (m *Memory) Get(ctx context.Context, id uuid.UUID) (*entity.ConversionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *Memory) Transition(ctx context.Context, id uuid.UUID, next entity.JobStatus, upd Update) (*entity.ConversionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}

	required, ok := allowedFrom(next)
	if !ok || job.Status != required {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	job.Status = next
	switch next {
	case entity.StatusProcessing:
		job.StartedAt = &now
	case entity.StatusCompleted:
		job.CompletedAt = &now
		job.OutputPath = upd.OutputPath
		job.OutputSizeBytes = upd.OutputSizeBytes
	case entity.StatusFailed:
		job.CompletedAt = &now
		if upd.ErrorMessage != "" {
			msg := upd.ErrorMessage
			job.ErrorMessage = &msg
		}
	}

	cp := *job
	return &cp, nil
}

func (m *Memory) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *Memory) CreateBatch(ctx context.Context, batch *entity.BatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := entity.BatchJob{
		ID:        batch.ID,
		CreatedAt: batch.CreatedAt,
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.MemberJobIDs = make([]uuid.UUID, len(batch.MemberJobIDs))
	copy(cp.MemberJobIDs, batch.MemberJobIDs)

	m.batches[cp.ID] = &cp
	batch.CreatedAt = cp.CreatedAt
	return nil
}

func (m *Memory) GetBatch(ctx context.Context, id uuid.UUID) (*entity.BatchJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	batch, ok := m.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := entity.BatchJob{ID: batch.ID, CreatedAt: batch.CreatedAt}
	cp.MemberJobIDs = make([]uuid.UUID, len(batch.MemberJobIDs))
	copy(cp.MemberJobIDs, batch.MemberJobIDs)
	return &cp, nil
}
