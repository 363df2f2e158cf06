package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"

	"file-conversion-service/internal/entity"
	"file-conversion-service/internal/store"
)

// BatchService groups jobs submitted together. Membership is fixed at
// creation; the aggregate status is recomputed from member statuses on
// every read, never cached.
type BatchService struct {
	store     JobStore
	conv      *ConversionService
	downloads *Downloads
}

func NewBatchService(st JobStore, conv *ConversionService, downloads *Downloads) *BatchService {
	return &BatchService{store: st, conv: conv, downloads: downloads}
}

// RejectedItem reports a batch member that failed admission.
type RejectedItem struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// SubmitBatch admits each item independently under one batch id. Items
// that fail validation are reported back, not silently dropped; the batch
// is created with the accepted members only.
func (s *BatchService) SubmitBatch(ctx context.Context, items []SubmitRequest) (*entity.BatchJob, []RejectedItem, error) {
	if len(items) == 0 {
		return nil, nil, fmt.Errorf("%w: batch has no files", ErrInvalidInput)
	}

	batchID := uuid.New()
	var memberIDs []uuid.UUID
	var rejected []RejectedItem

	for i := range items {
		items[i].BatchID = &batchID
		job, err := s.conv.Submit(ctx, items[i])
		if err != nil {
			rejected = append(rejected, RejectedItem{
				Filename: items[i].Filename,
				Reason:   err.Error(),
			})
			continue
		}
		memberIDs = append(memberIDs, job.ID)
	}

	if len(memberIDs) == 0 {
		return nil, rejected, fmt.Errorf("%w: no batch member was accepted", ErrInvalidInput)
	}

	batch := &entity.BatchJob{ID: batchID, MemberJobIDs: memberIDs}
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return nil, rejected, fmt.Errorf("register batch: %w", err)
	}
	return batch, rejected, nil
}

type JobSummary struct {
	ID           uuid.UUID        `json:"id"`
	Filename     string           `json:"filename"`
	TargetFormat string           `json:"target_format"`
	Status       entity.JobStatus `json:"status"`
	ErrorMessage *string          `json:"error_message,omitempty"`
}

type BatchStatus struct {
	BatchID   uuid.UUID        `json:"batch_id"`
	Aggregate entity.JobStatus `json:"aggregate_status"`
	Counts    map[string]int   `json:"counts"`
	Jobs      []JobSummary     `json:"jobs"`
}

// Status aggregates the member job statuses.
func (s *BatchService) Status(ctx context.Context, batchID uuid.UUID) (*BatchStatus, error) {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	statuses := make([]entity.JobStatus, 0, len(batch.MemberJobIDs))
	counts := make(map[string]int)
	jobs := make([]JobSummary, 0, len(batch.MemberJobIDs))

	for _, jobID := range batch.MemberJobIDs {
		job, err := s.store.Get(ctx, jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue // member evicted after retention; skip, don't crash
			}
			return nil, err
		}
		statuses = append(statuses, job.Status)
		counts[string(job.Status)]++
		jobs = append(jobs, JobSummary{
			ID:           job.ID,
			Filename:     job.OriginalFilename,
			TargetFormat: job.TargetFormat,
			Status:       job.Status,
			ErrorMessage: job.ErrorMessage,
		})
	}

	return &BatchStatus{
		BatchID:   batchID,
		Aggregate: entity.AggregateStatus(statuses),
		Counts:    counts,
		Jobs:      jobs,
	}, nil
}

// WriteArchive streams a zip of every completed member's artifact.
// Members that are not completed are skipped.
func (s *BatchService) WriteArchive(ctx context.Context, batchID uuid.UUID, w io.Writer) error {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for _, jobID := range batch.MemberJobIDs {
		path, name, err := s.downloads.ResolveDownload(ctx, jobID)
		if err != nil {
			continue
		}
		if err := addToArchive(zw, path, name); err != nil {
			log.Printf("[service] batch_id=%s job_id=%s archive error=%v", batchID, jobID, err)
		}
	}
	return zw.Close()
}

func addToArchive(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	entry, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}
