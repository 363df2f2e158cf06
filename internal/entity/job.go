package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether a status is final. Terminal jobs never change
// again.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ConvertOptions are the optional knobs a caller may attach to a
// submission. They are passed through to the converter and never mandatory.
type ConvertOptions struct {
	Quality int `json:"quality,omitempty"`
	Width   int `json:"width,omitempty"`
	Height  int `json:"height,omitempty"`
}

type ConversionJob struct {
	ID               uuid.UUID      `json:"id"`
	BatchID          *uuid.UUID     `json:"batch_id,omitempty"`
	OriginalFilename string         `json:"original_filename"`
	SourceFormat     string         `json:"source_format"`
	TargetFormat     string         `json:"target_format"`
	FileSizeBytes    int64          `json:"file_size_bytes"`
	Status           JobStatus      `json:"status"`
	Options          ConvertOptions `json:"options,omitempty"`
	InputPath        string         `json:"-"`
	OutputPath       string         `json:"-"`
	OutputSizeBytes  int64          `json:"output_size_bytes,omitempty"`
	ErrorMessage     *string        `json:"error_message,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// ProcessingTimeMs is derived from the started/completed stamps; zero until
// the job is terminal.
func (j *ConversionJob) ProcessingTimeMs() int64 {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt).Milliseconds()
}

// Progress maps the lifecycle onto a coarse 0-100 scale for status polling.
func (j *ConversionJob) Progress() int {
	switch j.Status {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 50
	default:
		return 100
	}
}

// BatchJob groups jobs submitted together. Membership is fixed at creation.
type BatchJob struct {
	ID           uuid.UUID   `json:"id"`
	MemberJobIDs []uuid.UUID `json:"member_job_ids"`
	CreatedAt    time.Time   `json:"created_at"`
}

// AggregateStatus derives a batch status from its member statuses:
// completed iff every member completed, failed iff every member failed,
// otherwise processing while anything is still moving or the outcome is
// mixed. An empty member list reads as pending.
func AggregateStatus(members []JobStatus) JobStatus {
	if len(members) == 0 {
		return StatusPending
	}

	allCompleted := true
	allFailed := true
	for _, s := range members {
		if s != StatusCompleted {
			allCompleted = false
		}
		if s != StatusFailed {
			allFailed = false
		}
	}

	switch {
	case allCompleted:
		return StatusCompleted
	case allFailed:
		return StatusFailed
	default:
		return StatusProcessing
	}
}
