package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"file-conversion-service/internal/entity"
	"file-conversion-service/internal/storage"
)

// ErrNotReady means the job exists but has no downloadable artifact yet
// (still pending/processing, or failed).
var ErrNotReady = errors.New("conversion not finished")

// Downloads tracks artifact lifetime: it serves completed artifacts,
// schedules deletion shortly after a successful download, and sweeps
// unclaimed artifacts past the absolute retention window. Every delete is
// idempotent and scoped to the owning job's files.
type Downloads struct {
	store     JobStore
	blobs     storage.BlobStore
	workDir   string
	grace     time.Duration
	retention time.Duration
}

func NewDownloads(st JobStore, blobs storage.BlobStore, workDir string, grace, retention time.Duration) *Downloads {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Downloads{
		store:     st,
		blobs:     blobs,
		workDir:   workDir,
		grace:     grace,
		retention: retention,
	}
}

// ResolveDownload returns the artifact path and the download file name for
// a completed job. store.ErrNotFound passes through for unknown ids and
// expired artifacts; ErrNotReady covers every non-completed status.
func (d *Downloads) ResolveDownload(ctx context.Context, jobID uuid.UUID) (path, name string, err error) {
	job, err := d.store.Get(ctx, jobID)
	if err != nil {
		return "", "", err
	}
	if job.Status != entity.StatusCompleted {
		return "", "", fmt.Errorf("%w: job is %s", ErrNotReady, job.Status)
	}

	path = job.OutputPath
	if _, statErr := os.Stat(path); statErr != nil {
		if d.blobs == nil {
			// artifact already cleaned up
			return "", "", fmt.Errorf("artifact expired: %w", statErr)
		}
		path = filepath.Join(d.workDir, filepath.Base(job.OutputPath))
		if fetchErr := d.blobs.Fetch(ctx, filepath.Base(job.OutputPath), path); fetchErr != nil {
			return "", "", fmt.Errorf("fetch artifact: %w", fetchErr)
		}
	}
	return path, downloadName(job), nil
}

// MarkDownloaded schedules artifact deletion after the grace period.
// Calling it twice only moves the inevitable; deletion of a file that is
// already gone is a no-op.
func (d *Downloads) MarkDownloaded(jobID uuid.UUID, path string) {
	time.AfterFunc(d.grace, func() {
		d.remove(path)
		log.Printf("[cleanup] job_id=%s artifact removed after download", jobID)
	})
}

// Janitor sweeps the work directory on a timer, deleting files older than
// the retention window. Cleanup failures are logged and never escalated.
func (d *Downloads) Janitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	log.Printf("[cleanup] janitor started retention=%s", d.retention)
	for {
		select {
		case <-ctx.Done():
			log.Println("[cleanup] janitor stopped")
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *Downloads) sweep() {
	entries, err := os.ReadDir(d.workDir)
	if err != nil {
		log.Printf("[cleanup] sweep error=%v", err)
		return
	}

	cutoff := time.Now().Add(-d.retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			d.remove(filepath.Join(d.workDir, e.Name()))
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[cleanup] swept %d expired files", removed)
	}
}

// remove deletes one artifact file, and its blob copy when a blob store is
// configured. Already-deleted files are fine.
func (d *Downloads) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[cleanup] remove %s error=%v", path, err)
	}
	if d.blobs != nil {
		if err := d.blobs.Delete(context.Background(), filepath.Base(path)); err != nil {
			log.Printf("[cleanup] remove blob %s error=%v", filepath.Base(path), err)
		}
	}
}

// downloadName derives the client-facing file name from the original
// upload and the target format.
func downloadName(job *entity.ConversionJob) string {
	base := strings.TrimSuffix(job.OriginalFilename, filepath.Ext(job.OriginalFilename))
	if base == "" {
		base = job.ID.String()
	}
	return base + "." + job.TargetFormat
}
