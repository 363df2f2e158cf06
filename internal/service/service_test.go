package service_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"file-conversion-service/internal/codec"
	"file-conversion-service/internal/converter"
	"file-conversion-service/internal/entity"
	"file-conversion-service/internal/service"
	"file-conversion-service/internal/store"
	"file-conversion-service/internal/worker"
)

// nopCodec satisfies codec.Provider for router construction; service tests
// never reach a codec call.
type nopCodec struct{}

func (nopCodec) ExtractText(ctx context.Context, path string) (string, error) { return "", nil }
func (nopCodec) EncodeRaster(ctx context.Context, data []byte, format string, opts codec.Options) ([]byte, error) {
	return data, nil
}
func (nopCodec) ParseTabular(ctx context.Context, path string) (codec.Table, error) {
	return codec.Table{}, nil
}
func (nopCodec) RenderTabular(ctx context.Context, t codec.Table, format string) ([]byte, error) {
	return nil, nil
}

type fakeScheduler struct {
	submitted []uuid.UUID
	err       error
}

func (s *fakeScheduler) Submit(ctx context.Context, id uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.submitted = append(s.submitted, id)
	return nil
}

func newService(t *testing.T) (*service.ConversionService, *store.Memory, *fakeScheduler, string) {
	t.Helper()
	workDir := t.TempDir()
	st := store.NewMemory()
	sched := &fakeScheduler{}
	svc := service.NewConversionService(st, sched, converter.NewRouter(nopCodec{}), nil, workDir)
	return svc, st, sched, workDir
}

func filesIn(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSubmit_CreatesPendingJobAndSchedules(t *testing.T) {
	svc, st, sched, workDir := newService(t)

	job, err := svc.Submit(context.Background(), service.SubmitRequest{
		Filename:     "notes.TXT",
		TargetFormat: "PDF",
		File:         strings.NewReader("hello"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if job.Status != entity.StatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}
	if job.SourceFormat != "txt" || job.TargetFormat != "pdf" {
		t.Fatalf("formats not normalized: %s -> %s", job.SourceFormat, job.TargetFormat)
	}
	if job.FileSizeBytes != 5 {
		t.Fatalf("file size = %d", job.FileSizeBytes)
	}
	if len(sched.submitted) != 1 || sched.submitted[0] != job.ID {
		t.Fatal("job not handed to scheduler")
	}
	if _, err := os.Stat(job.InputPath); err != nil {
		t.Fatalf("input not spooled: %v", err)
	}
	if got, _ := st.Get(context.Background(), job.ID); got == nil {
		t.Fatal("job not persisted")
	}
	if len(filesIn(t, workDir)) != 1 {
		t.Fatal("unexpected files in work dir")
	}
}

func TestSubmit_UnsupportedPairCreatesNothing(t *testing.T) {
	svc, _, sched, workDir := newService(t)

	_, err := svc.Submit(context.Background(), service.SubmitRequest{
		Filename:     "photo.jpg",
		TargetFormat: "docx",
		File:         strings.NewReader("jpeg bytes"),
	})
	if !errors.Is(err, converter.ErrUnsupportedConversion) {
		t.Fatalf("expected ErrUnsupportedConversion, got %v", err)
	}
	if len(sched.submitted) != 0 {
		t.Fatal("unsupported pair reached the scheduler")
	}
	if names := filesIn(t, workDir); len(names) != 0 {
		t.Fatalf("file retained on disk after reject: %v", names)
	}
}

func TestSubmit_InvalidInput(t *testing.T) {
	svc, _, _, workDir := newService(t)
	ctx := context.Background()

	cases := []service.SubmitRequest{
		{Filename: "", TargetFormat: "pdf", File: strings.NewReader("x")},
		{Filename: "a.txt", TargetFormat: "", File: strings.NewReader("x")},
		{Filename: "a.txt", TargetFormat: "pdf", File: nil},
		{Filename: "noext", TargetFormat: "pdf", File: strings.NewReader("x")},
		{Filename: "a.txt", TargetFormat: "pdf", File: bytes.NewReader(nil)}, // empty upload
	}
	for i, req := range cases {
		if _, err := svc.Submit(ctx, req); !errors.Is(err, service.ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
	if names := filesIn(t, workDir); len(names) != 0 {
		t.Fatalf("files retained after invalid submissions: %v", names)
	}
}

func TestSubmit_QueueFullRollsBack(t *testing.T) {
	workDir := t.TempDir()
	st := store.NewMemory()
	sched := &fakeScheduler{err: worker.ErrQueueFull}
	svc := service.NewConversionService(st, sched, converter.NewRouter(nopCodec{}), nil, workDir)

	_, err := svc.Submit(context.Background(), service.SubmitRequest{
		Filename:     "a.txt",
		TargetFormat: "pdf",
		File:         strings.NewReader("x"),
	})
	if !errors.Is(err, worker.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if names := filesIn(t, workDir); len(names) != 0 {
		t.Fatalf("input retained after rollback: %v", names)
	}
}

func TestSubmit_ConcurrentDuplicatesAreIndependent(t *testing.T) {
	svc, _, sched, _ := newService(t)
	ctx := context.Background()

	a, err := svc.Submit(ctx, service.SubmitRequest{
		Filename: "same.txt", TargetFormat: "pdf", File: strings.NewReader("identical"),
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.Submit(ctx, service.SubmitRequest{
		Filename: "same.txt", TargetFormat: "pdf", File: strings.NewReader("identical"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if a.ID == b.ID {
		t.Fatal("two submissions coalesced into one job")
	}
	if a.InputPath == b.InputPath {
		t.Fatal("two submissions share an input file")
	}
	if len(sched.submitted) != 2 {
		t.Fatal("expected two scheduled jobs")
	}
}

func TestBatch_SubmitAndAggregate(t *testing.T) {
	svc, st, _, workDir := newService(t)
	downloads := service.NewDownloads(st, nil, workDir, time.Minute, time.Hour)
	batches := service.NewBatchService(st, svc, downloads)
	ctx := context.Background()

	batch, rejected, err := batches.SubmitBatch(ctx, []service.SubmitRequest{
		{Filename: "a.txt", TargetFormat: "pdf", File: strings.NewReader("a")},
		{Filename: "b.txt", TargetFormat: "pdf", File: strings.NewReader("b")},
		{Filename: "c.jpg", TargetFormat: "docx", File: strings.NewReader("c")}, // unsupported
	})
	if err != nil {
		t.Fatalf("submit batch: %v", err)
	}
	if len(batch.MemberJobIDs) != 2 {
		t.Fatalf("expected 2 members, got %d", len(batch.MemberJobIDs))
	}
	if len(rejected) != 1 || rejected[0].Filename != "c.jpg" {
		t.Fatalf("expected c.jpg rejected, got %+v", rejected)
	}

	status, err := batches.Status(ctx, batch.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Aggregate != entity.StatusProcessing {
		t.Fatalf("aggregate = %s while members pending, want processing", status.Aggregate)
	}

	// drive one member to completed, one to failed: mixed terminal state
	st.Transition(ctx, batch.MemberJobIDs[0], entity.StatusProcessing, store.Update{})
	st.Transition(ctx, batch.MemberJobIDs[0], entity.StatusCompleted, store.Update{})
	st.Transition(ctx, batch.MemberJobIDs[1], entity.StatusProcessing, store.Update{})
	st.Transition(ctx, batch.MemberJobIDs[1], entity.StatusFailed, store.Update{ErrorMessage: "malformed"})

	status, _ = batches.Status(ctx, batch.ID)
	if status.Aggregate == entity.StatusCompleted {
		t.Fatal("mixed outcome must not aggregate to completed")
	}
	if status.Counts["completed"] != 1 || status.Counts["failed"] != 1 {
		t.Fatalf("counts wrong: %v", status.Counts)
	}

	// drive both members of a fresh batch to completed
	batch2, _, err := batches.SubmitBatch(ctx, []service.SubmitRequest{
		{Filename: "d.txt", TargetFormat: "pdf", File: strings.NewReader("d")},
		{Filename: "e.txt", TargetFormat: "pdf", File: strings.NewReader("e")},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range batch2.MemberJobIDs {
		st.Transition(ctx, id, entity.StatusProcessing, store.Update{})
		st.Transition(ctx, id, entity.StatusCompleted, store.Update{})
	}
	status2, _ := batches.Status(ctx, batch2.ID)
	if status2.Aggregate != entity.StatusCompleted {
		t.Fatalf("aggregate = %s, want completed", status2.Aggregate)
	}
}

func TestBatch_AllRejectedFails(t *testing.T) {
	svc, st, _, workDir := newService(t)
	downloads := service.NewDownloads(st, nil, workDir, time.Minute, time.Hour)
	batches := service.NewBatchService(st, svc, downloads)

	_, rejected, err := batches.SubmitBatch(context.Background(), []service.SubmitRequest{
		{Filename: "c.jpg", TargetFormat: "docx", File: strings.NewReader("c")},
	})
	if !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(rejected) != 1 {
		t.Fatalf("expected rejection report, got %+v", rejected)
	}
}

func completedJob(t *testing.T, st *store.Memory, workDir, content string) *entity.ConversionJob {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	out := filepath.Join(workDir, id.String()+".pdf")
	if err := os.WriteFile(out, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	job := &entity.ConversionJob{
		ID:               id,
		OriginalFilename: "doc.txt",
		SourceFormat:     "txt",
		TargetFormat:     "pdf",
		InputPath:        filepath.Join(workDir, id.String()+".in.txt"),
	}
	st.Create(ctx, job)
	st.Transition(ctx, id, entity.StatusProcessing, store.Update{})
	st.Transition(ctx, id, entity.StatusCompleted, store.Update{
		OutputPath: out, OutputSizeBytes: int64(len(content)),
	})
	return job
}

func TestDownloads_Resolve(t *testing.T) {
	workDir := t.TempDir()
	st := store.NewMemory()
	downloads := service.NewDownloads(st, nil, workDir, time.Minute, time.Hour)
	ctx := context.Background()

	// unknown id
	if _, _, err := downloads.ResolveDownload(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// pending job
	pending := &entity.ConversionJob{
		ID: uuid.New(), OriginalFilename: "p.txt", SourceFormat: "txt", TargetFormat: "pdf",
	}
	st.Create(ctx, pending)
	if _, _, err := downloads.ResolveDownload(ctx, pending.ID); !errors.Is(err, service.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}

	// completed job
	job := completedJob(t, st, workDir, "pdfdata")
	path, name, err := downloads.ResolveDownload(ctx, job.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if name != "doc.pdf" {
		t.Fatalf("download name = %q", name)
	}
	if data, _ := os.ReadFile(path); string(data) != "pdfdata" {
		t.Fatal("resolved path does not serve the artifact")
	}
}

func TestDownloads_MarkDownloadedDeletesAfterGrace(t *testing.T) {
	workDir := t.TempDir()
	st := store.NewMemory()
	downloads := service.NewDownloads(st, nil, workDir, 20*time.Millisecond, time.Hour)
	job := completedJob(t, st, workDir, "pdfdata")
	got, _ := st.Get(context.Background(), job.ID)

	downloads.MarkDownloaded(job.ID, got.OutputPath)

	deadline := time.After(2 * time.Second)
	for {
		if _, err := os.Stat(got.OutputPath); os.IsNotExist(err) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("artifact not deleted after grace period")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// deleting again must be a no-op, not an error
	downloads.MarkDownloaded(job.ID, got.OutputPath)
	time.Sleep(50 * time.Millisecond)
}

func TestDownloads_CleanupIsScopedPerJob(t *testing.T) {
	workDir := t.TempDir()
	st := store.NewMemory()
	downloads := service.NewDownloads(st, nil, workDir, 10*time.Millisecond, time.Hour)

	a := completedJob(t, st, workDir, "artifact-a")
	b := completedJob(t, st, workDir, "artifact-b")
	gotA, _ := st.Get(context.Background(), a.ID)
	gotB, _ := st.Get(context.Background(), b.ID)

	downloads.MarkDownloaded(a.ID, gotA.OutputPath)

	deadline := time.After(2 * time.Second)
	for {
		if _, err := os.Stat(gotA.OutputPath); os.IsNotExist(err) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("artifact A not deleted")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if _, err := os.Stat(gotB.OutputPath); err != nil {
		t.Fatal("cleanup of job A touched job B's artifact")
	}
}

func TestBatch_WriteArchiveContainsCompletedOnly(t *testing.T) {
	workDir := t.TempDir()
	st := store.NewMemory()
	svc := service.NewConversionService(st, &fakeScheduler{}, converter.NewRouter(nopCodec{}), nil, workDir)
	downloads := service.NewDownloads(st, nil, workDir, time.Minute, time.Hour)
	batches := service.NewBatchService(st, svc, downloads)
	ctx := context.Background()

	done := completedJob(t, st, workDir, "pdf-a")
	failed := &entity.ConversionJob{
		ID: uuid.New(), OriginalFilename: "bad.txt", SourceFormat: "txt", TargetFormat: "pdf",
	}
	st.Create(ctx, failed)
	st.Transition(ctx, failed.ID, entity.StatusProcessing, store.Update{})
	st.Transition(ctx, failed.ID, entity.StatusFailed, store.Update{ErrorMessage: "boom"})

	batch := &entity.BatchJob{ID: uuid.New(), MemberJobIDs: []uuid.UUID{done.ID, failed.ID}}
	st.CreateBatch(ctx, batch)

	var buf bytes.Buffer
	if err := batches.WriteArchive(ctx, batch.ID, &buf); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("PK")) {
		t.Fatal("archive is not a zip")
	}
	if !bytes.Contains(buf.Bytes(), []byte("doc.pdf")) {
		t.Fatal("completed artifact missing from archive")
	}
	if bytes.Contains(buf.Bytes(), []byte("bad.pdf")) {
		t.Fatal("failed member leaked into archive")
	}
}
