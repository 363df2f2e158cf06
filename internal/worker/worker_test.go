package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"file-conversion-service/internal/codec"
	"file-conversion-service/internal/converter"
	"file-conversion-service/internal/entity"
	"file-conversion-service/internal/store"
	"file-conversion-service/internal/worker"
)

// fakeStrategy counts conversions and writes a real artifact so the
// processor's file handling is exercised.
type fakeStrategy struct {
	calls   int32
	failN   int32 // fail the first N calls
	err     error
	convErr error
	block   chan struct{} // when set, Convert waits until closed
}

func (s *fakeStrategy) Convert(ctx context.Context, inputPath, target string, opts entity.ConvertOptions) (converter.Result, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return converter.Result{}, ctx.Err()
		}
	}
	if s.convErr != nil && n <= s.failN {
		return converter.Result{}, s.convErr
	}
	out := filepath.Join(filepath.Dir(inputPath), "out."+target)
	if err := os.WriteFile(out, []byte("artifact"), 0o644); err != nil {
		return converter.Result{}, err
	}
	return converter.Result{OutputPath: out, OutputSizeBytes: 8}, nil
}

type fakeRouter struct {
	strategy converter.Strategy
	err      error
}

func (r *fakeRouter) Route(src, dst string) (converter.Strategy, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.strategy, nil
}

func seedJob(t *testing.T, st *store.Memory) *entity.ConversionJob {
	t.Helper()
	dir := t.TempDir()
	id := uuid.New()
	in := filepath.Join(dir, id.String()+".in.txt")
	if err := os.WriteFile(in, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	job := &entity.ConversionJob{
		ID:               id,
		OriginalFilename: "note.txt",
		SourceFormat:     "txt",
		TargetFormat:     "pdf",
		FileSizeBytes:    7,
		InputPath:        in,
	}
	if err := st.Create(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestProcessor_CompletesJobAndReleasesInput(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	job := seedJob(t, st)

	proc := worker.NewProcessor(st, &fakeRouter{strategy: &fakeStrategy{}}, nil, t.TempDir(), 0)
	if err := proc.Process(ctx, job.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := st.Get(ctx, job.ID)
	if got.Status != entity.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatal("timestamps not stamped")
	}
	if got.OutputSizeBytes != 8 {
		t.Fatalf("output size = %d", got.OutputSizeBytes)
	}
	if _, err := os.Stat(job.InputPath); !os.IsNotExist(err) {
		t.Error("input file not released after completion")
	}
	if _, err := os.Stat(got.OutputPath); err != nil {
		t.Error("artifact missing after completion")
	}
}

func TestProcessor_PermanentFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	job := seedJob(t, st)

	permanent := &codec.Error{Op: "encode", Err: errors.New("bad input")}
	strat := &fakeStrategy{convErr: permanent, failN: 100}
	proc := worker.NewProcessor(st, &fakeRouter{strategy: strat}, nil, t.TempDir(), 3)

	if err := proc.Process(ctx, job.ID); err == nil {
		t.Fatal("expected failure")
	}

	got, _ := st.Get(ctx, job.ID)
	if got.Status != entity.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.ErrorMessage == nil {
		t.Fatal("error message not recorded")
	}
	if n := atomic.LoadInt32(&strat.calls); n != 1 {
		t.Fatalf("permanent error retried: %d calls", n)
	}
	if _, err := os.Stat(job.InputPath); !os.IsNotExist(err) {
		t.Error("input file not released after failure")
	}
}

func TestProcessor_TransientFailureRetries(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	job := seedJob(t, st)

	transient := &codec.Error{Op: "encode", Transient: true, Err: errors.New("503")}
	strat := &fakeStrategy{convErr: transient, failN: 2}
	proc := worker.NewProcessor(st, &fakeRouter{strategy: strat}, nil, t.TempDir(), 3)

	if err := proc.Process(ctx, job.ID); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if n := atomic.LoadInt32(&strat.calls); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
	got, _ := st.Get(ctx, job.ID)
	if got.Status != entity.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
}

func TestProcessor_SkipsAlreadyClaimedJob(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	job := seedJob(t, st)
	st.Transition(ctx, job.ID, entity.StatusProcessing, store.Update{})

	strat := &fakeStrategy{}
	proc := worker.NewProcessor(st, &fakeRouter{strategy: strat}, nil, t.TempDir(), 0)
	if err := proc.Process(ctx, job.ID); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if atomic.LoadInt32(&strat.calls) != 0 {
		t.Fatal("claimed job was executed twice")
	}
}

func TestPool_SubmitRunsJob(t *testing.T) {
	st := store.NewMemory()
	job := seedJob(t, st)

	proc := worker.NewProcessor(st, &fakeRouter{strategy: &fakeStrategy{}}, nil, t.TempDir(), 0)
	pool := worker.NewPool(proc, 2, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	if err := pool.Submit(ctx, job.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		got, _ := st.Get(context.Background(), job.ID)
		if got.Status.Terminal() {
			if got.Status != entity.StatusCompleted {
				t.Fatalf("status = %s", got.Status)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("job never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPool_RejectsBeyondCapacity(t *testing.T) {
	st := store.NewMemory()
	block := make(chan struct{})
	proc := worker.NewProcessor(st, &fakeRouter{strategy: &fakeStrategy{block: block}}, nil, t.TempDir(), 0)
	pool := worker.NewPool(proc, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	// first job occupies the worker, second fills the buffer
	j1 := seedJob(t, st)
	j2 := seedJob(t, st)
	if err := pool.Submit(ctx, j1.ID); err != nil {
		t.Fatalf("submit 1: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // let the worker claim j1
	if err := pool.Submit(ctx, j2.ID); err != nil {
		t.Fatalf("submit 2: %v", err)
	}

	j3 := seedJob(t, st)
	if err := pool.Submit(ctx, j3.ID); !errors.Is(err, worker.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	close(block)
}

func TestPool_DuplicateSubmitIsNoop(t *testing.T) {
	st := store.NewMemory()
	block := make(chan struct{})
	strat := &fakeStrategy{block: block}
	proc := worker.NewProcessor(st, &fakeRouter{strategy: strat}, nil, t.TempDir(), 0)
	pool := worker.NewPool(proc, 1, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	job := seedJob(t, st)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Submit(ctx, job.ID)
		}()
	}
	wg.Wait()
	time.Sleep(50 * time.Millisecond)
	close(block)

	deadline := time.After(2 * time.Second)
	for {
		got, _ := st.Get(context.Background(), job.ID)
		if got.Status.Terminal() {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if n := atomic.LoadInt32(&strat.calls); n != 1 {
		t.Fatalf("job executed %d times, want 1", n)
	}
}
