package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"fooocus-orchestrator/internal/progressbus"
	"fooocus-orchestrator/internal/scheduler"
	"fooocus-orchestrator/pkg/types"
)

// fakeWorker is a scripted WorkerHandle: it reports a fixed sequence
// of progress results and then keeps repeating the last one.
type fakeWorker struct {
	mu       sync.Mutex
	progress []types.ProgressResult
	call     int
	genErr   error
	stopped  bool
}

func (f *fakeWorker) Generate(ctx context.Context, taskID string, args []interface{}, version int) error {
	return f.genErr
}

func (f *fakeWorker) Progress(ctx context.Context, taskID string) (*types.ProgressResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.call >= len(f.progress) {
		f.call++
		last := f.progress[len(f.progress)-1]
		return &last, nil
	}
	result := f.progress[f.call]
	f.call++
	return &result, nil
}

func (f *fakeWorker) Stop(ctx context.Context, taskID string) error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return nil
}

func (f *fakeWorker) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func oneGPUScheduler() *scheduler.Scheduler {
	return scheduler.New(types.GPUConfig{
		Enabled: true,
		GPUs:    []types.GPUConfigEntry{{Device: 0, Name: "gpu0", Weight: 1}},
	})
}

func twoGPUScheduler() *scheduler.Scheduler {
	return scheduler.New(types.GPUConfig{
		Enabled: true,
		GPUs: []types.GPUConfigEntry{
			{Device: 0, Name: "gpu0", Weight: 1},
			{Device: 1, Name: "gpu1", Weight: 1},
		},
	})
}

func lookupFor(workers map[int]WorkerHandle) WorkerLookup {
	return func(device int) (WorkerHandle, bool) {
		w, ok := workers[device]
		return w, ok
	}
}

func waitForTerminal(t *testing.T, bus *progressbus.Bus, timeout time.Duration) types.ProgressUpdate {
	t.Helper()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	deadline := time.After(timeout)
	for {
		select {
		case update := <-ch:
			if update.Finished {
				return update
			}
		case <-deadline:
			t.Fatal("timed out waiting for terminal update")
		}
	}
}

func TestSubmitSingleGPUSingleImageFinishes(t *testing.T) {
	w := &fakeWorker{progress: []types.ProgressResult{
		{Percentage: 10},
		{Percentage: 50},
		{Percentage: 100, Finished: true, Results: []string{"a.png"}},
	}}
	bus := progressbus.New(zap.NewNop())
	c := New(oneGPUScheduler(), lookupFor(map[int]WorkerHandle{0: w}), bus, nil, 30*time.Minute, true, nil, zap.NewNop())

	resp, err := c.Submit(context.Background(), &types.GenerateRequest{Prompt: "a cat", ImageNumber: 1})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if resp.Status != "Started" {
		t.Fatalf("Status = %q, want Started", resp.Status)
	}
	if len(resp.GPUs) != 1 || resp.GPUs[0].Images != 1 {
		t.Fatalf("GPUs = %+v, want one GPU with 1 image", resp.GPUs)
	}

	terminal := waitForTerminal(t, bus, 5*time.Second)
	if terminal.Percentage != 100 || !terminal.Finished {
		t.Errorf("terminal update = %+v, want percentage 100 finished", terminal)
	}
	if len(terminal.Results) != 1 || terminal.Results[0] != "a.png" {
		t.Errorf("terminal results = %v, want [a.png]", terminal.Results)
	}

	status, ok := c.Status(resp.TaskID)
	if !ok {
		t.Fatal("Status() not found after finalize")
	}
	if status.Status != string(types.TaskStatusFinished) {
		t.Errorf("final status = %q, want finished", status.Status)
	}
}

func TestSubmitNoGPUAvailableReturnsError(t *testing.T) {
	sched := scheduler.New(types.GPUConfig{})
	bus := progressbus.New(zap.NewNop())
	c := New(sched, lookupFor(nil), bus, nil, 30*time.Minute, true, nil, zap.NewNop())

	resp, err := c.Submit(context.Background(), &types.GenerateRequest{Prompt: "x", ImageNumber: 1})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if resp.Status != "error" {
		t.Fatalf("Status = %q, want error", resp.Status)
	}
}

func TestSubmitCancelsAcceptedSiblingWhenALaterSubTaskFailsToStart(t *testing.T) {
	w0 := &fakeWorker{progress: []types.ProgressResult{
		{Percentage: 10},
		{Percentage: 50},
	}}
	w1 := &fakeWorker{genErr: fmt.Errorf("worker unavailable")}
	bus := progressbus.New(zap.NewNop())
	c := New(twoGPUScheduler(), lookupFor(map[int]WorkerHandle{0: w0, 1: w1}), bus, nil, 30*time.Minute, true, nil, zap.NewNop())

	resp, err := c.Submit(context.Background(), &types.GenerateRequest{Prompt: "x", ImageNumber: 2})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if resp.Status != "Started" {
		t.Fatalf("Status = %q, want Started", resp.Status)
	}

	waitForTerminal(t, bus, 5*time.Second)
	time.Sleep(50 * time.Millisecond)

	status, ok := c.Status(resp.TaskID)
	if !ok {
		t.Fatal("task not found")
	}
	if status.Status != string(types.TaskStatusError) {
		t.Errorf("status = %q, want error (both sub-tasks ended in failure)", status.Status)
	}
	if len(status.Errors) != 2 {
		t.Fatalf("errors = %v, want 2 entries: the sub-task that failed to start and its canceled sibling", status.Errors)
	}
	if !w0.wasStopped() {
		t.Error("worker 0's Stop() was never called, want the accepted sibling to be canceled")
	}
}

func TestStopAllMarksTaskCanceled(t *testing.T) {
	w := &fakeWorker{progress: []types.ProgressResult{{Percentage: 40}}}
	bus := progressbus.New(zap.NewNop())
	c := New(oneGPUScheduler(), lookupFor(map[int]WorkerHandle{0: w}), bus, nil, 30*time.Minute, true, nil, zap.NewNop())

	resp, _ := c.Submit(context.Background(), &types.GenerateRequest{Prompt: "x", ImageNumber: 1})

	time.Sleep(50 * time.Millisecond)
	stopResp := c.StopAll(context.Background())
	if stopResp.Requested == 0 {
		t.Fatal("expected at least one stop() to be requested")
	}

	second := c.StopAll(context.Background())
	if second.Requested != 0 {
		t.Errorf("second StopAll() requested = %d, want 0 (idempotent)", second.Requested)
	}

	status, ok := c.Status(resp.TaskID)
	if !ok {
		t.Fatal("task not found")
	}
	if status.Status != string(types.TaskStatusCanceled) {
		t.Errorf("status = %q, want canceled", status.Status)
	}
}
