// Package coordinator implements the per-request task state machine
// that fans a generation request out across GPU workers, polls each
// for progress, aggregates the result and publishes it to the
// progress bus. Each accepted sub-task gets its own polling goroutine
// and context/cancel pair, and each task gets one finalizer goroutine
// that checks every pollInterval whether all sub-tasks have finished.
package coordinator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"fooocus-orchestrator/internal/argsvector"
	"fooocus-orchestrator/internal/audit"
	"fooocus-orchestrator/internal/monitoring"
	"fooocus-orchestrator/internal/progressbus"
	"fooocus-orchestrator/internal/scheduler"
	"fooocus-orchestrator/internal/tracing"
	"fooocus-orchestrator/internal/worker"
	"fooocus-orchestrator/pkg/types"
)

const pollInterval = 500 * time.Millisecond

// WorkerHandle is the subset of *worker.Worker the coordinator needs;
// named as an interface so tests can substitute a fake.
type WorkerHandle interface {
	Generate(ctx context.Context, taskID string, fooocusArgs []interface{}, contractVersion int) error
	Progress(ctx context.Context, taskID string) (*types.ProgressResult, error)
	Stop(ctx context.Context, taskID string) error
}

// WorkerLookup resolves a GPU device to its worker handle. Callers
// typically pass a closure over a *worker.Supervisor; tests pass a
// closure over a fake.
type WorkerLookup func(device int) (WorkerHandle, bool)

// Coordinator owns every in-flight Task. Per-task mutation happens on
// that task's own goroutines under its own entry lock, so the
// monotonic-percentage and exactly-once-terminal rules never need
// cross-task locking.
type Coordinator struct {
	mu    sync.RWMutex
	tasks map[string]*taskEntry

	scheduler      *scheduler.Scheduler
	workers        WorkerLookup
	bus            *progressbus.Bus
	classifier     *worker.TransportErrorClassifier
	metrics        *monitoring.Metrics
	audit          *audit.Logger
	tracingManager *tracing.TracingManager
	logger         *zap.Logger

	subTaskCap time.Duration
}

type taskEntry struct {
	mu     sync.Mutex
	task   *types.Task
	cancel []context.CancelFunc
	done   bool

	// audit is c.audit scoped to this task's request correlation ID via
	// tracing.GetCorrelationID, so every lifecycle event for the task
	// carries the same correlation/trace tags as its HTTP request.
	audit *audit.Logger
	// span covers the task from Submit's dispatch through finalize; nil
	// when no TracingManager is configured.
	span trace.Span
}

func New(sched *scheduler.Scheduler, workers WorkerLookup, bus *progressbus.Bus, metrics *monitoring.Metrics, subTaskCap time.Duration, auditEnabled bool, tracingManager *tracing.TracingManager, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		tasks:          make(map[string]*taskEntry),
		scheduler:      sched,
		workers:        workers,
		bus:            bus,
		classifier:     worker.NewTransportErrorClassifier(logger),
		metrics:        metrics,
		audit:          audit.NewLogger(logger, auditEnabled),
		tracingManager: tracingManager,
		subTaskCap:     subTaskCap,
		logger:         logger,
	}
}

// Submit allocates a task_id, asks the Scheduler for an assignment,
// and starts one polling goroutine per accepted sub-task plus the
// task's finalizer goroutine.
func (c *Coordinator) Submit(ctx context.Context, req *types.GenerateRequest) (*types.GenerateResponse, error) {
	taskID := uuid.New().String()

	totalImages := req.ImageNumber
	if totalImages <= 0 {
		totalImages = 1
	}

	task := &types.Task{
		ID:          taskID,
		TotalImages: totalImages,
		CreatedAt:   time.Now(),
		Status:      types.TaskStatusPending,
	}

	entry := &taskEntry{task: task, audit: c.audit.WithCorrelation(tracing.GetCorrelationID(ctx), tracing.GetTraceID(ctx))}
	if c.tracingManager != nil {
		ctx, entry.span = c.tracingManager.StartTaskSpan(ctx, "task.generate", taskID)
	}
	c.mu.Lock()
	c.tasks[taskID] = entry
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.TaskSubmitted()
	}

	assignments := c.scheduler.Distribute(totalImages)
	if len(assignments) == 0 {
		entry.mu.Lock()
		task.Status = types.TaskStatusError
		task.Errors = append(task.Errors, "no GPU available")
		entry.mu.Unlock()
		c.publishTerminal(entry)
		entry.audit.TaskFailed(taskID, task.Errors, time.Since(task.CreatedAt))
		if c.metrics != nil {
			c.metrics.TaskFailed(time.Since(task.CreatedAt))
		}
		if c.tracingManager != nil && entry.span != nil {
			c.tracingManager.RecordError(entry.span, fmt.Errorf("no GPU available"))
			entry.span.End()
		}
		return &types.GenerateResponse{TaskID: taskID, Status: "error", Error: "no GPU available"}, nil
	}

	seed := req.ImageSeed
	if req.SeedRandom || req.ImageSeed == 0 {
		seed = rand.Int63n(1 << 31)
	}

	entry.mu.Lock()
	task.Assignments = assignments
	task.Status = types.TaskStatusRunning
	task.Percentage = 5
	task.StatusText = fmt.Sprintf("Distributing to %d GPU(s)", len(assignments))
	for _, a := range assignments {
		c.scheduler.MarkBusy(a.Slot.Device, true)
	}
	entry.mu.Unlock()

	gpuSplits := make([]types.TaskGPUSplit, 0, len(assignments))
	baseSeed := seed
	subTasks := make([]*types.SubTask, 0, len(assignments))
	for i, a := range assignments {
		sub := &types.SubTask{
			ParentID:   taskID,
			Index:      i,
			SubID:      fmt.Sprintf("%s_%d", taskID, i),
			Slot:       a.Slot,
			ImageCount: a.ImageCount,
		}
		subTasks = append(subTasks, sub)
		gpuSplits = append(gpuSplits, types.TaskGPUSplit{Device: a.Slot.Device, Images: a.ImageCount})
	}

	entry.mu.Lock()
	task.SubTasks = subTasks
	entry.mu.Unlock()

	for _, sub := range subTasks {
		subReq := *req
		subReq.ImageNumber = sub.ImageCount
		subReq.ImageSeed = baseSeed
		subReq.SeedRandom = false
		baseSeed += int64(sub.ImageCount)

		w, ok := c.workers(sub.Slot.Device)
		if !ok {
			c.failSubTask(entry, sub, "no worker registered for device")
			continue
		}

		vec, version := argsvector.Build(&subReq)
		if err := argsvector.Validate(vec); err != nil {
			c.failSubTask(entry, sub, err.Error())
			continue
		}

		subCtx, cancel := c.newSubTaskContext(ctx)
		entry.mu.Lock()
		entry.cancel = append(entry.cancel, cancel)
		entry.mu.Unlock()

		if err := w.Generate(subCtx, sub.SubID, vec, version); err != nil {
			// Symmetric with Cancel: a sub-task that never got off the
			// ground takes every already-accepted sibling down with it
			// rather than leaving them to finish in isolation.
			entry.mu.Lock()
			cancels := append([]context.CancelFunc(nil), entry.cancel...)
			entry.mu.Unlock()
			for _, cancelSibling := range cancels {
				cancelSibling()
			}
			c.failSubTask(entry, sub, err.Error())
			continue
		}

		go c.pollSubTask(subCtx, entry, sub, w)
	}

	go c.finalizeWhenDone(entry)

	entry.audit.TaskSubmitted(taskID, totalImages, len(assignments))

	return &types.GenerateResponse{
		TaskID:      taskID,
		Status:      "Started",
		GPUs:        gpuSplits,
		TotalImages: totalImages,
	}, nil
}

func (c *Coordinator) newSubTaskContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), c.subTaskCap)
}

// pollSubTask polls a single sub-task's progress every pollInterval
// until it finishes, its worker fails permanently, or its wall-clock
// cap expires.
func (c *Coordinator) pollSubTask(ctx context.Context, entry *taskEntry, sub *types.SubTask, w WorkerHandle) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			reason := "sub-task exceeded wall-clock cap"
			if ctx.Err() == context.Canceled {
				reason = "canceled: a sibling sub-task failed to start"
			}
			c.failSubTask(entry, sub, reason)
			_ = w.Stop(context.Background(), sub.SubID)
			return
		case <-ticker.C:
			result, err := w.Progress(ctx, sub.SubID)
			if err != nil {
				if c.classifier.ShouldRetryPoll(err) {
					continue
				}
				c.failSubTask(entry, sub, err.Error())
				return
			}

			c.applyProgress(entry, sub, result)
			if result.Finished {
				return
			}
		}
	}
}

func (c *Coordinator) applyProgress(entry *taskEntry, sub *types.SubTask, result *types.ProgressResult) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	sub.Percentage = result.Percentage
	if result.StatusText != "" {
		sub.StatusText = result.StatusText
	}
	sub.Preview = result.Preview
	sub.Finished = result.Finished
	if result.Error != "" {
		sub.Error = result.Error
	}
	if result.Finished {
		sub.Results = result.Results
	}

	c.recomputeParentLocked(entry)
	c.publishProgressLocked(entry)
}

func (c *Coordinator) failSubTask(entry *taskEntry, sub *types.SubTask, reason string) {
	entry.mu.Lock()
	sub.Finished = true
	sub.Error = reason
	entry.task.Errors = append(entry.task.Errors, fmt.Sprintf("%s: %s", sub.SubID, reason))
	c.recomputeParentLocked(entry)
	c.publishProgressLocked(entry)
	entry.mu.Unlock()

	c.scheduler.MarkBusy(sub.Slot.Device, false)

	if c.tracingManager != nil && entry.span != nil {
		c.tracingManager.AddEvent(entry.span, "sub_task_failed",
			attribute.String("sub_id", sub.SubID),
			attribute.String("reason", reason),
		)
	}
}

// recomputeParentLocked applies the monotonic-maximum percentage rule
// and the latest-non-empty statusText/preview rule. Caller must hold
// entry.mu.
func (c *Coordinator) recomputeParentLocked(entry *taskEntry) {
	task := entry.task

	maxPct := task.Percentage
	for _, sub := range task.SubTasks {
		if sub.Percentage > maxPct {
			maxPct = sub.Percentage
		}
		if sub.StatusText != "" {
			task.StatusText = sub.StatusText
		}
		if sub.Preview != nil {
			task.Preview = sub.Preview
		}
	}
	task.Percentage = maxPct
}

func (c *Coordinator) publishProgressLocked(entry *taskEntry) {
	task := entry.task
	c.bus.Publish(types.ProgressUpdate{
		Type:       "progress",
		TaskID:     task.ID,
		Percentage: task.Percentage,
		StatusText: task.StatusText,
		Finished:   false,
		Preview:    task.Preview,
	})
}

// finalizeWhenDone blocks until every sub-task has finished, then
// closes the task out exactly once.
func (c *Coordinator) finalizeWhenDone(entry *taskEntry) {
	for {
		if c.allSubTasksFinished(entry) {
			c.finalize(entry)
			return
		}
		time.Sleep(pollInterval)
	}
}

func (c *Coordinator) allSubTasksFinished(entry *taskEntry) bool {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	for _, sub := range entry.task.SubTasks {
		if !sub.Finished {
			return false
		}
	}
	return len(entry.task.SubTasks) > 0
}

func (c *Coordinator) finalize(entry *taskEntry) {
	entry.mu.Lock()
	if entry.done {
		entry.mu.Unlock()
		return
	}
	entry.done = true

	task := entry.task
	successImages := 0
	var results []string
	for _, sub := range task.SubTasks {
		if sub.Error == "" {
			successImages += sub.ImageCount
			results = append(results, sub.Results...)
		}
		c.scheduler.MarkBusy(sub.Slot.Device, false)
	}

	task.Results = results
	task.Percentage = 100
	task.Preview = nil
	for _, cancel := range entry.cancel {
		cancel()
	}

	wasCanceled := task.Status == types.TaskStatusCanceled
	switch {
	case wasCanceled:
		task.StatusText = "Canceled"
	case successImages == 0:
		task.Status = types.TaskStatusError
		task.StatusText = fmt.Sprintf("Finished (0/%d images)", task.TotalImages)
	default:
		task.Status = types.TaskStatusFinished
		task.StatusText = fmt.Sprintf("Finished (%d/%d images)", successImages, task.TotalImages)
	}
	entry.mu.Unlock()

	c.publishTerminal(entry)
	duration := time.Since(task.CreatedAt)
	switch {
	case wasCanceled:
		entry.audit.TaskCanceled(task.ID)
	case successImages == 0:
		entry.audit.TaskFailed(task.ID, task.Errors, duration)
	default:
		entry.audit.TaskCompleted(task.ID, successImages, task.TotalImages, duration)
	}
	if c.tracingManager != nil && entry.span != nil {
		if !wasCanceled && successImages == 0 {
			c.tracingManager.RecordError(entry.span, fmt.Errorf("task finished with 0/%d images", task.TotalImages))
		}
		entry.span.End()
	}
	if c.metrics != nil {
		switch {
		case wasCanceled:
			c.metrics.TaskCanceled()
		case successImages == 0:
			c.metrics.TaskFailed(duration)
		default:
			c.metrics.TaskCompleted(duration)
		}
	}
}

func (c *Coordinator) publishTerminal(entry *taskEntry) {
	entry.mu.Lock()
	task := entry.task
	update := types.ProgressUpdate{
		Type:       "progress",
		TaskID:     task.ID,
		Percentage: task.Percentage,
		StatusText: task.StatusText,
		Finished:   true,
		Preview:    nil,
		Results:    task.Results,
	}
	entry.mu.Unlock()
	c.bus.Publish(update)
}

// Status returns a snapshot of the task's current state.
func (c *Coordinator) Status(taskID string) (*types.TaskStatusResponse, bool) {
	c.mu.RLock()
	entry, ok := c.tasks[taskID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	task := entry.task
	return &types.TaskStatusResponse{
		TaskID:     task.ID,
		Status:     string(task.Status),
		Percentage: task.Percentage,
		StatusText: task.StatusText,
		Preview:    task.Preview,
		Results:    task.Results,
		Errors:     task.Errors,
	}, true
}

// StopAll issues stop() to every worker with an incomplete sub-task
// across every in-flight task and marks those tasks canceled. It is
// idempotent: a task that is no longer running or pending is skipped,
// as is a sub-task already marked finished.
func (c *Coordinator) StopAll(ctx context.Context) types.StopResponse {
	c.mu.RLock()
	entries := make([]*taskEntry, 0, len(c.tasks))
	for _, e := range c.tasks {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	requested := 0
	allOK := true
	for _, entry := range entries {
		entry.mu.Lock()
		if entry.task.Status != types.TaskStatusRunning && entry.task.Status != types.TaskStatusPending {
			entry.mu.Unlock()
			continue
		}
		entry.task.Status = types.TaskStatusCanceled
		subs := append([]*types.SubTask(nil), entry.task.SubTasks...)
		entry.mu.Unlock()

		for _, sub := range subs {
			if sub.Finished {
				continue
			}
			w, ok := c.workers(sub.Slot.Device)
			if !ok {
				continue
			}
			requested++
			if err := w.Stop(ctx, sub.SubID); err != nil {
				allOK = false
				c.logger.Warn("stop rpc failed", zap.String("sub_id", sub.SubID), zap.Error(err))
			}
		}
	}

	return types.StopResponse{Requested: requested, Success: allOK}
}
