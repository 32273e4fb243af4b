package worker

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"fooocus-orchestrator/internal/audit"
	"fooocus-orchestrator/pkg/types"
)

// Config controls process spawning, RPC timeouts and readiness
// probing for every worker slot.
type Config struct {
	BinaryPath          string
	HealthProbeBudget   time.Duration
	HealthProbeCooldown time.Duration
	RPCTimeout          time.Duration
	SubTaskWallClockCap time.Duration
	AuditEnabled        bool
}

// Worker owns one GPU slot's child process and its JSON-RPC client
// for the process's entire lifetime. It is created once per slot at
// startup and removed only on process exit or supervisor shutdown.
type Worker struct {
	Device int

	cmd    *exec.Cmd
	rpc    *rpcClient
	ready  *readinessBreaker
	config Config
	logger *zap.Logger
	audit  *audit.Logger

	exited chan struct{}
}

// Start spawns the process, wires its JSON-RPC transport and begins
// the readiness probe loop in the background. It returns once the
// process has been launched; readiness is observed via IsReady.
func Start(ctx context.Context, device, port int, config Config, logger *zap.Logger) (*Worker, error) {
	logger = logger.With(zap.Int("gpu_device", device))

	cmd, stdin, stdout, err := spawnProcess(ctx, config.BinaryPath, device, port, logger)
	if err != nil {
		return nil, fmt.Errorf("spawn worker for device %d: %w", device, err)
	}

	w := &Worker{
		Device: device,
		cmd:    cmd,
		rpc:    newRPCClient(stdin, stdout, logger),
		ready:  newReadinessBreaker(config.HealthProbeBudget, config.HealthProbeCooldown, logger),
		config: config,
		logger: logger,
		audit:  audit.NewLogger(logger, config.AuditEnabled),
		exited: make(chan struct{}),
	}

	go w.watchExit()
	go w.probeLoop(ctx)

	return w, nil
}

func (w *Worker) watchExit() {
	w.cmd.Wait()
	close(w.exited)
}

// probeLoop calls the `health` RPC method every cooldown interval
// until the process answers ok, the readiness budget is exhausted, or
// the context is canceled.
func (w *Worker) probeLoop(ctx context.Context) {
	w.ready.start()
	ticker := time.NewTicker(w.ready.cooldownInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.exited:
			return
		case <-ticker.C:
			var result types.HealthResult
			err := w.rpc.CallWithTimeout(ctx, w.config.RPCTimeout, "health", nil, &result)
			if err == nil && result.Status == "ok" {
				w.ready.markReady()
				w.audit.WorkerReady(w.Device)
				return
			}
			if w.ready.recordProbeFailure() {
				w.audit.WorkerUnusable(w.Device)
				return
			}
		}
	}
}

// IsReady reports whether the health probe has succeeded at least
// once.
func (w *Worker) IsReady() bool {
	return w.ready.isReady()
}

// IsUnusable reports whether the worker exhausted its readiness
// budget without ever answering healthy.
func (w *Worker) IsUnusable() bool {
	return w.ready.isUnusable()
}

// Generate asks the worker to begin generating images for a sub-task.
// It returns once the worker has accepted the request; progress is
// observed separately via Progress.
func (w *Worker) Generate(ctx context.Context, taskID string, fooocusArgs []interface{}, contractVersion int) error {
	params := types.GenerateParams{
		TaskID:                     taskID,
		FooocusArgs:                fooocusArgs,
		FooocusArgsContractVersion: contractVersion,
	}
	return w.rpc.CallWithTimeout(ctx, w.config.RPCTimeout, "generate", params, nil)
}

// Progress polls the worker for the current state of a sub-task.
func (w *Worker) Progress(ctx context.Context, taskID string) (*types.ProgressResult, error) {
	var result types.ProgressResult
	err := w.rpc.CallWithTimeout(ctx, w.config.RPCTimeout, "progress", types.ProgressParams{TaskID: taskID}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Stop asks the worker to cancel a running sub-task, best-effort.
func (w *Worker) Stop(ctx context.Context, taskID string) error {
	var result types.StopResult
	err := w.rpc.CallWithTimeout(ctx, w.config.RPCTimeout, "stop", types.ProgressParams{TaskID: taskID}, &result)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("worker declined stop for task %s", taskID)
	}
	return nil
}

// Shutdown sends a termination signal to the process and waits for it
// to exit.
func (w *Worker) Shutdown() {
	w.logger.Info("worker shutting down")
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	<-w.exited
	w.logger.Info("worker shutdown complete")
}
