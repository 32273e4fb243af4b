package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"go.uber.org/zap"
)

// spawnProcess launches one worker process for the given GPU slot.
// Environment variables identify the physical GPU index and the
// slot's informational port; stdin/stdout are wired as pipes for the
// JSON-RPC transport, stderr is drained line-by-line into the logger.
func spawnProcess(ctx context.Context, binaryPath string, device, port int, logger *zap.Logger) (*exec.Cmd, io.WriteCloser, io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, binaryPath)
	cmd.Env = append(os.Environ(),
		"CUDA_VISIBLE_DEVICES="+strconv.Itoa(device),
		"WORKER_GPU_DEVICE="+strconv.Itoa(device),
		"WORKER_PORT="+strconv.Itoa(port),
		"WORKER_RPC_MODE=stdio",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("start worker process: %w", err)
	}

	go drainStderr(stderr, logger)

	return cmd, stdin, stdout, nil
}

func drainStderr(stderr io.Reader, logger *zap.Logger) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		logger.Info("worker stderr", zap.String("line", scanner.Text()))
	}
}
