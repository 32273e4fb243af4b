package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"fooocus-orchestrator/pkg/types"
)

// Supervisor owns one Worker per configured GPU slot for the
// lifetime of the backend process. Slots are fixed at startup from
// the GPU configuration document; there is no scale up/down.
type Supervisor struct {
	mu      sync.RWMutex
	workers map[int]*Worker
	config  Config
	logger  *zap.Logger
}

func NewSupervisor(config Config, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		workers: make(map[int]*Worker),
		config:  config,
		logger:  logger,
	}
}

// StartAll spawns one worker process per slot. It returns once every
// process has been launched; readiness is observed asynchronously per
// worker. A worker is removed from the table once its process exits.
func (s *Supervisor) StartAll(ctx context.Context, slots []types.GPUSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range slots {
		w, err := Start(ctx, slot.Device, slot.Port, s.config, s.logger)
		if err != nil {
			return fmt.Errorf("start worker for device %d: %w", slot.Device, err)
		}
		s.workers[slot.Device] = w
		go func(device int, w *Worker) {
			<-w.exited
			s.mu.Lock()
			if s.workers[device] == w {
				delete(s.workers, device)
			}
			s.mu.Unlock()
		}(slot.Device, w)
	}

	s.logger.Info("worker supervisor started", zap.Int("worker_count", len(s.workers)))
	return nil
}

// Get returns the worker for a GPU device, if it exists.
func (s *Supervisor) Get(device int) (*Worker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[device]
	return w, ok
}

// ShutdownAll sends a termination signal to every worker process and
// waits for all of them to exit.
func (s *Supervisor) ShutdownAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Shutdown()
		}(w)
	}
	wg.Wait()

	s.logger.Info("worker supervisor shut down")
}
