package workers

import (
	"context"
	"courier/contract"
	"courier/errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultRestartInterval = 200 * time.Millisecond

// Supervisor runs long-lived workers (the gRPC listener, the metrics endpoint)
// and restarts any that crash or fail until its context ends.
// A worker returning nil is considered done and is not restarted.
type Supervisor struct {
	log             *slog.Logger
	restartInterval time.Duration
	workers         []contract.Worker

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = defaultRestartInterval
	}
	return &Supervisor{log: log, restartInterval: restartInterval}
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run starts every added worker and blocks until all of them are gone.
// Cancelling ctx or calling Stop ends them.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

// Start supervises a single worker in its own goroutine.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	name := contract.GetWorkerName(worker)
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		for restarts := 0; ; restarts++ {
			if ctx.Err() != nil {
				s.log.Info("Worker stopping", "name", name)
				return
			}

			err := runGuarded(ctx, worker)
			if err == nil {
				s.log.Info("Worker finished", "name", name)
				return
			}
			if ctx.Err() != nil {
				s.log.Info("Worker stopped", "name", name)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", name, "restarts", restarts, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartInterval):
			}
		}
	}()
}

func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func runGuarded(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}
